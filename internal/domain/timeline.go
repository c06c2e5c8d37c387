package domain

import "time"

// TimelineEvent — запись в истории заказа: что произошло и когда.
// Reason заполняется для отмен и принудительных переходов.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// NewTimelineEvent создаёт событие истории с текущим временем UTC.
func NewTimelineEvent(orderID, eventType string) TimelineEvent {
	return TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Occurred: time.Now().UTC(),
	}
}
