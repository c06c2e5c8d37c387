package domain

import "time"

// InventoryRecord описывает складской остаток по одной книге.
// Инвариант: Available никогда не опускается ниже нуля; изменение
// выполняется только атомарной условной операцией леджера.
type InventoryRecord struct {
	BookID    string
	Available int64
	UpdatedAt time.Time
}

// Validate проверяет корректность записи остатка.
func (r *InventoryRecord) Validate() []error {
	var errs []error

	if r.BookID == "" {
		errs = append(errs, ErrLineBookRequired)
	}
	if r.Available < 0 {
		errs = append(errs, ErrStockNegative)
	}

	return errs
}
