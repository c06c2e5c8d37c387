package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByUser возвращает заказы покупателя, новые первыми,
	// с опциональным ограничением на количество.
	ListByUser(userID string, limit int) ([]Order, error)
	// ListAll возвращает все заказы (административная выборка), новые первыми.
	ListAll(limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
	// Delete безвозвратно удаляет заказ или возвращает ErrOrderNotFound.
	Delete(id string) error
}
