package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/switix/bookstore/internal/domain"
)

// bookCatalog отвечает на вопросы о ценах книг по таблице books.
type bookCatalog struct {
	db *sql.DB
}

// NewCatalog создаёт PostgreSQL-реализацию CatalogLookup.
func NewCatalog(store *Store) *bookCatalog {
	return &bookCatalog{db: store.DB()}
}

// PriceOf возвращает текущую цену книги или ErrBookNotFound.
func (c *bookCatalog) PriceOf(bookID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var price int64
	err := c.db.QueryRowContext(ctx, `
		SELECT price_minor FROM books WHERE id = $1
	`, bookID).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrBookNotFound
		}
		return 0, fmt.Errorf("query book price: %w", err)
	}

	return price, nil
}

// AddBook регистрирует книгу в каталоге (загрузка справочника).
func (c *bookCatalog) AddBook(bookID, title string, priceMinor int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO books (id, title, price_minor)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    price_minor = EXCLUDED.price_minor
	`, bookID, title, priceMinor); err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}

	return nil
}

type shipmentMethods struct {
	db *sql.DB
}

// NewShipmentMethods создаёт PostgreSQL-реализацию ShipmentMethodLookup.
func NewShipmentMethods(store *Store) *shipmentMethods {
	return &shipmentMethods{db: store.DB()}
}

// ShipmentPriceOf возвращает цену доставки или ErrShipmentMethodNotFound.
func (s *shipmentMethods) ShipmentPriceOf(methodID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var price int64
	err := s.db.QueryRowContext(ctx, `
		SELECT price_minor FROM shipment_methods WHERE id = $1
	`, methodID).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrShipmentMethodNotFound
		}
		return 0, fmt.Errorf("query shipment method: %w", err)
	}

	return price, nil
}

// AddMethod регистрирует способ доставки.
func (s *shipmentMethods) AddMethod(methodID, name string, priceMinor int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO shipment_methods (id, name, price_minor)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    price_minor = EXCLUDED.price_minor
	`, methodID, name, priceMinor); err != nil {
		return fmt.Errorf("upsert shipment method: %w", err)
	}

	return nil
}

type payMethods struct {
	db *sql.DB
}

// NewPayMethods создаёт PostgreSQL-реализацию PayMethodLookup.
func NewPayMethods(store *Store) *payMethods {
	return &payMethods{db: store.DB()}
}

// ValidatePayMethod возвращает ErrPayMethodNotFound для неизвестного id.
func (p *payMethods) ValidatePayMethod(methodID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var id string
	err := p.db.QueryRowContext(ctx, `
		SELECT id FROM pay_methods WHERE id = $1
	`, methodID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPayMethodNotFound
		}
		return fmt.Errorf("query pay method: %w", err)
	}

	return nil
}

// AddMethod регистрирует способ оплаты.
func (p *payMethods) AddMethod(methodID, name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO pay_methods (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name
	`, methodID, name); err != nil {
		return fmt.Errorf("upsert pay method: %w", err)
	}

	return nil
}

var (
	_ domain.CatalogLookup        = (*bookCatalog)(nil)
	_ domain.ShipmentMethodLookup = (*shipmentMethods)(nil)
	_ domain.PayMethodLookup      = (*payMethods)(nil)
)
