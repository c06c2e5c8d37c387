package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/switix/bookstore/internal/domain"
)

type cartStore struct {
	db *sql.DB
}

// NewCartStore создаёт PostgreSQL-реализацию CartStore.
func NewCartStore(store *Store) *cartStore {
	return &cartStore{db: store.DB()}
}

// LinesOf возвращает позиции корзины пользователя.
func (s *cartStore) LinesOf(userID string) ([]domain.CartLine, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT book_id, qty
		FROM cart_lines
		WHERE user_id = $1
		ORDER BY created_at ASC, book_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.BookID, &line.Qty); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}

	return lines, nil
}

// Clear удаляет корзину пользователя.
func (s *cartStore) Clear(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE user_id = $1
	`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	return nil
}

// AddLine добавляет позицию в корзину; повтор книги увеличивает количество.
func (s *cartStore) AddLine(userID string, line domain.CartLine) error {
	if errs := line.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_lines (user_id, book_id, qty)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, book_id) DO UPDATE
		SET qty = cart_lines.qty + EXCLUDED.qty
	`, userID, line.BookID, line.Qty); err != nil {
		return fmt.Errorf("add cart line: %w", err)
	}

	return nil
}

var _ domain.CartStore = (*cartStore)(nil)
