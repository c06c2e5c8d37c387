package domain

// CartLine — одна позиция корзины покупателя: книга и количество.
// Корзина принадлежит пользователю и удаляется после успешного оформления.
type CartLine struct {
	BookID string
	Qty    int32
}

// Validate проверяет, что позиция корзины заполнена корректно.
func (l *CartLine) Validate() []error {
	var errs []error

	if l.BookID == "" {
		errs = append(errs, ErrLineBookRequired)
	}
	if l.Qty <= 0 {
		errs = append(errs, ErrLineQtyInvalid)
	}

	return errs
}

// MergeCartLines сворачивает дубликаты книг в корзине, суммируя количество.
// Порядок первых вхождений сохраняется: резерв делается один раз на книгу.
func MergeCartLines(lines []CartLine) []CartLine {
	index := make(map[string]int, len(lines))
	merged := make([]CartLine, 0, len(lines))

	for _, line := range lines {
		if pos, ok := index[line.BookID]; ok {
			merged[pos].Qty += line.Qty
			continue
		}
		index[line.BookID] = len(merged)
		merged = append(merged, line)
	}

	return merged
}
