package inventory

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("test", "inventory")
}

func TestBatchReserve_AllSucceed(t *testing.T) {
	ledger := NewMockLedger()
	batch := NewBatch(ledger, testLogger())

	items := []domain.CartLine{
		{BookID: "book-1", Qty: 2},
		{BookID: "book-2", Qty: 1},
	}

	if err := batch.ReserveBatch(items); err != nil {
		t.Fatalf("reserve batch: %v", err)
	}
	if len(ledger.ReserveCalls) != 2 {
		t.Fatalf("expected 2 reserve calls, got %d", len(ledger.ReserveCalls))
	}
	if len(ledger.ReleaseCalls) != 0 {
		t.Fatalf("expected no releases on success, got %d", len(ledger.ReleaseCalls))
	}
}

func TestBatchReserve_PartialFailureCompensates(t *testing.T) {
	ledger := NewMockLedger()
	ledger.ReserveErrs["book-2"] = domain.ErrInsufficientStock
	batch := NewBatch(ledger, testLogger())

	items := []domain.CartLine{
		{BookID: "book-1", Qty: 2},
		{BookID: "book-2", Qty: 1},
		{BookID: "book-3", Qty: 4},
	}

	err := batch.ReserveBatch(items)
	if err == nil {
		t.Fatal("expected error")
	}

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(stockErr.BookIDs) != 1 || stockErr.BookIDs[0] != "book-2" {
		t.Fatalf("expected failing book-2, got %v", stockErr.BookIDs)
	}

	// Успешные резервы book-1 и book-3 должны быть сняты.
	if len(ledger.ReleaseCalls) != 2 {
		t.Fatalf("expected 2 compensating releases, got %d", len(ledger.ReleaseCalls))
	}
}

func TestBatchReserve_ReportsAllInsufficientBooks(t *testing.T) {
	ledger := NewMockLedger()
	ledger.ReserveErrs["book-1"] = domain.ErrInsufficientStock
	ledger.ReserveErrs["book-3"] = domain.ErrInsufficientStock
	batch := NewBatch(ledger, testLogger())

	err := batch.ReserveBatch([]domain.CartLine{
		{BookID: "book-1", Qty: 1},
		{BookID: "book-2", Qty: 1},
		{BookID: "book-3", Qty: 1},
	})

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(stockErr.BookIDs) != 2 {
		t.Fatalf("expected 2 failing books, got %v", stockErr.BookIDs)
	}
}

func TestBatchReserve_InfraErrorCompensates(t *testing.T) {
	infraErr := errors.New("ledger unavailable")
	ledger := NewMockLedger()
	ledger.ReserveErrs["book-2"] = infraErr
	batch := NewBatch(ledger, testLogger())

	err := batch.ReserveBatch([]domain.CartLine{
		{BookID: "book-1", Qty: 1},
		{BookID: "book-2", Qty: 1},
	})
	if !errors.Is(err, infraErr) {
		t.Fatalf("expected wrapped infra error, got %v", err)
	}
	if errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatal("infra error must not look like insufficient stock")
	}
	if len(ledger.ReleaseCalls) != 1 {
		t.Fatalf("expected 1 compensating release, got %d", len(ledger.ReleaseCalls))
	}
}

func TestReleaseBatch(t *testing.T) {
	ledger := NewMockLedger()
	batch := NewBatch(ledger, testLogger())

	items := []domain.CartLine{
		{BookID: "book-1", Qty: 2},
		{BookID: "book-2", Qty: 1},
	}
	if err := batch.ReleaseBatch(items); err != nil {
		t.Fatalf("release batch: %v", err)
	}
	if len(ledger.ReleaseCalls) != 2 {
		t.Fatalf("expected 2 release calls, got %d", len(ledger.ReleaseCalls))
	}
}
