package domain

import (
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	for _, status := range []IdempotencyStatus{
		IdempotencyStatusProcessing,
		IdempotencyStatusDone,
		IdempotencyStatusFailed,
	} {
		if !status.Valid() {
			t.Fatalf("status %q must be valid", status)
		}
	}

	for _, status := range []IdempotencyStatus{"", "pending", "DONE"} {
		if status.Valid() {
			t.Fatalf("status %q must be invalid", status)
		}
	}
}

func TestIdempotencyRecordExpired(t *testing.T) {
	now := time.Now().UTC()

	live := IdempotencyRecord{TTLAt: now.Add(time.Minute)}
	if live.Expired(now) {
		t.Fatal("record with future TTL must not be expired")
	}

	stale := IdempotencyRecord{TTLAt: now.Add(-time.Minute)}
	if !stale.Expired(now) {
		t.Fatal("record with past TTL must be expired")
	}

	boundary := IdempotencyRecord{TTLAt: now}
	if !boundary.Expired(now) {
		t.Fatal("record expires exactly at its TTL")
	}
}
