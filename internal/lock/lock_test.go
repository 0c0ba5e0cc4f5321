package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalSerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := NewLocal()
	unlock, err := locker.Lock(context.Background(), "assign:politics:2026101412")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "assign:politics:2026101412"); err == nil {
		t.Fatalf("expected second lock on same key to time out")
	}

	otherUnlock, err := locker.Lock(context.Background(), "assign:sports:2026101412")
	if err != nil {
		t.Fatalf("lock on other key: %v", err)
	}
	otherUnlock()

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "assign:politics:2026101412")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Mode{"": ModeNone, "Local": ModeLocal, " redis ": ModeRedis, "none": ModeNone} {
		got, err := ParseMode(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", raw, got, want)
		}
	}
	if _, err := ParseMode("etcd"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}
