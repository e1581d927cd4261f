package payment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"hotelbot/bot"
)

func TestSimulatorResolvesAsPaid(t *testing.T) {
	sim := NewSimulator(10 * time.Millisecond)

	var (
		mu       sync.Mutex
		gotPhone string
		gotID    int64
		gotStat  bot.BookingStatus
		gotRef   string
	)
	done := make(chan struct{})
	sim.OnResolution(func(_ context.Context, phone string, bookingID int64, status bot.BookingStatus, txRef string) error {
		mu.Lock()
		gotPhone, gotID, gotStat, gotRef = phone, bookingID, status, txRef
		mu.Unlock()
		close(done)
		return nil
	})

	if err := sim.Initiate(context.Background(), "254700000001", 42, 24000); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resolution callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPhone != "254700000001" || gotID != 42 {
		t.Fatalf("resolved phone=%s id=%d", gotPhone, gotID)
	}
	if gotStat != bot.StatusPaid {
		t.Fatalf("status = %s, want paid", gotStat)
	}
	if !strings.HasPrefix(gotRef, "MP") || len(gotRef) != 12 {
		t.Fatalf("transaction ref = %q", gotRef)
	}
}

func TestSimulatorRequiresCallback(t *testing.T) {
	sim := NewSimulator(time.Millisecond)
	if err := sim.Initiate(context.Background(), "254700000001", 1, 100); err == nil {
		t.Fatal("expected error without resolution callback")
	}
}
