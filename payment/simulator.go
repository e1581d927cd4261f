// Package payment provides the M-Pesa STK push gateway. The current
// implementation simulates the push and its callback; a real Daraja
// integration would replace Initiate and feed resolutions from the
// provider's callback endpoint instead of a timer.
package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"hotelbot/bot"
	"hotelbot/core/logger"

	"github.com/google/uuid"
	"log/slog"
)

// ResolutionFunc receives the outcome of an initiated payment.
type ResolutionFunc func(ctx context.Context, phone string, bookingID int64, status bot.BookingStatus, txRef string) error

// Simulator pretends to run an STK push and resolves every payment as
// paid after a fixed delay.
type Simulator struct {
	delay    time.Duration
	complete ResolutionFunc
}

// NewSimulator builds a gateway that resolves payments after delay.
func NewSimulator(delay time.Duration) *Simulator {
	return &Simulator{delay: delay}
}

// OnResolution registers the callback invoked when a payment resolves.
// It must be set before the first Initiate call.
func (s *Simulator) OnResolution(fn ResolutionFunc) {
	s.complete = fn
}

// Initiate schedules a simulated successful payment. The resolution runs
// on its own goroutine with a fresh context, as a provider callback would.
func (s *Simulator) Initiate(ctx context.Context, phone string, bookingID int64, amount float64) error {
	if s.complete == nil {
		return errors.New("payment: no resolution callback registered")
	}

	logger.Info(ctx, "pay", "stk.initiated",
		slog.Float64("amount", amount),
		slog.Duration("backoff", s.delay),
	)

	txRef := transactionRef()
	time.AfterFunc(s.delay, func() {
		cctx := context.Background()
		cctx = logger.WithPhone(cctx, phone)
		cctx = logger.WithBookingID(cctx, bookingID)
		if err := s.complete(cctx, phone, bookingID, bot.StatusPaid, txRef); err != nil {
			logger.Error(cctx, "pay", "stk.resolution.fail",
				slog.String("tx_ref", txRef),
				slog.String("err", err.Error()),
			)
			return
		}
		logger.Info(cctx, "pay", "stk.resolved",
			slog.String("tx_ref", txRef),
			slog.String("status", "ok"),
		)
	})

	return nil
}

// transactionRef fabricates an M-Pesa style receipt number.
func transactionRef() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "MP" + id[:10]
}
