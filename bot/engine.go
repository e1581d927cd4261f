package bot

import (
	"context"
	"fmt"

	"hotelbot/core/logger"

	"log/slog"
)

// Deps are the collaborators the conversation engine operates on.
type Deps struct {
	Conversations ConversationStore
	Catalog       CatalogLookup
	Bookings      BookingLedger
	Notifier      Notifier
	Payments      PaymentGateway
}

// result is what a state handler produces: optional replies plus an
// optional state/context transition.
type result struct {
	persist bool
	state   State
	cc      convContext
	replies []string
}

func stay(replies ...string) result {
	return result{replies: replies}
}

func transition(state State, cc convContext, replies ...string) result {
	return result{persist: true, state: state, cc: cc, replies: replies}
}

type handlerFunc func(ctx context.Context, phone, text string, cc convContext) (result, error)

// Engine drives the booking dialog. All work for one phone number is
// serialized through a per-phone lock so inbound messages and payment
// callbacks never interleave.
type Engine struct {
	deps     Deps
	locks    *keyedMutex
	handlers map[State]handlerFunc
}

// NewEngine wires the state handlers around the given dependencies.
func NewEngine(deps Deps) *Engine {
	e := &Engine{
		deps:  deps,
		locks: newKeyedMutex(),
	}
	e.handlers = map[State]handlerFunc{
		StateWelcome:        e.handleWelcome,
		StateBrowseHotels:   e.handleBrowseHotels,
		StateSelectHotel:    e.handleSelectHotel,
		StateSelectDates:    e.handleSelectDates,
		StateConfirmBooking: e.handleConfirmBooking,
		StatePayment:        e.handlePayment,
		// A completed conversation restarts from the top.
		StateCompleted: e.handleWelcome,
	}
	return e
}

// HandleMessage processes one inbound text message for a phone number.
// The conversation update is persisted before any reply is sent; reply
// delivery failures are logged but do not fail the message.
func (e *Engine) HandleMessage(ctx context.Context, phone, text string) error {
	unlock := e.locks.Lock(phone)
	defer unlock()

	conv, err := e.deps.Conversations.Get(ctx, phone)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		conv, err = e.deps.Conversations.Create(ctx, phone)
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		logger.Info(ctx, "bot", "conversation.created")
	}

	state := conv.CurrentState
	cc := decodeContext(ctx, conv.Context)

	h, ok := e.handlers[state]
	if !ok {
		logger.Warn(ctx, "bot", "state.unknown",
			slog.String("from_state", string(state)),
		)
		h = e.handleWelcome
	}

	res, err := h(ctx, phone, text, cc)
	if err != nil {
		e.send(ctx, phone, catalogErrorMessage)
		return err
	}

	if res.persist {
		if err := e.deps.Conversations.Update(ctx, phone, res.state, encodeContext(res.cc)); err != nil {
			return fmt.Errorf("persist conversation: %w", err)
		}
		logger.Debug(ctx, "bot", "state.transition",
			slog.String("from_state", string(state)),
			slog.String("to_state", string(res.state)),
		)
	}

	for _, msg := range res.replies {
		e.send(ctx, phone, msg)
	}
	return nil
}

// CompletePayment records an asynchronous payment resolution. The booking
// row is always updated; the conversation only advances to COMPLETED when
// it is still waiting on this exact booking, so a user who cancelled and
// moved on is not yanked into a finished dialog.
func (e *Engine) CompletePayment(ctx context.Context, phone string, bookingID int64, status BookingStatus, txRef string) error {
	unlock := e.locks.Lock(phone)
	defer unlock()

	ctx = logger.WithPhone(ctx, phone)
	ctx = logger.WithBookingID(ctx, bookingID)

	if err := e.deps.Bookings.UpdateStatus(ctx, bookingID, status, txRef); err != nil {
		logger.Error(ctx, "bot", "payment.record.fail",
			slog.String("err", err.Error()),
		)
		e.send(ctx, phone, paymentIssueMessage)
		return err
	}

	conv, err := e.deps.Conversations.Get(ctx, phone)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	waiting := false
	if conv != nil && conv.CurrentState == StatePayment {
		cc := decodeContext(ctx, conv.Context)
		waiting = cc.BookingID == bookingID
	}

	if status != StatusPaid {
		logger.Warn(ctx, "bot", "payment.resolved",
			slog.String("status", "fail"),
			slog.String("tx_ref", txRef),
		)
		if waiting {
			cc := decodeContext(ctx, conv.Context)
			cc.BookingID = 0
			if err := e.deps.Conversations.Update(ctx, phone, StatePayment, encodeContext(cc)); err != nil {
				return fmt.Errorf("persist conversation: %w", err)
			}
		}
		e.send(ctx, phone, paymentFailedMessage)
		return nil
	}

	if waiting {
		if err := e.deps.Conversations.Update(ctx, phone, StateCompleted, emptyContext); err != nil {
			return fmt.Errorf("persist conversation: %w", err)
		}
	} else {
		logger.Warn(ctx, "bot", "payment.conversation.moved_on")
	}

	logger.Info(ctx, "bot", "payment.resolved",
		slog.String("status", "ok"),
		slog.String("tx_ref", txRef),
	)
	e.send(ctx, phone, paymentSuccessMessage(bookingID, txRef))
	return nil
}

func (e *Engine) send(ctx context.Context, phone, body string) {
	if err := e.deps.Notifier.SendText(ctx, phone, body); err != nil {
		logger.Error(ctx, "bot", "notify.fail",
			slog.String("err", err.Error()),
		)
	}
}
