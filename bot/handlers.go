package bot

import (
	"context"
	"strconv"
	"strings"

	"hotelbot/core/logger"

	"log/slog"
)

// locationNames maps the numbered menu in locationMenuMessage; indices
// are 1-based from the user's perspective.
var locationNames = []string{"nairobi", "mombasa", "kisumu", "nakuru", "eldoret"}

func (e *Engine) handleWelcome(ctx context.Context, phone, text string, cc convContext) (result, error) {
	return transition(StateBrowseHotels, convContext{}, welcomeMessage), nil
}

func (e *Engine) handleBrowseHotels(ctx context.Context, phone, text string, cc convContext) (result, error) {
	switch strings.TrimSpace(text) {
	case "1":
		return transition(StateSelectHotel, convContext{Step: stepLocation}, locationMenuMessage), nil
	case "2":
		return transition(StateSelectHotel, convContext{Step: stepSearch}, searchPromptMessage), nil
	case "3":
		return transition(StateWelcome, convContext{}, handoffMessage), nil
	default:
		return stay(menuRetryMessage), nil
	}
}

func (e *Engine) handleSelectHotel(ctx context.Context, phone, text string, cc convContext) (result, error) {
	text = strings.TrimSpace(strings.ToLower(text))

	var (
		query  string
		hotels []Hotel
		err    error
	)

	switch cc.Step {
	case stepLocation:
		if n, convErr := strconv.Atoi(text); convErr == nil && n >= 1 && n <= len(locationNames) {
			query = locationNames[n-1]
		} else {
			query = text
		}
		hotels, err = e.deps.Catalog.SearchByLocation(ctx, query)
	case stepSearch:
		query = text
		hotels, err = e.deps.Catalog.SearchByName(ctx, query)
	default:
		// Context lost its step marker; restart the dialog.
		return transition(StateBrowseHotels, convContext{}, invalidStepMessage, welcomeMessage), nil
	}

	if err != nil {
		return result{}, err
	}

	if len(hotels) == 0 {
		logger.Info(ctx, "bot", "catalog.empty",
			slog.String("payload", query),
		)
		return transition(StateWelcome, convContext{}, noHotelsMessage(cc.Step, query)), nil
	}

	logger.Debug(ctx, "bot", "catalog.results",
		slog.String("payload", query),
		slog.Int("count", len(hotels)),
	)
	next := convContext{
		Hotels:       hotels,
		PreviousStep: cc.Step,
		Query:        query,
	}
	return transition(StateSelectDates, next, hotelListMessage(cc.Step, query, hotels)), nil
}

func (e *Engine) handleSelectDates(ctx context.Context, phone, text string, cc convContext) (result, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || idx < 1 || idx > len(cc.Hotels) {
		return stay(invalidHotelMessage), nil
	}

	selected := cc.Hotels[idx-1]
	logger.Debug(ctx, "bot", "hotel.selected",
		slog.Int64("hotel_id", selected.ID),
	)
	next := convContext{
		SelectedHotel: &selected,
		Step:          stepDatesInput,
	}
	return transition(StateConfirmBooking, next, dateRequestMessage(&selected)), nil
}

func (e *Engine) handleConfirmBooking(ctx context.Context, phone, text string, cc convContext) (result, error) {
	if cc.Step != stepDatesInput || cc.SelectedHotel == nil {
		return stay(confirmOrCancelMessage), nil
	}

	details := ParseBookingDetails(text)
	if !details.Valid {
		return stay(badDetailsMessage), nil
	}

	nights := CalculateNights(details.CheckIn, details.CheckOut)
	if nights <= 0 {
		return stay(badDateRangeMessage), nil
	}

	hotel := cc.SelectedHotel
	total := hotel.PricePerNight * float64(nights)

	logger.Info(ctx, "bot", "booking.quoted",
		slog.Int64("hotel_id", hotel.ID),
		slog.Int("nights", nights),
		slog.Int("guests", details.Guests),
		slog.Float64("amount", total),
	)

	next := convContext{
		SelectedHotel:  hotel,
		BookingDetails: &details,
		TotalAmount:    total,
		Nights:         nights,
	}
	return transition(StatePayment, next, bookingSummaryMessage(hotel, details, nights, total)), nil
}

func (e *Engine) handlePayment(ctx context.Context, phone, text string, cc convContext) (result, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "confirm":
		return e.confirmPayment(ctx, phone, cc)
	case "cancel":
		return transition(StateWelcome, convContext{}, cancelledMessage), nil
	default:
		return stay(paymentRetryMessage), nil
	}
}

// confirmPayment creates the pending booking and kicks off the payment.
// A second "confirm" while one is already in flight must not create a
// second booking.
func (e *Engine) confirmPayment(ctx context.Context, phone string, cc convContext) (result, error) {
	if cc.BookingID != 0 {
		logger.Warn(ctx, "bot", "booking.duplicate_confirm",
			slog.Int64("booking_id", cc.BookingID),
		)
		return stay(paymentPendingMessage), nil
	}
	if cc.SelectedHotel == nil || cc.BookingDetails == nil {
		return stay(paymentRetryMessage), nil
	}

	booking := &Booking{
		PhoneNumber: phone,
		HotelID:     cc.SelectedHotel.ID,
		CheckIn:     cc.BookingDetails.CheckIn,
		CheckOut:    cc.BookingDetails.CheckOut,
		Guests:      cc.BookingDetails.Guests,
		TotalAmount: cc.TotalAmount,
		Status:      StatusPending,
	}
	id, err := e.deps.Bookings.Create(ctx, booking)
	if err != nil {
		return result{}, err
	}

	ctx = logger.WithBookingID(ctx, id)
	logger.Info(ctx, "bot", "booking.created",
		slog.Int64("hotel_id", cc.SelectedHotel.ID),
		slog.Float64("amount", cc.TotalAmount),
	)

	cc.BookingID = id
	res := transition(StatePayment, cc, paymentRequestMessage(phone, cc.TotalAmount, id))

	if err := e.deps.Payments.Initiate(ctx, phone, id, cc.TotalAmount); err != nil {
		logger.Error(ctx, "bot", "payment.initiate.fail",
			slog.String("err", err.Error()),
		)
		if uerr := e.deps.Bookings.UpdateStatus(ctx, id, StatusFailed, ""); uerr != nil {
			logger.Error(ctx, "bot", "payment.record.fail",
				slog.String("err", uerr.Error()),
			)
		}
		cc.BookingID = 0
		return transition(StatePayment, cc, paymentInitFailMessage), nil
	}

	return res, nil
}
