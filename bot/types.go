package bot

import (
	"context"
	"time"
)

// State identifies a step in the booking conversation.
type State string

const (
	StateWelcome        State = "welcome"
	StateBrowseHotels   State = "browse_hotels"
	StateSelectHotel    State = "select_hotel"
	StateSelectDates    State = "select_dates"
	StateConfirmBooking State = "confirm_booking"
	StatePayment        State = "payment"
	StateCompleted      State = "completed"
)

// BookingStatus tracks the lifecycle of a booking's payment.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusPaid      BookingStatus = "paid"
	StatusFailed    BookingStatus = "failed"
	StatusCancelled BookingStatus = "cancelled"
)

// Conversation is the persisted dialog state for one phone number.
type Conversation struct {
	PhoneNumber  string    `db:"phone_number"`
	CurrentState State     `db:"current_state"`
	Context      []byte    `db:"context"`
	LastActivity time.Time `db:"last_activity"`
}

// Hotel is a bookable property from the catalog. Field tags match the
// shape stored in the conversation context between messages.
type Hotel struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Location      string   `json:"location"`
	PricePerNight float64  `json:"price_per_night"`
	Rating        float64  `json:"rating"`
	Amenities     []string `json:"amenities,omitempty"`
}

// BookingDetails carries the parsed fields of a booking request message.
type BookingDetails struct {
	Valid    bool   `json:"valid"`
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
	Guests   int    `json:"guests"`
}

// Booking is a persisted reservation.
type Booking struct {
	ID             int64
	PhoneNumber    string
	HotelID        int64
	CheckIn        string
	CheckOut       string
	Guests         int
	TotalAmount    float64
	Status         BookingStatus
	TransactionRef string
}

// ConversationStore persists dialog state keyed by phone number.
type ConversationStore interface {
	Get(ctx context.Context, phone string) (*Conversation, error)
	Create(ctx context.Context, phone string) (*Conversation, error)
	Update(ctx context.Context, phone string, state State, contextJSON []byte) error
}

// CatalogLookup provides hotel search and retrieval.
type CatalogLookup interface {
	SearchByLocation(ctx context.Context, location string) ([]Hotel, error)
	SearchByName(ctx context.Context, name string) ([]Hotel, error)
	GetByID(ctx context.Context, id int64) (*Hotel, error)
}

// BookingLedger records bookings and payment outcomes.
type BookingLedger interface {
	Create(ctx context.Context, b *Booking) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status BookingStatus, txRef string) error
}

// Notifier sends outbound text messages to a phone number.
type Notifier interface {
	SendText(ctx context.Context, to, body string) error
}

// PaymentGateway initiates a payment that resolves asynchronously.
type PaymentGateway interface {
	Initiate(ctx context.Context, phone string, bookingID int64, amount float64) error
}
