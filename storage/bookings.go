package storage

import (
	"context"
	"fmt"

	"hotelbot/bot"

	"github.com/jmoiron/sqlx"
)

// Bookings records reservations and their payment status.
type Bookings struct {
	db *sqlx.DB
}

func NewBookings(db *sqlx.DB) *Bookings {
	return &Bookings{db: db}
}

// Create inserts a booking and returns its generated id.
func (b *Bookings) Create(ctx context.Context, booking *bot.Booking) (int64, error) {
	var id int64
	err := b.db.QueryRowContext(ctx,
		`INSERT INTO bookings
		   (phone_number, hotel_id, check_in, check_out, guests, total_amount, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		booking.PhoneNumber,
		booking.HotelID,
		booking.CheckIn,
		booking.CheckOut,
		booking.Guests,
		booking.TotalAmount,
		string(booking.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create booking: %w", err)
	}
	return id, nil
}

// UpdateStatus sets the payment status and transaction reference. An
// empty txRef is stored as NULL.
func (b *Bookings) UpdateStatus(ctx context.Context, id int64, status bot.BookingStatus, txRef string) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE bookings
		 SET status = $2, transaction_ref = NULLIF($3, ''), updated_at = NOW()
		 WHERE id = $1`, id, string(status), txRef)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update booking status: no booking with id %d", id)
	}
	return nil
}
