package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hotelbot/bot"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Hotels reads the hotel catalog.
type Hotels struct {
	db *sqlx.DB
}

func NewHotels(db *sqlx.DB) *Hotels {
	return &Hotels{db: db}
}

type hotelRow struct {
	ID            int64          `db:"id"`
	Name          string         `db:"name"`
	Location      string         `db:"location"`
	PricePerNight float64        `db:"price_per_night"`
	Rating        float64        `db:"rating"`
	Amenities     pq.StringArray `db:"amenities"`
}

const hotelColumns = `id, name, location, price_per_night, rating, amenities`

// SearchByLocation returns up to 10 hotels whose location matches the
// query, case-insensitively.
func (h *Hotels) SearchByLocation(ctx context.Context, location string) ([]bot.Hotel, error) {
	var rows []hotelRow
	err := h.db.SelectContext(ctx, &rows,
		`SELECT `+hotelColumns+`
		 FROM hotels
		 WHERE location ILIKE '%' || $1 || '%'
		 ORDER BY rating DESC, id
		 LIMIT 10`, location)
	if err != nil {
		return nil, fmt.Errorf("search hotels by location: %w", err)
	}
	return toHotels(rows), nil
}

// SearchByName returns up to 10 hotels whose name matches the query,
// case-insensitively.
func (h *Hotels) SearchByName(ctx context.Context, name string) ([]bot.Hotel, error) {
	var rows []hotelRow
	err := h.db.SelectContext(ctx, &rows,
		`SELECT `+hotelColumns+`
		 FROM hotels
		 WHERE name ILIKE '%' || $1 || '%'
		 ORDER BY rating DESC, id
		 LIMIT 10`, name)
	if err != nil {
		return nil, fmt.Errorf("search hotels by name: %w", err)
	}
	return toHotels(rows), nil
}

// GetByID fetches a single hotel, or (nil, nil) when it does not exist.
func (h *Hotels) GetByID(ctx context.Context, id int64) (*bot.Hotel, error) {
	var row hotelRow
	err := h.db.GetContext(ctx, &row,
		`SELECT `+hotelColumns+` FROM hotels WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hotel: %w", err)
	}
	hotel := row.toDomain()
	return &hotel, nil
}

func toHotels(rows []hotelRow) []bot.Hotel {
	hotels := make([]bot.Hotel, 0, len(rows))
	for _, r := range rows {
		hotels = append(hotels, r.toDomain())
	}
	return hotels
}

func (r hotelRow) toDomain() bot.Hotel {
	return bot.Hotel{
		ID:            r.ID,
		Name:          r.Name,
		Location:      r.Location,
		PricePerNight: r.PricePerNight,
		Rating:        r.Rating,
		Amenities:     []string(r.Amenities),
	}
}
