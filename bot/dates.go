package bot

import (
	"math"
	"time"
)

// bookingDateLayout accepts DD/MM/YYYY with or without leading zeros.
const bookingDateLayout = "2/1/2006"

// CalculateNights returns the number of nights between two DD/MM/YYYY
// dates, rounding partial days up. It returns 0 when either date is
// unparseable or check-out is not strictly after check-in.
func CalculateNights(checkIn, checkOut string) int {
	start, err := time.Parse(bookingDateLayout, checkIn)
	if err != nil {
		return 0
	}
	end, err := time.Parse(bookingDateLayout, checkOut)
	if err != nil {
		return 0
	}
	if !end.After(start) {
		return 0
	}

	const day = 24 * time.Hour
	return int(math.Ceil(float64(end.Sub(start)) / float64(day)))
}
