package bot

import (
	"strconv"
	"strings"
)

// ParseBookingDetails extracts check-in, check-out and guest count from a
// free-form message. Expected shape, one field per line:
//
//	Check-in date: DD/MM/YYYY
//	Check-out date: DD/MM/YYYY
//	Number of guests: X
//
// Labels are matched case-insensitively; when a label repeats, the last
// occurrence wins. The result is valid only when both dates are present
// and the guest count is a positive integer.
func ParseBookingDetails(message string) BookingDetails {
	var details BookingDetails

	for _, line := range strings.Split(message, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "check-in date:"):
			details.CheckIn = valueAfterColon(line)
		case strings.Contains(lower, "check-out date:"):
			details.CheckOut = valueAfterColon(line)
		case strings.Contains(lower, "number of guests:"):
			details.Guests = leadingInt(valueAfterColon(line))
		}
	}

	details.Valid = details.CheckIn != "" && details.CheckOut != "" && details.Guests > 0
	return details
}

func valueAfterColon(line string) string {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(after)
}

// leadingInt parses the leading decimal digits of s, ignoring any trailing
// text, so inputs like "2 adults" still yield 2.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
