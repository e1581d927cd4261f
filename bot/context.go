package bot

import (
	"context"
	"encoding/json"

	"hotelbot/core/logger"
)

// Step values inside the conversation context.
const (
	stepLocation   = "location"
	stepSearch     = "search"
	stepDatesInput = "dates_input"
)

// convContext is the JSON payload stored alongside the conversation state.
// All fields are optional; each state reads only the fields it needs.
type convContext struct {
	Step           string          `json:"step,omitempty"`
	Hotels         []Hotel         `json:"hotels,omitempty"`
	PreviousStep   string          `json:"previousStep,omitempty"`
	Query          string          `json:"query,omitempty"`
	SelectedHotel  *Hotel          `json:"selectedHotel,omitempty"`
	BookingDetails *BookingDetails `json:"bookingDetails,omitempty"`
	TotalAmount    float64         `json:"totalAmount,omitempty"`
	Nights         int             `json:"nights,omitempty"`
	BookingID      int64           `json:"bookingId,omitempty"`
}

// decodeContext parses the stored context JSON. Malformed or empty data
// yields an empty context so a conversation can always recover.
func decodeContext(ctx context.Context, raw []byte) convContext {
	var cc convContext
	if len(raw) == 0 {
		return cc
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		logger.Warn(ctx, "bot", "context.repair")
		return convContext{}
	}
	return cc
}

func encodeContext(cc convContext) []byte {
	raw, err := json.Marshal(cc)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

var emptyContext = []byte("{}")
