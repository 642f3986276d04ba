package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pip sizes per quote currency
const (
	PipJPY     = 0.01
	PipDefault = 0.0001
)

// Maximum UTF-8 size of an order comment crossing the wire
const MaxCommentBytes = 240

// PipSize returns the pip increment for an instrument.
// JPY-quoted pairs use 0.01, everything else 0.0001.
func PipSize(instrument string) float64 {
	if strings.HasSuffix(strings.ToUpper(instrument), "JPY") {
		return PipJPY
	}
	return PipDefault
}

// PricePrecision returns the decimal precision used on the wire for an instrument
func PricePrecision(instrument string) int {
	if PipSize(instrument) == PipJPY {
		return 3
	}
	return 5
}

// RoundToInstrument rounds a price to the instrument's wire precision
func RoundToInstrument(instrument string, price float64) float64 {
	scale := math.Pow10(PricePrecision(instrument))
	return math.Round(price*scale) / scale
}

// FormatPrice renders a price as the decimal string sent to the broker
func FormatPrice(instrument string, price float64) string {
	return strconv.FormatFloat(RoundToInstrument(instrument, price), 'f', PricePrecision(instrument), 64)
}

// ParsePrice parses a broker decimal price string
func ParsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return v, nil
}

// PipsToPrice converts a pip distance to price units for an instrument
func PipsToPrice(instrument string, pips float64) float64 {
	return pips * PipSize(instrument)
}

// PriceToPips converts a price distance to pips for an instrument
func PriceToPips(instrument string, price float64) float64 {
	return price / PipSize(instrument)
}

// OrderComment is the JSON payload attached to every child order
type OrderComment struct {
	PositionID string    `json:"position_id"`
	UUID       string    `json:"uuid,omitempty"`
	Mode       TradeMode `json:"mode"`
}

// Encode serializes the comment and enforces the wire size limit
func (c OrderComment) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	if len(data) > MaxCommentBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrCommentTooLarge, len(data))
	}
	return string(data), nil
}

// DecodeOrderComment parses a child-order comment
func DecodeOrderComment(s string) (OrderComment, error) {
	var c OrderComment
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return OrderComment{}, fmt.Errorf("invalid order comment: %w", err)
	}
	return c, nil
}
