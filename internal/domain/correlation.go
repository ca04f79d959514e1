package domain

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Correlation is round-tripped through the payment processor so that a
// notification can be matched back to the order that started it.
type Correlation struct {
	OrderID  int64
	OrderKey string
}

// Encode renders the correlation as a two element JSON array: [id, "key"].
func (c Correlation) Encode() (string, error) {
	b, err := json.Marshal([]any{c.OrderID, c.OrderKey})
	if err != nil {
		return "", fmt.Errorf("encode correlation for order %d: %w", c.OrderID, err)
	}
	return string(b), nil
}

// DecodeCorrelation accepts exactly [positive integer, non-empty string].
func DecodeCorrelation(data string) (Correlation, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(data), &parts); err != nil {
		return Correlation{}, fmt.Errorf("%w: correlation is not an array: %v", ErrMalformedPayload, err)
	}
	if len(parts) != 2 {
		return Correlation{}, fmt.Errorf("%w: correlation has %d elements, want 2", ErrMalformedPayload, len(parts))
	}

	var c Correlation
	if err := json.Unmarshal(parts[0], &c.OrderID); err != nil || c.OrderID <= 0 {
		return Correlation{}, fmt.Errorf("%w: invalid order id %s", ErrMalformedPayload, string(parts[0]))
	}
	if err := json.Unmarshal(parts[1], &c.OrderKey); err != nil || c.OrderKey == "" {
		return Correlation{}, fmt.Errorf("%w: invalid order key", ErrMalformedPayload)
	}
	return c, nil
}
