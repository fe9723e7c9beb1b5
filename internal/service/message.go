package service

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

const (
	nonceSuffixLen = 13
	base36         = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// OrderMessage is the set of fields covered by the order signature.
// Amount takes precedence over Quantity; empty optional fields are left out
// of the serialized message.
type OrderMessage struct {
	MarketID int64
	Side     domain.OrderSide
	Type     domain.OrderType
	Outcome  domain.Outcome
	Quantity string
	Amount   string
	Price    string
	Nonce    string
}

// CanonicalMessage serializes m as compact JSON with keys in lexicographic
// order. Absent optional fields are omitted, never null.
func CanonicalMessage(m OrderMessage) (string, error) {
	fields := map[string]any{
		"marketId": m.MarketID,
		"side":     string(m.Side),
		"type":     string(m.Type),
		"outcome":  string(m.Outcome),
		"nonce":    m.Nonce,
	}
	if m.Amount != "" {
		fields["amount"] = m.Amount
	} else {
		fields["quantity"] = m.Quantity
	}
	if m.Price != "" {
		fields["price"] = m.Price
	}

	// encoding/json writes map keys in sorted order.
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("order_message: marshal: %w", err)
	}
	return string(b), nil
}

// NewNonce returns "<unix-ms>-<13 base36 chars>". Uniqueness is
// probabilistic only.
func NewNonce() string {
	return nonceAt(time.Now())
}

func nonceAt(t time.Time) string {
	suffix := make([]byte, nonceSuffixLen)
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	return strconv.FormatInt(t.UnixMilli(), 10) + "-" + string(suffix)
}
