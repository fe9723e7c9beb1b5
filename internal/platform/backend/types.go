package backend

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so responses
// work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexInt unmarshals a JSON number, numeric string, or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexDecimal unmarshals a decimal from a string, a number, or null/empty.
type flexDecimal struct {
	decimal.NullDecimal
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		f.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	return f.NullDecimal.UnmarshalJSON(data)
}

func (f flexDecimal) orZero() decimal.Decimal {
	if !f.Valid {
		return decimal.Zero
	}
	return f.Decimal
}

// --------------------------------------------------------------------------
// Market / event DTOs
// --------------------------------------------------------------------------

// APIToken is an outcome token attached to a market.
type APIToken struct {
	ID      flexInt     `json:"id"`
	TokenID string      `json:"tokenId"`
	Outcome string      `json:"outcome"`
	Price   flexDecimal `json:"price"`
}

// APIMarket represents a market as returned by the backend.
type APIMarket struct {
	ID              flexInt     `json:"id"`
	ExternalID      string      `json:"externalId"`
	ConditionID     string      `json:"conditionId"`
	EventID         *flexInt    `json:"eventId"`
	EventTitle      string      `json:"eventTitle"`
	Question        string      `json:"question"`
	Description     string      `json:"description"`
	Image           string      `json:"image"`
	OutcomeYesPrice flexDecimal `json:"outcomeYesPrice"`
	OutcomeNoPrice  flexDecimal `json:"outcomeNoPrice"`
	Volume          flexDecimal `json:"volume"`
	Liquidity       flexDecimal `json:"liquidity"`
	Active          flexBool    `json:"active"`
	Closed          flexBool    `json:"closed"`
	Tokens          []APIToken  `json:"tokens"`
	CreatedAt       string      `json:"createdAt"`
	UpdatedAt       string      `json:"updatedAt"`
}

// ToDomainMarket converts an APIMarket to a domain.Market.
func (m APIMarket) ToDomainMarket() domain.Market {
	out := domain.Market{
		ID:              int64(m.ID),
		ExternalID:      m.ExternalID,
		ConditionID:     m.ConditionID,
		EventTitle:      m.EventTitle,
		Question:        m.Question,
		Description:     m.Description,
		Image:           m.Image,
		OutcomeYesPrice: m.OutcomeYesPrice.orZero(),
		OutcomeNoPrice:  m.OutcomeNoPrice.orZero(),
		Volume:          m.Volume.NullDecimal,
		Liquidity:       m.Liquidity.NullDecimal,
		Active:          bool(m.Active),
		Closed:          bool(m.Closed),
		CreatedAt:       parseTime(m.CreatedAt),
		UpdatedAt:       parseTime(m.UpdatedAt),
	}
	if m.EventID != nil && *m.EventID != 0 {
		id := int64(*m.EventID)
		out.EventID = &id
	}
	for _, t := range m.Tokens {
		out.Tokens = append(out.Tokens, domain.Token{
			ID:      int64(t.ID),
			TokenID: t.TokenID,
			Outcome: t.Outcome,
			Price:   t.Price.NullDecimal,
		})
	}
	return out
}

// APIEvent represents an event as returned by the backend. An event groups
// one or more related markets.
type APIEvent struct {
	ID          flexInt     `json:"id"`
	ExternalID  string      `json:"externalId"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Slug        string      `json:"slug"`
	Image       string      `json:"image"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Active      flexBool    `json:"active"`
	Featured    flexBool    `json:"featured"`
	MarketCount int         `json:"marketCount"`
	Markets     []APIMarket `json:"markets"`
	CreatedAt   string      `json:"createdAt"`
	UpdatedAt   string      `json:"updatedAt"`
}

// ToDomainEvent converts an APIEvent to a domain.Event.
func (e APIEvent) ToDomainEvent() domain.Event {
	out := domain.Event{
		ID:          int64(e.ID),
		ExternalID:  e.ExternalID,
		Title:       e.Title,
		Description: e.Description,
		Slug:        e.Slug,
		Image:       e.Image,
		StartDate:   parseTimePtr(e.StartDate),
		EndDate:     parseTimePtr(e.EndDate),
		Active:      bool(e.Active),
		Featured:    bool(e.Featured),
		MarketCount: e.MarketCount,
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}
	for i := range e.Markets {
		out.Markets = append(out.Markets, e.Markets[i].ToDomainMarket())
	}
	if out.MarketCount == 0 {
		out.MarketCount = len(out.Markets)
	}
	return out
}

// --------------------------------------------------------------------------
// Order DTOs
// --------------------------------------------------------------------------

// APIOrder represents an order as returned by the backend.
type APIOrder struct {
	ID               flexInt              `json:"id"`
	IdempotencyKey   string               `json:"idempotencyKey"`
	MarketID         flexInt              `json:"marketId"`
	Market           *APIMarket           `json:"market"`
	Side             string               `json:"side"`
	Type             string               `json:"type"`
	Outcome          string               `json:"outcome"`
	Quantity         flexDecimal          `json:"quantity"`
	Price            flexDecimal          `json:"price"`
	Status           string               `json:"status"`
	FilledQuantity   flexDecimal          `json:"filledQuantity"`
	AverageFillPrice flexDecimal          `json:"averageFillPrice"`
	ExternalOrderID  string               `json:"externalOrderId"`
	FailureReason    domain.FailureReason `json:"failureReason"`
	CreatedAt        string               `json:"createdAt"`
	UpdatedAt        string               `json:"updatedAt"`
}

// ToDomainOrder converts an APIOrder to a domain.Order.
func (o APIOrder) ToDomainOrder() domain.Order {
	out := domain.Order{
		ID:               int64(o.ID),
		IdempotencyKey:   o.IdempotencyKey,
		MarketID:         int64(o.MarketID),
		Side:             domain.OrderSide(strings.ToUpper(o.Side)),
		Type:             domain.OrderType(strings.ToUpper(o.Type)),
		Outcome:          domain.Outcome(strings.ToUpper(o.Outcome)),
		Quantity:         o.Quantity.orZero(),
		Price:            o.Price.NullDecimal,
		Status:           domain.OrderStatus(strings.ToUpper(o.Status)),
		FilledQuantity:   o.FilledQuantity.orZero(),
		AverageFillPrice: o.AverageFillPrice.NullDecimal,
		ExternalOrderID:  o.ExternalOrderID,
		FailureReason:    o.FailureReason,
		CreatedAt:        parseTime(o.CreatedAt),
		UpdatedAt:        parseTime(o.UpdatedAt),
	}
	if o.Market != nil {
		m := o.Market.ToDomainMarket()
		out.Market = &m
	}
	return out
}

// apiPage is the pagination envelope used by list endpoints.
type apiPage[T any] struct {
	Data []T             `json:"data"`
	Meta domain.PageMeta `json:"meta"`
}

// --------------------------------------------------------------------------
// USDC proxy DTOs
// --------------------------------------------------------------------------

type apiBalance struct {
	Balance flexDecimal `json:"balance"`
	Address string      `json:"address"`
}

type apiAllowance struct {
	Allowance    flexDecimal `json:"allowance"`
	Address      string      `json:"address"`
	ServerWallet string      `json:"serverWallet"`
}

type apiGasEstimate struct {
	EstimatedGasMatic flexDecimal `json:"estimatedGasMatic"`
	EstimatedGasUSD   flexDecimal `json:"estimatedGasUsd"`
	GasPriceGwei      flexDecimal `json:"gasPriceGwei"`
	Note              string      `json:"note"`
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseTimePtr(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
