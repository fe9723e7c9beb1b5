package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is one of the two binary resolution states of a market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Token is one tradable outcome token of a market.
type Token struct {
	ID      int64               `json:"id"`
	TokenID string              `json:"tokenId"`
	Outcome string              `json:"outcome"`
	Price   decimal.NullDecimal `json:"price"`
}

// Market represents a prediction market as served by the backend.
type Market struct {
	ID              int64               `json:"id"`
	ExternalID      string              `json:"externalId"`
	ConditionID     string              `json:"conditionId"`
	EventID         *int64              `json:"eventId,omitempty"`
	EventTitle      string              `json:"eventTitle"`
	Question        string              `json:"question"`
	Description     string              `json:"description"`
	Image           string              `json:"image"`
	OutcomeYesPrice decimal.Decimal     `json:"outcomeYesPrice"`
	OutcomeNoPrice  decimal.Decimal     `json:"outcomeNoPrice"`
	Volume          decimal.NullDecimal `json:"volume"`
	Liquidity       decimal.NullDecimal `json:"liquidity"`
	Active          bool                `json:"active"`
	Closed          bool                `json:"closed"`
	Tokens          []Token             `json:"tokens,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Tradable reports whether the market currently accepts orders.
func (m Market) Tradable() bool {
	return m.Active && !m.Closed
}

// OutcomePrice returns the current price of the given outcome.
func (m Market) OutcomePrice(o Outcome) decimal.Decimal {
	if o == OutcomeNo {
		return m.OutcomeNoPrice
	}
	return m.OutcomeYesPrice
}

// Event groups one or more related markets.
type Event struct {
	ID          int64      `json:"id"`
	ExternalID  string     `json:"externalId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Slug        string     `json:"slug"`
	Image       string     `json:"image"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Active      bool       `json:"active"`
	Featured    bool       `json:"featured"`
	MarketCount int        `json:"marketCount"`
	Markets     []Market   `json:"markets,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// MarketFilter narrows a market listing.
type MarketFilter struct {
	EventID      *int64
	Active       *bool
	Closed       *bool
	Search       string
	VolumeMin    *float64
	VolumeMax    *float64
	LiquidityMin *float64
	LiquidityMax *float64
	CreatedAtMin *time.Time
	CreatedAtMax *time.Time
	UpdatedAtMin *time.Time
	UpdatedAtMax *time.Time
	Page         Page
}

// EventFilter narrows an event listing.
type EventFilter struct {
	Active *bool
	Search string
	Page   Page
}

// SyncResult is returned when an event sync job is queued.
type SyncResult struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// DedupeMarkets keeps the most recently updated copy of each market id and
// orders the result by UpdatedAt desc, then ID desc.
func DedupeMarkets(markets []Market) []Market {
	latest := make(map[int64]Market, len(markets))
	for _, m := range markets {
		if cur, ok := latest[m.ID]; !ok || m.UpdatedAt.After(cur.UpdatedAt) {
			latest[m.ID] = m
		}
	}
	out := make([]Market, 0, len(latest))
	for _, m := range latest {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
