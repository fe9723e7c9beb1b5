package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

const (
	quantityPlaces = 8
	pricePlaces    = 2
)

// ParsedOrder is a validated OrderForm with its numbers parsed.
type ParsedOrder struct {
	MarketID int64
	Side     domain.OrderSide
	Type     domain.OrderType
	Outcome  domain.Outcome
	Quantity decimal.NullDecimal
	Amount   decimal.NullDecimal
	Price    decimal.NullDecimal
}

// ParseOrderForm validates f without touching the network. Every problem is
// reported in a single *domain.ValidationError.
func ParseOrderForm(f domain.OrderForm) (ParsedOrder, error) {
	var problems []string
	p := ParsedOrder{
		MarketID: f.MarketID,
		Side:     domain.OrderSide(strings.ToUpper(string(f.Side))),
		Type:     domain.OrderType(strings.ToUpper(string(f.Type))),
		Outcome:  domain.Outcome(strings.ToUpper(string(f.Outcome))),
	}

	if p.MarketID <= 0 {
		problems = append(problems, "market is required")
	}
	if !p.Side.Valid() {
		problems = append(problems, "side must be BUY or SELL")
	}
	if !p.Type.Valid() {
		problems = append(problems, "type must be MARKET or LIMIT")
	}
	if !p.Outcome.Valid() {
		problems = append(problems, "outcome must be YES or NO")
	}

	qty, qtyErr := parsePositive(f.Quantity)
	amt, amtErr := parsePositive(f.Amount)
	switch {
	case f.Quantity != "" && f.Amount != "":
		problems = append(problems, "provide either quantity or amount, not both")
	case f.Amount != "":
		if amtErr != "" {
			problems = append(problems, "amount "+amtErr)
		}
		if p.Side == domain.OrderSideSell {
			problems = append(problems, "amount is only valid for BUY orders")
		}
		p.Amount = amt
	case f.Quantity != "":
		if qtyErr != "" {
			problems = append(problems, "quantity "+qtyErr)
		}
		p.Quantity = qty
	default:
		problems = append(problems, "quantity or amount is required")
	}

	switch {
	case p.Type == domain.OrderTypeLimit && f.Price == "":
		problems = append(problems, "price is required for LIMIT orders")
	case p.Type != domain.OrderTypeLimit && f.Price != "":
		problems = append(problems, "price is only valid for LIMIT orders")
	case f.Price != "":
		price, err := decimal.NewFromString(strings.TrimSpace(f.Price))
		if err != nil || !price.IsPositive() || price.GreaterThan(decimal.NewFromInt(1)) {
			problems = append(problems, "price must be greater than 0 and at most 1")
		} else {
			p.Price = decimal.NewNullDecimal(price)
		}
	}

	if len(problems) > 0 {
		return ParsedOrder{}, &domain.ValidationError{Problems: problems}
	}
	return p, nil
}

func parsePositive(s string) (decimal.NullDecimal, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, "is required"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, "must be a number"
	}
	if !d.IsPositive() {
		return decimal.NullDecimal{}, "must be greater than 0"
	}
	return decimal.NewNullDecimal(d), ""
}

// resolve fills in quantity and price from the market for spend-amount
// orders and returns the amount of collateral a BUY will spend.
func (p *ParsedOrder) resolve(m domain.Market) (decimal.Decimal, error) {
	outcomePrice := m.OutcomePrice(p.Outcome)

	if p.Amount.Valid {
		if !outcomePrice.IsPositive() {
			return decimal.Zero, &domain.ValidationError{Problems: []string{"outcome price unavailable for this market"}}
		}
		p.Quantity = decimal.NewNullDecimal(p.Amount.Decimal.DivRound(outcomePrice, quantityPlaces))
		if p.Type == domain.OrderTypeLimit {
			p.Price = decimal.NewNullDecimal(outcomePrice.Round(pricePlaces))
		}
		return p.Amount.Decimal, nil
	}

	unit := outcomePrice
	if p.Price.Valid {
		unit = p.Price.Decimal
	}
	return p.Quantity.Decimal.Mul(unit), nil
}

func (p ParsedOrder) message(nonce string) OrderMessage {
	m := OrderMessage{
		MarketID: p.MarketID,
		Side:     p.Side,
		Type:     p.Type,
		Outcome:  p.Outcome,
		Nonce:    nonce,
	}
	if p.Amount.Valid {
		m.Amount = p.Amount.Decimal.String()
	} else if p.Quantity.Valid {
		m.Quantity = p.Quantity.Decimal.String()
	}
	if p.Price.Valid {
		m.Price = p.Price.Decimal.String()
	}
	return m
}
