package portfolio

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"stock-sim-go/internal/models"
	"stock-sim-go/internal/quote"
)

// ErrMissingQuote is returned when a held symbol has no quote.
var ErrMissingQuote = errors.New("no quote for held symbol")

var hundred = decimal.NewFromInt(100)

// Holding is a derived open position valued at the current quote.
type Holding struct {
	Symbol            string              `json:"symbol"`
	Name              string              `json:"name"`
	NetShares         int64               `json:"net_shares"`
	AverageCost       decimal.Decimal     `json:"average_cost"`
	CurrentPrice      decimal.Decimal     `json:"current_price"`
	CurrentValue      decimal.Decimal     `json:"current_value"`
	TotalInvestment   decimal.Decimal     `json:"total_investment"`
	UnrealizedGain    decimal.Decimal     `json:"unrealized_gain"`
	UnrealizedGainPct decimal.NullDecimal `json:"unrealized_gain_pct"`
}

// Totals summarizes a portfolio. PerformancePct is invalid when nothing is held.
type Totals struct {
	Cash           decimal.Decimal     `json:"cash"`
	HoldingsValue  decimal.Decimal     `json:"holdings_value"`
	TotalValue     decimal.Decimal     `json:"total_value"`
	Performance    decimal.Decimal     `json:"performance"`
	PerformancePct decimal.NullDecimal `json:"performance_pct"`
}

// Summary is the result of Aggregate.
type Summary struct {
	Holdings []Holding `json:"holdings"`
	Totals   Totals    `json:"totals"`
}

type group struct {
	net       int64
	boughtQty int64
	boughtAmt decimal.Decimal
}

func groupLedger(ledger []models.Transaction) map[string]*group {
	groups := make(map[string]*group)
	for _, t := range ledger {
		g, ok := groups[t.Symbol]
		if !ok {
			g = &group{}
			groups[t.Symbol] = g
		}
		g.net += t.Amount
		if t.IsBuy() {
			g.boughtQty += t.Amount
			g.boughtAmt = g.boughtAmt.Add(t.Price.Mul(decimal.NewFromInt(t.Amount)))
		}
	}
	return groups
}

// NetPositions sums share amounts per symbol. Closed and over-sold symbols are
// included with their (zero or negative) sums.
func NetPositions(ledger []models.Transaction) map[string]int64 {
	net := make(map[string]int64)
	for _, t := range ledger {
		net[t.Symbol] += t.Amount
	}
	return net
}

// HeldSymbols returns, sorted, the symbols with a positive net position.
func HeldSymbols(ledger []models.Transaction) []string {
	var symbols []string
	for symbol, n := range NetPositions(ledger) {
		if n > 0 {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Aggregate values the ledger against quotes. Symbols whose net position is
// zero or negative are omitted. The average cost is taken over buys only.
func Aggregate(ledger []models.Transaction, quotes map[string]quote.Quote, cash decimal.Decimal) (Summary, error) {
	groups := groupLedger(ledger)

	symbols := make([]string, 0, len(groups))
	for symbol, g := range groups {
		if g.net > 0 {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)

	summary := Summary{Holdings: make([]Holding, 0, len(symbols))}
	holdingsValue := decimal.Zero
	performance := decimal.Zero

	for _, symbol := range symbols {
		g := groups[symbol]
		q, ok := quotes[symbol]
		if !ok {
			return Summary{}, fmt.Errorf("%w: %s", ErrMissingQuote, symbol)
		}

		shares := decimal.NewFromInt(g.net)
		avgCost := decimal.Zero
		if g.boughtQty > 0 {
			avgCost = g.boughtAmt.Div(decimal.NewFromInt(g.boughtQty))
		}

		h := Holding{
			Symbol:          symbol,
			Name:            q.CompanyName,
			NetShares:       g.net,
			AverageCost:     avgCost.Round(4),
			CurrentPrice:    q.Price,
			CurrentValue:    shares.Mul(q.Price),
			TotalInvestment: shares.Mul(avgCost).Round(4),
		}
		h.UnrealizedGain = h.CurrentValue.Sub(h.TotalInvestment)
		h.UnrealizedGainPct = percentOf(h.UnrealizedGain, h.TotalInvestment)

		holdingsValue = holdingsValue.Add(h.CurrentValue)
		performance = performance.Add(h.UnrealizedGain)
		summary.Holdings = append(summary.Holdings, h)
	}

	summary.Totals = Totals{
		Cash:           cash,
		HoldingsValue:  holdingsValue,
		TotalValue:     cash.Add(holdingsValue),
		Performance:    performance,
		PerformancePct: percentOf(performance, holdingsValue),
	}
	return summary, nil
}

// percentOf returns part/whole*100 rounded to 2 places, or an invalid value
// when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.NullDecimal {
	if whole.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(part.Div(whole).Mul(hundred).Round(2))
}
