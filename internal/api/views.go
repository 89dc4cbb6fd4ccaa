package api

import (
	"time"

	"github.com/shopspring/decimal"

	"stock-sim-go/internal/models"
	"stock-sim-go/internal/portfolio"
	"stock-sim-go/internal/quote"
)

// quoteDisplay holds the human-readable rendering of a quote.
type quoteDisplay struct {
	Price             string `json:"price"`
	PreviousClose     string `json:"previous_close"`
	Open              string `json:"open"`
	Change            string `json:"change"`
	ChangePercent     string `json:"change_percent"`
	DayRange          string `json:"day_range"`
	FiftyTwoWeekRange string `json:"fifty_two_week_range"`
	Bid               string `json:"bid"`
	Ask               string `json:"ask"`
	Volume            string `json:"volume"`
	AverageVolume     string `json:"average_volume"`
	MarketCap         string `json:"market_cap"`
	DividendYield     string `json:"dividend_yield"`
	PE                string `json:"pe"`
	Market            string `json:"market"`
}

type quoteView struct {
	quote.Quote
	Display quoteDisplay `json:"display"`
}

func newQuoteView(q quote.Quote) quoteView {
	return quoteView{
		Quote: q,
		Display: quoteDisplay{
			Price:             quote.FormatMoney(q.Price, q.Currency),
			PreviousClose:     quote.FormatMoney(q.PreviousClose, q.Currency),
			Open:              quote.FormatMoney(q.Open, q.Currency),
			Change:            signed(q.Change),
			ChangePercent:     signed(q.ChangePercent) + "%",
			DayRange:          priceRange(q.DayLow, q.DayHigh),
			FiftyTwoWeekRange: priceRange(q.FiftyTwoWeekLow, q.FiftyTwoWeekHigh),
			Bid:               orderBookSide(q.Bid, q.BidSize),
			Ask:               orderBookSide(q.Ask, q.AskSize),
			Volume:            quote.Humanize(decimal.NewFromInt(q.Volume)),
			AverageVolume:     quote.Humanize(decimal.NewFromInt(q.AverageVolume)),
			MarketCap:         quote.Humanize(q.MarketCap),
			DividendYield:     percentOrUnavailable(q.DividendYield),
			PE:                fixedOrUnavailable(q.PE),
			Market:            marketLabel(q.MarketOpen),
		},
	}
}

// signed renders a move with an explicit "+" on gains.
func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func fixedOrUnavailable(d decimal.NullDecimal) string {
	if !d.Valid {
		return quote.Unavailable
	}
	return d.Decimal.StringFixed(2)
}

func percentOrUnavailable(d decimal.NullDecimal) string {
	if !d.Valid {
		return quote.Unavailable
	}
	return d.Decimal.StringFixed(2) + "%"
}

func priceRange(low, high decimal.NullDecimal) string {
	return fixedOrUnavailable(low) + " - " + fixedOrUnavailable(high)
}

func orderBookSide(price decimal.NullDecimal, size quote.Size) string {
	return fixedOrUnavailable(price) + " x " + size.String()
}

func marketLabel(open bool) string {
	if open {
		return "Open"
	}
	return "Closed"
}

type portfolioView struct {
	Currency string              `json:"currency"`
	Holdings []portfolio.Holding `json:"holdings"`
	Totals   portfolio.Totals    `json:"totals"`
	Display  totalsDisplay       `json:"display"`
}

type totalsDisplay struct {
	Cash          string `json:"cash"`
	HoldingsValue string `json:"holdings_value"`
	TotalValue    string `json:"total_value"`
	Performance   string `json:"performance"`
}

func newPortfolioView(s *portfolio.Summary, currency string) portfolioView {
	holdings := s.Holdings
	if holdings == nil {
		holdings = []portfolio.Holding{}
	}
	return portfolioView{
		Currency: currency,
		Holdings: holdings,
		Totals:   s.Totals,
		Display: totalsDisplay{
			Cash:          quote.FormatMoney(s.Totals.Cash, currency),
			HoldingsValue: quote.FormatMoney(s.Totals.HoldingsValue, currency),
			TotalValue:    quote.FormatMoney(s.Totals.TotalValue, currency),
			Performance:   percentOrUnavailable(s.Totals.PerformancePct),
		},
	}
}

type historyEntry struct {
	ID        uint            `json:"id"`
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	Timestamp time.Time       `json:"timestamp"`
}

func newHistoryEntry(t models.Transaction) historyEntry {
	kind, shares := "SELL", -t.Amount
	if t.IsBuy() {
		kind, shares = "BUY", t.Amount
	}
	return historyEntry{
		ID:        t.ID,
		Type:      kind,
		Symbol:    t.Symbol,
		Shares:    shares,
		Price:     t.Price,
		Total:     t.Total(),
		Timestamp: t.Timestamp,
	}
}
