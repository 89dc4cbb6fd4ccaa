package quote

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical snapshot keys. Providers translate their own field names to these.
const (
	FieldCurrentPrice          = "currentPrice"
	FieldPreviousClose         = "previousClose"
	FieldOpen                  = "open"
	FieldDayHigh               = "dayHigh"
	FieldDayLow                = "dayLow"
	FieldBid                   = "bid"
	FieldBidSize               = "bidSize"
	FieldAsk                   = "ask"
	FieldAskSize               = "askSize"
	FieldVolume                = "volume"
	FieldAverageVolume         = "averageVolume"
	FieldMarketCap             = "marketCap"
	FieldLongName              = "longName"
	FieldDividendYield         = "dividendYield"
	FieldTrailingDividendYield = "trailingAnnualDividendYield"
	FieldTrailingPE            = "trailingPE"
	FieldForwardPE             = "forwardPE"
	FieldFiftyTwoWeekHigh      = "fiftyTwoWeekHigh"
	FieldFiftyTwoWeekLow       = "fiftyTwoWeekLow"
	FieldCurrency              = "currency"
	FieldExchange              = "exchange"
)

// Snapshot is the raw, loosely typed record returned by a provider.
// Any key may be missing.
type Snapshot map[string]any

// Provider fetches a raw snapshot for one symbol.
type Provider interface {
	GetSnapshot(ctx context.Context, symbol string) (Snapshot, error)
}

// Direction is the sign of a price move.
type Direction int

const (
	Down Direction = -1
	Flat Direction = 0
	Up   Direction = 1
)

// String returns the presentation class for the direction.
func (d Direction) String() string {
	switch d {
	case Up:
		return "positive"
	case Down:
		return "negative"
	default:
		return "neutral"
	}
}

// MarshalJSON encodes the direction as its class name.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Unavailable is the marker rendered for fields the provider did not supply.
const Unavailable = "N/A"

// Size is an order-book size. Zero is a legitimate value, so absence is
// tracked separately.
type Size struct {
	Value int64
	Valid bool
}

func (s Size) String() string {
	if !s.Valid {
		return Unavailable
	}
	return strconv.FormatInt(s.Value, 10)
}

// MarshalJSON encodes a missing size as "N/A" and a present one as a number.
func (s Size) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return json.Marshal(Unavailable)
	}
	return json.Marshal(s.Value)
}

// Quote is a normalized point-in-time snapshot of a symbol.
type Quote struct {
	Symbol       string `json:"symbol"`
	CompanyName  string `json:"company_name"`
	Exchange     string `json:"exchange,omitempty"`
	ExchangeName string `json:"exchange_name,omitempty"`
	Currency     string `json:"currency"`

	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Open          decimal.Decimal `json:"open"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Direction     Direction       `json:"direction"`

	DayHigh          decimal.NullDecimal `json:"day_high"`
	DayLow           decimal.NullDecimal `json:"day_low"`
	Bid              decimal.NullDecimal `json:"bid"`
	BidSize          Size                `json:"bid_size"`
	Ask              decimal.NullDecimal `json:"ask"`
	AskSize          Size                `json:"ask_size"`
	FiftyTwoWeekHigh decimal.NullDecimal `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  decimal.NullDecimal `json:"fifty_two_week_low"`
	DividendYield    decimal.NullDecimal `json:"dividend_yield"`
	PE               decimal.NullDecimal `json:"pe"`

	Volume        int64           `json:"volume"`
	AverageVolume int64           `json:"average_volume"`
	MarketCap     decimal.Decimal `json:"market_cap"`

	MarketOpen bool      `json:"market_open"`
	FetchedAt  time.Time `json:"fetched_at"`
}
