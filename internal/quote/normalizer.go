package quote

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Normalizer turns raw provider snapshots into Quotes.
type Normalizer struct {
	provider        Provider
	calendar        *Calendar
	logger          *zap.Logger
	defaultCurrency string
	now             func() time.Time
}

// NewNormalizer creates a Normalizer. defaultCurrency is used when the provider
// omits the currency field.
func NewNormalizer(provider Provider, calendar *Calendar, defaultCurrency string, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		provider:        provider,
		calendar:        calendar,
		logger:          logger.Named("quote"),
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// FetchQuote fetches and normalizes the current quote for symbol.
// The caller is responsible for rejecting empty symbols.
func (n *Normalizer) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	l := n.logger.With(zap.String("symbol", symbol))

	snap, err := n.provider.GetSnapshot(ctx, symbol)
	if err != nil {
		var qerr *Error
		switch {
		case errors.As(err, &qerr):
			l.Warn("Provider rejected quote request", zap.Error(err))
			return Quote{}, err
		case errors.Is(err, ErrNotFound):
			l.Info("Symbol not found")
			return Quote{}, &Error{Symbol: symbol, Err: ErrNotFound, Cause: err}
		default:
			l.Error("Market data provider failed", zap.Error(err))
			return Quote{}, &Error{Symbol: symbol, Err: ErrProviderUnavailable, Cause: err}
		}
	}

	now := n.now()
	q, err := n.normalize(symbol, snap, now)
	if err != nil {
		l.Warn("Could not normalize quote", zap.Error(err))
		return Quote{}, err
	}
	return q, nil
}

// IsMarketOpen evaluates the calendar at now.
func (n *Normalizer) IsMarketOpen(now time.Time) bool {
	return n.calendar.IsOpen(now)
}

func (n *Normalizer) normalize(symbol string, snap Snapshot, now time.Time) (Quote, error) {
	missing := func(field string) error {
		return &Error{Symbol: symbol, Field: field, Err: ErrMissingData}
	}

	price, ok := number(snap, FieldCurrentPrice)
	if !ok {
		return Quote{}, missing(FieldCurrentPrice)
	}
	prevClose, ok := number(snap, FieldPreviousClose)
	if !ok {
		return Quote{}, missing(FieldPreviousClose)
	}
	open, ok := number(snap, FieldOpen)
	if !ok {
		return Quote{}, missing(FieldOpen)
	}
	volume, ok := integer(snap, FieldVolume)
	if !ok {
		return Quote{}, missing(FieldVolume)
	}
	avgVolume, ok := integer(snap, FieldAverageVolume)
	if !ok {
		return Quote{}, missing(FieldAverageVolume)
	}
	marketCap, ok := number(snap, FieldMarketCap)
	if !ok {
		return Quote{}, missing(FieldMarketCap)
	}
	name, ok := text(snap, FieldLongName)
	if !ok {
		return Quote{}, missing(FieldLongName)
	}

	price = price.Round(2)
	prevClose = prevClose.Round(2)
	if prevClose.IsZero() {
		return Quote{}, &Error{Symbol: symbol, Field: FieldPreviousClose, Err: ErrDivision}
	}
	change := price.Sub(prevClose).Round(2)
	changePct := change.Div(prevClose).Mul(hundred).Round(2)

	q := Quote{
		Symbol:        symbol,
		CompanyName:   name,
		Currency:      n.defaultCurrency,
		Price:         price,
		PreviousClose: prevClose,
		Open:          open.Round(2),
		Change:        change,
		ChangePercent: changePct,
		Direction:     Direction(change.Sign()),

		DayHigh:          optionalPrice(snap, FieldDayHigh),
		DayLow:           optionalPrice(snap, FieldDayLow),
		Bid:              optionalPrice(snap, FieldBid),
		BidSize:          optionalSize(snap, FieldBidSize),
		Ask:              optionalPrice(snap, FieldAsk),
		AskSize:          optionalSize(snap, FieldAskSize),
		FiftyTwoWeekHigh: optionalPrice(snap, FieldFiftyTwoWeekHigh),
		FiftyTwoWeekLow:  optionalPrice(snap, FieldFiftyTwoWeekLow),
		DividendYield:    firstNumber(snap, FieldDividendYield, FieldTrailingDividendYield),
		PE:               firstNumber(snap, FieldTrailingPE, FieldForwardPE),

		Volume:        volume,
		AverageVolume: avgVolume,
		MarketCap:     marketCap,

		MarketOpen: n.calendar.IsOpen(now),
		FetchedAt:  now,
	}
	if cur, ok := text(snap, FieldCurrency); ok {
		q.Currency = NormalizeCurrency(cur)
	}
	if code, ok := text(snap, FieldExchange); ok {
		q.Exchange = code
		q.ExchangeName = ExchangeName(code)
	}
	return q, nil
}

// number extracts a numeric field. Strings and other types count as absent.
func number(snap Snapshot, field string) (decimal.Decimal, bool) {
	switch v := snap[field].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case decimal.Decimal:
		return v, true
	default:
		return decimal.Decimal{}, false
	}
}

func integer(snap Snapshot, field string) (int64, bool) {
	d, ok := number(snap, field)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	return d.IntPart(), true
}

func text(snap Snapshot, field string) (string, bool) {
	s, ok := snap[field].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func optionalPrice(snap Snapshot, field string) decimal.NullDecimal {
	d, ok := number(snap, field)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Round(2))
}

func optionalSize(snap Snapshot, field string) Size {
	v, ok := integer(snap, field)
	if !ok {
		return Size{}
	}
	return Size{Value: v, Valid: true}
}

// firstNumber returns the first present field in order, or an invalid value.
func firstNumber(snap Snapshot, fields ...string) decimal.NullDecimal {
	for _, f := range fields {
		if d, ok := number(snap, f); ok {
			return decimal.NewNullDecimal(d)
		}
	}
	return decimal.NullDecimal{}
}
