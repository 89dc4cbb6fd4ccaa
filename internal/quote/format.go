package quote

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var (
	thousand          = decimal.NewFromInt(1000)
	magnitudeSuffixes = []string{"", "K", "M", "B", "T"}
)

// Humanize abbreviates large numbers: 1234567 -> "1.23M". It stops at T.
func Humanize(v decimal.Decimal) string {
	magnitude := 0
	for v.Abs().GreaterThanOrEqual(thousand) && magnitude < len(magnitudeSuffixes)-1 {
		v = v.Div(thousand)
		magnitude++
	}
	return v.StringFixed(2) + magnitudeSuffixes[magnitude]
}

// minorUnits are provider codes quoting prices in a subunit of an ISO currency.
// Their case is significant: GBp is pence, GBP is pounds.
var minorUnits = map[string]struct {
	major   string
	divisor decimal.Decimal
}{
	"GBp": {"GBP", decimal.NewFromInt(100)},
	"GBX": {"GBP", decimal.NewFromInt(100)},
	"ZAc": {"ZAR", decimal.NewFromInt(100)},
	"ILA": {"ILS", decimal.NewFromInt(100)},
}

// NormalizeCurrency uppercases an ISO code but keeps minor-unit codes as sent.
func NormalizeCurrency(code string) string {
	code = strings.TrimSpace(code)
	if _, ok := minorUnits[code]; ok {
		return code
	}
	return strings.ToUpper(code)
}

// FormatMoney renders an amount in the given currency, e.g. "$1,234.50".
// Minor-unit amounts are converted to the major currency first.
func FormatMoney(v decimal.Decimal, currency string) string {
	if unit, ok := minorUnits[currency]; ok {
		v = v.Div(unit.divisor)
		currency = unit.major
	}
	m := money.New(0, currency)
	cur := m.Currency()
	return cur.Formatter().Format(v.Shift(int32(cur.Fraction)).Round(0).IntPart())
}

var exchangeNames = map[string]string{
	"NMS":  "NASDAQ Stock Market",
	"NGM":  "NASDAQ Global Market",
	"NCM":  "NASDAQ Capital Market",
	"NYQ":  "New York Stock Exchange (NYSE)",
	"ASE":  "NYSE American",
	"PCX":  "NYSE Arca",
	"BATS": "Cboe BZX",
	"TOR":  "Toronto Stock Exchange (TSX)",
	"LSE":  "London Stock Exchange (LSE)",
	"HKG":  "Hong Kong Stock Exchange",
	"JPX":  "Tokyo Stock Exchange",
	"SHZ":  "Shenzhen Stock Exchange",
	"SES":  "Singapore Exchange",
	"ASX":  "Australian Securities Exchange",
	"GER":  "Deutsche Boerse Xetra",
	"FRA":  "Frankfurt Stock Exchange",
}

// ExchangeName maps a provider exchange code to a display name. Unknown codes
// are returned unchanged.
func ExchangeName(code string) string {
	if name, ok := exchangeNames[code]; ok {
		return name
	}
	return code
}
