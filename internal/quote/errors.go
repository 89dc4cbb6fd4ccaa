package quote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the provider does not know the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrMissingData means a required field was absent or unusable.
	ErrMissingData = errors.New("missing quote data")
	// ErrDivision means the previous close was zero.
	ErrDivision = errors.New("previous close is zero")
	// ErrProviderUnavailable covers transport failures and timeouts.
	ErrProviderUnavailable = errors.New("market data provider unavailable")
)

// Error carries the symbol (and field, when relevant) of a failed lookup.
// It unwraps to one of the sentinel errors above and to the underlying cause.
type Error struct {
	Symbol string
	Field  string
	Err    error
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("quote %s: %v", e.Symbol, e.Err)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
