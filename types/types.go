// Package types holds the primitive identifiers and units shared by every
// other package in the simulator.
package types

import (
	"github.com/rotisserie/eris"
)

// ReceiptID uniquely identifies one receipt within a single run. IDs are
// issued monotonically and issuance order is significant: the scheduler
// dispatches ready receipts in issuance order, and dependency lists may only
// reference earlier IDs.
type ReceiptID uint64

// Gas is an abstract compute-cost budget. It bounds how much work a call
// tree may perform before the run forces an out-of-gas failure.
type Gas uint64

// Balance is an account's token balance, also used for attached deposits.
type Balance uint64

const (
	// DefaultGas is the prepaid gas attached to a call when the caller does
	// not specify one.
	DefaultGas Gas = 300_000_000_000_000

	// MockDispatchGas is the fixed overhead charged when a registered mock
	// handler replaces real execution for a receipt.
	MockDispatchGas Gas = 1_000_000_000
)

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

// AccountID identifies an account. A valid id is 2-64 characters of
// lowercase alphanumerics split by single '.', '-' or '_' separators.
type AccountID string

// ParseAccountID validates raw and returns it as an AccountID.
func ParseAccountID(raw string) (AccountID, error) {
	id := AccountID(raw)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate reports whether the id is well-formed.
func (a AccountID) Validate() error {
	if len(a) < minAccountIDLen || len(a) > maxAccountIDLen {
		return eris.Errorf("invalid account id %q: length must be %d-%d", string(a), minAccountIDLen, maxAccountIDLen)
	}
	lastWasSeparator := true // a leading separator is invalid
	for i := 0; i < len(a); i++ {
		c := a[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			lastWasSeparator = false
		case c == '.' || c == '-' || c == '_':
			if lastWasSeparator {
				return eris.Errorf("invalid account id %q: separators must split alphanumeric parts", string(a))
			}
			lastWasSeparator = true
		default:
			return eris.Errorf("invalid account id %q: unexpected character %q", string(a), c)
		}
	}
	if lastWasSeparator {
		return eris.Errorf("invalid account id %q: cannot end with a separator", string(a))
	}
	return nil
}

func (a AccountID) String() string {
	return string(a)
}
