// models/payment_status.go
package models

import "time"

// AttemptState tracks one logical payment attempt.
type AttemptState int

const (
	AttemptCreated AttemptState = iota
	AttemptSigned
	AttemptSubmitted
	AttemptSucceeded
	AttemptFailed
)

func (s AttemptState) String() string {
	switch s {
	case AttemptCreated:
		return "CREATED"
	case AttemptSigned:
		return "SIGNED"
	case AttemptSubmitted:
		return "SUBMITTED"
	case AttemptSucceeded:
		return "SUCCEEDED"
	case AttemptFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s AttemptState) IsValid() bool {
	return s >= AttemptCreated && s <= AttemptFailed
}

func (s AttemptState) IsTerminal() bool {
	return s == AttemptSucceeded || s == AttemptFailed
}

// ParseAttemptState is the inverse of String.
func ParseAttemptState(v string) (AttemptState, bool) {
	for s := AttemptCreated; s <= AttemptFailed; s++ {
		if s.String() == v {
			return s, true
		}
	}
	return 0, false
}

// CanTransition reports whether from -> to is allowed. Simulated attempts are
// never signed and go straight from CREATED to SUBMITTED.
func (s AttemptState) CanTransition(to AttemptState, simulated bool) bool {
	switch s {
	case AttemptCreated:
		return to == AttemptSigned || to == AttemptFailed || (simulated && to == AttemptSubmitted)
	case AttemptSigned:
		return to == AttemptSubmitted || to == AttemptFailed
	case AttemptSubmitted:
		return to == AttemptSucceeded || to == AttemptFailed
	default:
		return false
	}
}

// AttemptRecord is one state transition as reported to a journal.
type AttemptRecord struct {
	MerchantOID string
	Operation   string
	State       AttemptState
	Simulated   bool
	Amount      int64
	Currency    string
	ErrorKind   string
	UpdatedAt   time.Time
}
