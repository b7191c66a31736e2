package orders

import "fmt"

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusDeclined, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// Terminal: no transition leaves these states.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// CheckTransition enforces the monotonic lifecycle: pending is the only
// source state and never a target.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from != StatusPending || to == StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
