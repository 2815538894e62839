package capacity

import (
	"errors"
	"fmt"
)

// DefaultMaxStores is the global tenant cap.
const DefaultMaxStores = 50

var ErrCapacityExceeded = errors.New("store limit reached")

// Guard enforces a global cap on the number of tenants. The check is advisory:
// callers count tenants before creating one, so concurrent creations can
// briefly overshoot the cap.
type Guard struct {
	max int
}

func NewGuard(max int) *Guard {
	if max <= 0 {
		max = DefaultMaxStores
	}
	return &Guard{max: max}
}

// Max returns the configured cap.
func (g *Guard) Max() int {
	return g.max
}

// Check returns ErrCapacityExceeded when current is at or above the cap.
func (g *Guard) Check(current int) error {
	return Check(current, g.max)
}

// Check returns ErrCapacityExceeded when current >= max.
func Check(current, max int) error {
	if current >= max {
		return fmt.Errorf("%w: %d of %d stores in use", ErrCapacityExceeded, current, max)
	}
	return nil
}
