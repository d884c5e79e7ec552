package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrCashNotConserved = errors.New("cash not conserved")

// ConservationCheck verifies that a settlement pass moved total cash by
// exactly the settled deltas plus accrued interest.
type ConservationCheck struct {
	before decimal.Decimal
}

// BeginConservation captures total cash before any effect is applied.
func BeginConservation(totalBefore decimal.Decimal) ConservationCheck {
	return ConservationCheck{before: totalBefore}
}

// Verify compares the observed total against before + settled + interest.
func (c ConservationCheck) Verify(totalAfter, settled, interest decimal.Decimal) error {
	expected := c.before.Add(settled).Add(interest)
	if !expected.Equal(totalAfter) {
		return fmt.Errorf("%w: expected %s, got %s (drift %s)",
			ErrCashNotConserved, expected, totalAfter, totalAfter.Sub(expected))
	}
	return nil
}
