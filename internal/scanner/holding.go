package scanner

import (
	"time"

	"github.com/mgriffes/redscan/internal/ledger"
)

// HoldingState classifies a symbol against the holding-period
// threshold. One model serves both the rebuy gate and the exit
// enforcer: a symbol is either unknown to the ledger, inside its
// holding period (blocks rebuy), or past it (eligible for exit and
// for rebuy).
type HoldingState int

const (
	HoldingNone HoldingState = iota
	HoldingHeld
	HoldingExitEligible
)

func (s HoldingState) String() string {
	switch s {
	case HoldingHeld:
		return "held"
	case HoldingExitEligible:
		return "exit_eligible"
	default:
		return "no_position"
	}
}

// HoldingInfo describes a symbol's holding state.
type HoldingInfo struct {
	State  HoldingState
	Record ledger.Record // latest BUY; zero unless State != HoldingNone
	Held   time.Duration
	// Remaining is the time left inside the holding period; zero once
	// the symbol is exit-eligible.
	Remaining time.Duration
}

// EvaluateHolding computes the holding state of a symbol from its most
// recent BUY record.
func EvaluateHolding(l *ledger.Ledger, symbol string, now time.Time, threshold time.Duration) HoldingInfo {
	rec, found := l.LatestBuy(symbol)
	if !found {
		return HoldingInfo{State: HoldingNone}
	}

	held := now.Sub(rec.PurchasedAt)
	if held < threshold {
		return HoldingInfo{
			State:     HoldingHeld,
			Record:    rec,
			Held:      held,
			Remaining: threshold - held,
		}
	}

	return HoldingInfo{
		State:  HoldingExitEligible,
		Record: rec,
		Held:   held,
	}
}
