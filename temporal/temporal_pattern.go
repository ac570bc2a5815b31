package temporal

import (
	"fmt"
	"time"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
)

// TemporalPattern is spec.md §3's tuple of optional (start, end,
// duration): exactly which of the three are set selects one of eight
// recognized patterns, each with its own derivation rule.
type TemporalPattern struct {
	Start    *time.Time
	End      *time.Time
	Duration *time.Duration
}

// Derived holds whichever of start/end/duration the pattern resolves
// to; unset fields remain nil (e.g. an instant action resolves to
// nothing concrete — it is schedulable at any time).
type Derived struct {
	Start    *time.Time
	End      *time.Time
	Duration *time.Duration
}

// Derive applies spec.md §3's eight-row derivation table to p.
func (p TemporalPattern) Derive() (Derived, error) {
	switch {
	case p.Start == nil && p.End == nil && p.Duration == nil:
		// Instant action, schedulable at any time.
		return Derived{}, nil
	case p.Start == nil && p.End == nil && p.Duration != nil:
		// Floating: planner chooses start; end = start + duration.
		return Derived{Duration: p.Duration}, nil
	case p.Start == nil && p.End != nil && p.Duration == nil:
		// Deadline only: end fixed, start unconstrained but <= end.
		return Derived{End: p.End}, nil
	case p.Start == nil && p.End != nil && p.Duration != nil:
		// Derived start = end - duration.
		start := p.End.Add(-*p.Duration)
		return Derived{Start: &start, End: p.End, Duration: p.Duration}, nil
	case p.Start != nil && p.End == nil && p.Duration == nil:
		// Open end: start fixed, end unconstrained but >= start.
		return Derived{Start: p.Start}, nil
	case p.Start != nil && p.End == nil && p.Duration != nil:
		// Derived end = start + duration.
		end := p.Start.Add(*p.Duration)
		return Derived{Start: p.Start, End: &end, Duration: p.Duration}, nil
	case p.Start != nil && p.End != nil && p.Duration == nil:
		// Fixed interval: duration = end - start.
		d := p.End.Sub(*p.Start)
		return Derived{Start: p.Start, End: p.End, Duration: &d}, nil
	default:
		// Validated: start + duration must equal end; else ill-formed.
		d := p.End.Sub(*p.Start)
		if d != *p.Duration {
			return Derived{}, fmt.Errorf("%w: ill-formed temporal pattern: start+duration (%v) != end (%v)", errs.ErrInvalidInput, p.Start.Add(*p.Duration), *p.End)
		}
		return Derived{Start: p.Start, End: p.End, Duration: p.Duration}, nil
	}
}

// ComposeIntoSTN registers startPoint/endPoint on net and asserts
// whatever bound d's pattern implies between them: a pinned
// (duration, duration) interval when a duration is known, an
// unbounded-but-ordered (0, +inf) precedence when only one anchor is
// known, or nothing for a fully unconstrained instant action.
func ComposeIntoSTN(net *stn.STN, startPoint, endPoint string, d Derived) error {
	net.AddTimePoint(startPoint)
	net.AddTimePoint(endPoint)
	if d.Duration != nil {
		sec := d.Duration.Seconds()
		return net.AddConstraint(startPoint, endPoint, stn.Bound{Min: sec, Max: sec})
	}
	if d.Start != nil || d.End != nil {
		return net.AddConstraint(startPoint, endPoint, stn.Bound{Min: 0, Max: stn.MaxAbsBound})
	}
	return nil
}
