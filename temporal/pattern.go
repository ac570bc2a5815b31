package temporal

import (
	"fmt"
	"time"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
)

// Pattern names the execution relationships spec.md §4.4 lowers onto
// STN constraints between a set of steps' start/end time points.
type Pattern string

const (
	Sequential  Pattern = "sequential"
	Parallel    Pattern = "parallel"
	Overlapping Pattern = "overlapping"
	Pipeline    Pattern = "pipeline"
)

// Step is one durative action being scheduled, identified by the start
// and end time points it contributes to the network.
type Step struct {
	Name       string
	StartPoint string
	EndPoint   string
	Duration   time.Duration
}

// LowerExecutionPattern asserts the STN constraints implied by
// pattern over steps, in the order given, onto net (SPEC_FULL.md §12's
// supplemented execution-pattern lowering):
//
//   - Sequential: each step's end precedes the next step's start
//     (zero-or-positive gap), and each step's own (end - start) is
//     pinned to its Duration.
//   - Parallel: every step starts at the same time point (zero-gap
//     start-to-start), each running its own duration independently.
//   - Overlapping: each step may start any time from zero up to the
//     previous step's duration after that step started (bounded lag),
//     permitting partial overlap without requiring full
//     synchronization.
//   - Pipeline: each step's start is offset from the previous step's
//     start by exactly that previous step's duration, producing a
//     staggered assembly-line schedule.
func LowerExecutionPattern(net *stn.STN, pattern Pattern, steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: no steps to lower", errs.ErrInvalidInput)
	}
	for _, st := range steps {
		sec := st.Duration.Seconds()
		if err := net.AddConstraint(st.StartPoint, st.EndPoint, stn.Bound{Min: sec, Max: sec}); err != nil {
			return err
		}
	}
	if len(steps) == 1 {
		return nil
	}

	switch pattern {
	case Sequential:
		for i := 0; i+1 < len(steps); i++ {
			if err := net.AddConstraint(steps[i].EndPoint, steps[i+1].StartPoint, stn.Bound{Min: 0, Max: stn.MaxAbsBound}); err != nil {
				return err
			}
		}
	case Parallel:
		for i := 1; i < len(steps); i++ {
			if err := net.AddConstraint(steps[0].StartPoint, steps[i].StartPoint, stn.Bound{Min: 0, Max: 0}); err != nil {
				return err
			}
		}
	case Overlapping:
		for i := 0; i+1 < len(steps); i++ {
			maxLag := steps[i].Duration.Seconds()
			if err := net.AddConstraint(steps[i].StartPoint, steps[i+1].StartPoint, stn.Bound{Min: 0, Max: maxLag}); err != nil {
				return err
			}
		}
	case Pipeline:
		for i := 0; i+1 < len(steps); i++ {
			offset := steps[i].Duration.Seconds()
			if err := net.AddConstraint(steps[i].StartPoint, steps[i+1].StartPoint, stn.Bound{Min: offset, Max: offset}); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown execution pattern %q", errs.ErrInvalidInput, pattern)
	}
	return nil
}
