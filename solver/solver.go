// Package solver implements the External-Solver Bridge of
// SPEC_FULL.md §4.9: it renders a bounded temporal-constraint problem
// to a solver input file, invokes an external constraint solver as a
// subprocess with a timeout, parses its JSON result, and lifts the
// solution back onto an *stn.STN.
//
// Grounded on itsneelabh-gomind/core/circuit_breaker.go's
// ExecuteWithTimeout shape (context-bounded external call with a
// distinguishable timeout error) applied to an os/exec subprocess
// instead of a network call.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/config"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
)

// Variable is one decision variable of the rendered model: a
// time point's offset from a shared origin, bounded by [0, Horizon].
type Variable struct {
	Name string
}

// Problem is the bounded temporal-constraint problem handed to the
// external solver: every STN time point becomes an integer decision
// variable, every finite STN bound becomes a difference constraint.
type Problem struct {
	Variables []Variable
	Horizon   float64
	Net       *stn.STN
	// toOriginal maps a sanitized solver variable name back to its
	// real STN time point name, since point names may contain
	// characters (like '.') a solver identifier can't.
	toOriginal map[string]string
}

// BuildProblem derives a Problem from net, validating every bound
// against opts.MaxBoundAbs before any subprocess is spawned
// (spec.md §4.9's fail-fast bound cap).
func BuildProblem(net *stn.STN, opts config.BridgeOptions) (*Problem, error) {
	vars := make([]Variable, 0)
	toOriginal := make(map[string]string)
	for _, p := range net.TimePoints() {
		name := sanitizeVarName(p)
		vars = append(vars, Variable{Name: name})
		toOriginal[name] = p
	}
	for _, p := range net.TimePoints() {
		for _, q := range net.TimePoints() {
			if p == q {
				continue
			}
			b := net.GetConstraint(p, q)
			for _, bound := range []float64{b.Min, b.Max} {
				if bound != 0 && !isInf(bound) && abs(bound) > opts.MaxBoundAbs {
					return nil, fmt.Errorf("%w: bound %v on (%s,%s) exceeds cap %v", errs.ErrOutOfBounds, bound, p, q, opts.MaxBoundAbs)
				}
			}
		}
	}
	return &Problem{Variables: vars, Horizon: opts.MaxBoundAbs, Net: net, toOriginal: toOriginal}, nil
}

func isInf(f float64) bool { return f > 1e18 || f < -1e18 }
func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func sanitizeVarName(p string) string {
	var b strings.Builder
	for _, r := range p {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// RenderModel serializes p into a MiniZinc-style .mzn text model: one
// integer variable per time point and one difference constraint per
// finite STN bound.
func RenderModel(p *Problem) string {
	var b strings.Builder
	for _, v := range p.Variables {
		fmt.Fprintf(&b, "var 0..%d: %s;\n", int64(p.Horizon), v.Name)
	}
	points := p.Net.TimePoints()
	for _, a := range points {
		for _, c := range points {
			if a == c {
				continue
			}
			bound := p.Net.GetConstraint(a, c)
			if !isInf(bound.Max) {
				fmt.Fprintf(&b, "constraint %s - %s <= %d;\n", sanitizeVarName(c), sanitizeVarName(a), int64(bound.Max))
			}
			if !isInf(bound.Min) {
				fmt.Fprintf(&b, "constraint %s - %s >= %d;\n", sanitizeVarName(c), sanitizeVarName(a), int64(bound.Min))
			}
		}
	}
	b.WriteString("solve satisfy;\n")
	return b.String()
}

// Assignment is the lifted solution: time point name -> assigned
// offset.
type Assignment map[string]float64

// solverJSON is the shape an external solver prints to stdout
// (array-of-solutions JSON stream, last line authoritative, matching
// MiniZinc's --output-mode json convention).
type solverJSON struct {
	Assignment map[string]float64 `json:"assignment"`
	Status     string              `json:"status"`
}

// Solve renders p, writes it to a temp file, invokes opts.Binary as a
// subprocess bounded by opts.Timeout, and parses its JSON result.
// Returns errs.ErrSolverTimeout if the subprocess is killed by the
// deadline, or errs.ErrSolverError on any other non-zero exit or
// malformed output.
func Solve(ctx context.Context, p *Problem, opts config.BridgeOptions) (Assignment, error) {
	model := RenderModel(p)

	tmp, err := os.CreateTemp("", "stn-model-*.mzn")
	if err != nil {
		return nil, fmt.Errorf("%w: creating model file: %v", errs.ErrSolverError, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(model); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: writing model file: %v", errs.ErrSolverError, err)
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, opts.Binary, "--solver", opts.SolverID, "--output-mode", "json", tmp.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: solver exceeded %v", errs.ErrSolverTimeout, opts.Timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: solver exited with error: %v (stderr: %s)", errs.ErrSolverError, err, stderr.String())
	}

	return parseResult(stdout.Bytes(), p)
}

func parseResult(out []byte, p *Problem) (Assignment, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			last = lines[i]
			break
		}
	}
	if last == "" {
		return nil, fmt.Errorf("%w: solver produced no output", errs.ErrSolverError)
	}
	var parsed solverJSON
	if err := json.Unmarshal([]byte(last), &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed solver output: %v", errs.ErrSolverError, err)
	}
	if parsed.Status != "" && !strings.EqualFold(parsed.Status, "SATISFIED") && !strings.EqualFold(parsed.Status, "OPTIMAL_SOLUTION") {
		return nil, fmt.Errorf("%w: solver reported status %q", errs.ErrSolverError, parsed.Status)
	}
	if parsed.Assignment == nil {
		return nil, fmt.Errorf("%w: solver output missing assignment", errs.ErrSolverError)
	}
	out2 := make(Assignment, len(parsed.Assignment))
	for sanitized, offset := range parsed.Assignment {
		original, ok := p.toOriginal[sanitized]
		if !ok {
			original = sanitized
		}
		out2[original] = offset
	}
	return out2, nil
}

// LiftBack asserts each assigned time point's offset as a zero-width
// constraint against a synthetic "origin" point on net, fixing the
// network to the solver's chosen schedule. Assignment keys must
// already be real STN time point names (as returned by Solve, which
// translates solver-sanitized identifiers back via Problem.toOriginal).
func LiftBack(net *stn.STN, assignment Assignment) error {
	if len(assignment) == 0 {
		return errors.New("solver: empty assignment")
	}
	net.AddTimePoint("origin")
	for name, offset := range assignment {
		if err := net.AddConstraint("origin", name, stn.Bound{Min: offset, Max: offset}); err != nil {
			return fmt.Errorf("%w: lifting %q back onto network: %v", errs.ErrSolverError, name, err)
		}
	}
	return nil
}
