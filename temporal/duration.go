// Package temporal implements SPEC_FULL.md §4.4's Temporal
// Specifications: a tagged-variant Duration type, an action-duration
// and constraint table, ISO-8601 parsing, temporal-pattern derivation,
// and execution-pattern lowering onto an *stn.STN.
//
// ISO-8601 parsing follows a regex-based
// P[n]Y[n]M[n]W[n]DT[n]H[n]M[n]S parser pattern, narrowed to the
// P[n]DT[n]H[n]M[n]S subset: days plus hours/minutes/seconds, with a
// day counted as 24 hours (no calendar-length Y/M/W components).
package temporal

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
)

var iso8601Regex = regexp.MustCompile(
	`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`,
)

// ParseISO8601 parses an ISO-8601 duration of the form
// P[n]DT[n]H[n]M[n]S into a time.Duration. An empty string is an
// error, matching spec.md §8's scenario 6 expectations.
func ParseISO8601(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty ISO-8601 duration", errs.ErrInvalidInput)
	}
	matches := iso8601Regex.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: invalid ISO-8601 duration %q", errs.ErrInvalidInput, s)
	}
	days := parseIntOrZero(matches[1])
	hours := parseIntOrZero(matches[2])
	minutes := parseIntOrZero(matches[3])
	seconds := parseIntOrZero(matches[4])

	if days == 0 && hours == 0 && minutes == 0 && seconds == 0 {
		return 0, fmt.Errorf("%w: empty ISO-8601 duration %q", errs.ErrInvalidInput, s)
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	return d, nil
}

func parseIntOrZero(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// Kind tags a Duration's variant.
type Kind int

const (
	Fixed Kind = iota
	Variable
	Conditional
	ResourceDependent
)

func (k Kind) String() string {
	switch k {
	case Fixed:
		return "fixed"
	case Variable:
		return "variable"
	case Conditional:
		return "conditional"
	case ResourceDependent:
		return "resource_dependent"
	default:
		return "unknown"
	}
}

// defaultConditionalDuration is the "default constant 1" fallback
// spec.md §4.4 specifies for a Conditional duration when no condition
// key is satisfied by the current state.
const defaultConditionalDuration = time.Second

// Duration is the tagged variant of spec.md §3/§4.4: exactly one
// group of fields is meaningful, selected by Kind.
type Duration struct {
	Kind Kind

	// Fixed
	Fixed time.Duration

	// Variable
	Min time.Duration
	Max time.Duration

	// Conditional: ConditionOrder lists the condition keys in the
	// order they should be tested (map iteration in Go is unordered,
	// so the declared priority has to live somewhere); Conditions
	// holds the duration each key resolves to.
	ConditionOrder []string
	Conditions     map[string]time.Duration

	// ResourceDependent: Base divided by the allocated resource's
	// efficiency, looked up by resource id/quality key in
	// EfficiencyMap.
	Base          time.Duration
	ResourceType  string
	EfficiencyMap map[string]float64
}

// NewFixed builds a Fixed-kind Duration.
func NewFixed(d time.Duration) Duration {
	return Duration{Kind: Fixed, Fixed: d}
}

// NewVariable builds a Variable-kind Duration bounded by [min, max].
func NewVariable(min, max time.Duration) Duration {
	return Duration{Kind: Variable, Min: min, Max: max}
}

// NewConditional builds a Conditional-kind Duration. order declares
// the priority in which condition keys are tested; conditions maps
// each key to the duration it resolves to.
func NewConditional(order []string, conditions map[string]time.Duration) Duration {
	return Duration{Kind: Conditional, ConditionOrder: order, Conditions: conditions}
}

// NewResourceDependent builds a ResourceDependent-kind Duration:
// base divided by the efficiency the assigned resource looks up to in
// efficiencyMap.
func NewResourceDependent(resourceType string, base time.Duration, efficiencyMap map[string]float64) Duration {
	return Duration{Kind: ResourceDependent, ResourceType: resourceType, Base: base, EfficiencyMap: efficiencyMap}
}

// Validate checks d's shape is well-formed for its Kind (spec.md
// §4.4's validate(duration)).
func Validate(d Duration) error {
	switch d.Kind {
	case Fixed:
		if d.Fixed < 0 {
			return fmt.Errorf("%w: fixed duration must be non-negative", errs.ErrInvalidInput)
		}
	case Variable:
		if d.Min < 0 || d.Max < d.Min {
			return fmt.Errorf("%w: variable duration requires 0 <= min <= max", errs.ErrInvalidInput)
		}
	case Conditional:
		if len(d.Conditions) == 0 {
			return fmt.Errorf("%w: conditional duration requires at least one condition", errs.ErrInvalidInput)
		}
	case ResourceDependent:
		if d.Base < 0 || len(d.EfficiencyMap) == 0 {
			return fmt.Errorf("%w: resource-dependent duration requires a non-negative base and a non-empty efficiency map", errs.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown duration kind %v", errs.ErrInvalidInput, d.Kind)
	}
	return nil
}

// truthy reports whether a fact value should be treated as a satisfied
// condition: present, non-nil, not boolean false, not the zero value
// of its underlying comparable type.
func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}

// Calculate resolves d to a concrete time.Duration given the current
// state's facts and the resource id assigned to the action (used only
// by ResourceDependent; pass "" when no resource has been allocated).
// Variable durations resolve deterministically to their midpoint
// (DESIGN.md "Open Question decisions": reproducible planning over
// randomized sampling).
func Calculate(d Duration, facts map[string]interface{}, resourceID string) (time.Duration, error) {
	switch d.Kind {
	case Fixed:
		return d.Fixed, nil
	case Variable:
		if d.Min > d.Max {
			return 0, fmt.Errorf("%w: variable duration min %v > max %v", errs.ErrInvalidInput, d.Min, d.Max)
		}
		return d.Min + (d.Max-d.Min)/2, nil
	case Conditional:
		for _, key := range d.ConditionOrder {
			if truthy(facts[key]) {
				if dur, ok := d.Conditions[key]; ok {
					return dur, nil
				}
			}
		}
		// No condition key in priority order matched the current
		// state (or ConditionOrder was left empty): fall back to the
		// documented default constant rather than erroring.
		return defaultConditionalDuration, nil
	case ResourceDependent:
		efficiency, ok := d.EfficiencyMap[resourceID]
		if !ok || efficiency <= 0 {
			return 0, fmt.Errorf("%w: no efficiency entry for resource %q", errs.ErrInvalidInput, resourceID)
		}
		return time.Duration(float64(d.Base) / efficiency), nil
	default:
		return 0, fmt.Errorf("%w: unknown duration kind %v", errs.ErrInvalidInput, d.Kind)
	}
}
