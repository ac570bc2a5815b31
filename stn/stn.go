// Package stn implements the Simple Temporal Network described in
// SPEC_FULL.md §4.2: a pairwise (min, max) distance-constraint graph
// over time points, with union/chain/split, unit/LOD rescaling, and
// Floyd-Warshall consistency checking.
package stn

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvlath/matrix"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/errs"
)

// TimeUnit enumerates the supported time units and their ratio to
// seconds, used by ConvertUnits.
type TimeUnit string

const (
	Microseconds TimeUnit = "us"
	Milliseconds TimeUnit = "ms"
	Seconds      TimeUnit = "s"
	Minutes      TimeUnit = "min"
	Hours        TimeUnit = "h"
	Days         TimeUnit = "d"
)

var unitToSeconds = map[TimeUnit]float64{
	Microseconds: 1e-6,
	Milliseconds: 1e-3,
	Seconds:      1,
	Minutes:      60,
	Hours:        3600,
	Days:         86400,
}

// LODLevel enumerates level-of-detail tiers and their resolution
// (spec.md §4.2's {1, 10, 100, 1000, 10000} table).
type LODLevel string

const (
	LODUltraHigh LODLevel = "ultra_high"
	LODHigh      LODLevel = "high"
	LODMedium    LODLevel = "medium"
	LODLow       LODLevel = "low"
	LODVeryLow   LODLevel = "very_low"
)

var lodResolution = map[LODLevel]float64{
	LODUltraHigh: 1,
	LODHigh:      10,
	LODMedium:    100,
	LODLow:       1000,
	LODVeryLow:   10000,
}

// lodRank orders LOD levels from finest to coarsest, used by
// autoRescale to pick the finer of two levels.
var lodRank = map[LODLevel]int{
	LODUltraHigh: 0,
	LODHigh:      1,
	LODMedium:    2,
	LODLow:       3,
	LODVeryLow:   4,
}

// MaxAbsBound is the bound-validation cap of spec.md §4.2: any
// constraint whose absolute finite bound exceeds this is rejected at
// insertion, before any external solver is ever invoked.
const MaxAbsBound = 1e9

// ConsistencyState is the STN's {Unknown, Consistent, Inconsistent}
// state machine (spec.md §4.2).
type ConsistencyState int

const (
	Unknown ConsistencyState = iota
	Consistent
	Inconsistent
)

func (c ConsistencyState) String() string {
	switch c {
	case Consistent:
		return "consistent"
	case Inconsistent:
		return "inconsistent"
	default:
		return "unknown"
	}
}

// Bound is a (min, max) pair: min <= t(b) - t(a) <= max.
type Bound struct {
	Min float64
	Max float64
}

type edgeKey struct {
	a, b string
}

// Options configures a new STN (spec.md §4.2).
type Options struct {
	TimeUnit            TimeUnit
	LODLevel            LODLevel
	MaxTimepoints       int
	ConstantWorkEnabled bool
}

// DefaultOptions returns the STN's defaults: seconds, high LOD, no cap,
// constant-work mode off.
func DefaultOptions() Options {
	return Options{TimeUnit: Seconds, LODLevel: LODHigh, MaxTimepoints: 0, ConstantWorkEnabled: false}
}

// STN is a Simple Temporal Network. The zero value is not usable; use
// New.
type STN struct {
	timePoints  map[string]struct{}
	order       []string // insertion order, for deterministic iteration
	constraints map[edgeKey]Bound

	timeUnit    TimeUnit
	lodLevel    LODLevel
	lodRes      float64
	maxTP       int
	constWork   bool
	dummyPool   []string
	dummyUsed   int

	consistency ConsistencyState
}

// New builds an empty STN per opts.
func New(opts Options) *STN {
	if opts.TimeUnit == "" {
		opts.TimeUnit = Seconds
	}
	if opts.LODLevel == "" {
		opts.LODLevel = LODHigh
	}
	s := &STN{
		timePoints:  map[string]struct{}{},
		constraints: map[edgeKey]Bound{},
		timeUnit:    opts.TimeUnit,
		lodLevel:    opts.LODLevel,
		lodRes:      lodResolution[opts.LODLevel],
		maxTP:       opts.MaxTimepoints,
		constWork:   opts.ConstantWorkEnabled,
		consistency: Consistent,
	}
	if s.constWork && s.maxTP > 0 {
		s.dummyPool = make([]string, s.maxTP)
		for i := 0; i < s.maxTP; i++ {
			id := fmt.Sprintf("__dummy_%d", i)
			s.dummyPool[i] = id
			s.timePoints[id] = struct{}{}
			s.order = append(s.order, id)
			s.constraints[edgeKey{id, id}] = Bound{0, 0}
		}
	}
	return s
}

// TimeUnit, LODLevel, MaxTimepoints, ConstantWorkEnabled expose the
// STN's configuration.
func (s *STN) TimeUnit() TimeUnit       { return s.timeUnit }
func (s *STN) LODLevel() LODLevel       { return s.lodLevel }
func (s *STN) MaxTimepoints() int       { return s.maxTP }
func (s *STN) ConstantWorkEnabled() bool { return s.constWork }

// PoolStats reports the constant-work dummy-point pool's
// allocated/used/free counts (SPEC_FULL.md §12).
func (s *STN) PoolStats() (allocated, used, free int) {
	allocated = len(s.dummyPool)
	used = s.dummyUsed
	free = allocated - used
	return
}

// AddTimePoint registers p if not already present.
func (s *STN) AddTimePoint(p string) {
	if _, ok := s.timePoints[p]; ok {
		return
	}
	s.timePoints[p] = struct{}{}
	s.order = append(s.order, p)
	s.constraints[edgeKey{p, p}] = Bound{0, 0}
	if s.consistency == Consistent {
		s.consistency = Unknown
	}
}

// allocTimePoint allocates either a fresh dummy slot (constant-work
// mode) or a plain name, and registers it.
func (s *STN) allocTimePoint(name string) (string, error) {
	if s.constWork {
		if s.dummyUsed >= len(s.dummyPool) {
			return "", fmt.Errorf("%w: constant-work pool exhausted (max %d)", errs.ErrOutOfBounds, s.maxTP)
		}
		id := s.dummyPool[s.dummyUsed]
		s.dummyUsed++
		return id, nil
	}
	s.AddTimePoint(name)
	return name, nil
}

// TimePoints returns the registered time points in insertion order.
func (s *STN) TimePoints() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func validateBound(b Bound) error {
	if b.Min > b.Max {
		return fmt.Errorf("%w: min %v > max %v", errs.ErrInconsistentPlan, b.Min, b.Max)
	}
	if !math.IsInf(b.Min, 0) && math.Abs(b.Min) > MaxAbsBound {
		return fmt.Errorf("%w: |min|=%v exceeds cap %v", errs.ErrOutOfBounds, b.Min, MaxAbsBound)
	}
	if !math.IsInf(b.Max, 0) && math.Abs(b.Max) > MaxAbsBound {
		return fmt.Errorf("%w: |max|=%v exceeds cap %v", errs.ErrOutOfBounds, b.Max, MaxAbsBound)
	}
	return nil
}

// AddConstraint asserts min <= time(b) - time(a) <= max. If a
// constraint already exists for (a, b), the new bound is intersected
// with the prior one (spec.md §4.2); an empty intersection is stored
// and marks the network inconsistent rather than returning an error.
// Adding either point auto-registers it.
func (s *STN) AddConstraint(a, b string, bound Bound) error {
	if err := validateBound(bound); err != nil {
		return err
	}
	if a == b {
		if bound.Min > 0 || bound.Max < 0 {
			return fmt.Errorf("%w: self-constraint on %q must include 0", errs.ErrInconsistentPlan, a)
		}
		s.AddTimePoint(a)
		return nil
	}
	s.AddTimePoint(a)
	s.AddTimePoint(b)

	k := edgeKey{a, b}
	merged := bound
	if prior, ok := s.constraints[k]; ok {
		merged = Bound{Min: math.Max(prior.Min, bound.Min), Max: math.Min(prior.Max, bound.Max)}
	}
	s.constraints[k] = merged
	// Keep the inverse edge in sync: min(b-a) = -max(a-b), max(b-a) = -min(a-b).
	inv := edgeKey{b, a}
	invBound := Bound{Min: -merged.Max, Max: -merged.Min}
	if prior, ok := s.constraints[inv]; ok {
		invBound = Bound{Min: math.Max(prior.Min, invBound.Min), Max: math.Min(prior.Max, invBound.Max)}
	}
	s.constraints[inv] = invBound

	if merged.Min > merged.Max {
		s.consistency = Inconsistent
	} else {
		s.consistency = Unknown
	}
	return nil
}

// GetConstraint returns the explicit bound for (a, b), or
// (-inf, +inf) if none was set (spec.md §3).
func (s *STN) GetConstraint(a, b string) Bound {
	if a == b {
		return Bound{0, 0}
	}
	if b, ok := s.constraints[edgeKey{a, b}]; ok {
		return b
	}
	return Bound{Min: math.Inf(-1), Max: math.Inf(1)}
}

// Consistent runs (or reuses a cached) Floyd-Warshall shortest-path
// propagation over the constraint graph and reports whether every
// implied bound still has min <= max (spec.md §4.2).
func (s *STN) Consistent() bool {
	if s.consistency != Unknown {
		return s.consistency == Consistent
	}
	ok := s.computeConsistency()
	if ok {
		s.consistency = Consistent
	} else {
		s.consistency = Inconsistent
	}
	return ok
}

// State returns the cached consistency state without recomputing.
func (s *STN) State() ConsistencyState { return s.consistency }

// computeConsistency builds the distance graph (two directed edges per
// constraint: upper bound a->b, negated lower bound b->a) and runs
// Floyd-Warshall; the network is consistent iff no self-distance goes
// negative. Every read of the propagated distances goes through
// lvlath/matrix.Matrix's At/Rows/Cols interface (boundMatrix.Set stays
// a concrete-type mutation since lvlath's attested usage only consumes
// the interface, never constructs through it).
func (s *STN) computeConsistency() bool {
	n := len(s.order)
	if n == 0 {
		return true
	}
	idx := make(map[string]int, n)
	for i, p := range s.order {
		idx[p] = i
	}

	dist := newBoundMatrix(n, math.Inf(1))
	for i := 0; i < n; i++ {
		dist.Set(i, i, 0)
	}
	for k, bound := range s.constraints {
		if k.a == k.b {
			continue
		}
		i, okI := idx[k.a]
		j, okJ := idx[k.b]
		if !okI || !okJ {
			continue
		}
		if !math.IsInf(bound.Max, 0) {
			cur, _ := dist.At(i, j)
			if bound.Max < cur {
				dist.Set(i, j, bound.Max)
			}
		}
		if !math.IsInf(bound.Min, 0) {
			cur, _ := dist.At(j, i)
			if -bound.Min < cur {
				dist.Set(j, i, -bound.Min)
			}
		}
	}

	var m matrix.Matrix = dist.asLvlathMatrix()
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			dik, _ := m.At(i, k)
			if math.IsInf(dik, 1) {
				continue
			}
			for j := 0; j < n; j++ {
				dkj, _ := m.At(k, j)
				if math.IsInf(dkj, 1) {
					continue
				}
				dij, _ := m.At(i, j)
				if dik+dkj < dij {
					dist.Set(i, j, dik+dkj)
				}
			}
		}
	}

	for i := 0; i < n; i++ {
		d, _ := m.At(i, i)
		if d < 0 {
			return false
		}
	}
	return true
}

// Union merges other into s by intersecting bounds on any constraint
// shared between the two networks, and copying over constraints unique
// to other (spec.md §4.2's default union semantics).
func (s *STN) Union(other *STN) error {
	for _, p := range other.order {
		s.AddTimePoint(p)
	}
	for k, bound := range other.constraints {
		if k.a == k.b {
			continue
		}
		if err := s.AddConstraint(k.a, k.b, bound); err != nil {
			return err
		}
	}
	return nil
}

// PermissiveUnion merges other into s by widening (taking the union of
// the two intervals) rather than intersecting, on any constraint shared
// between the two networks. This is the supplemented alternative to
// Union's default intersection semantics (SPEC_FULL.md §12).
func (s *STN) PermissiveUnion(other *STN) error {
	for _, p := range other.order {
		s.AddTimePoint(p)
	}
	for k, bound := range other.constraints {
		if k.a == k.b {
			continue
		}
		widened := bound
		if prior, ok := s.constraints[k]; ok {
			widened = Bound{Min: math.Min(prior.Min, bound.Min), Max: math.Max(prior.Max, bound.Max)}
		}
		if err := validateBound(widened); err != nil {
			return err
		}
		s.constraints[k] = widened
		inv := edgeKey{k.b, k.a}
		s.constraints[inv] = Bound{Min: -widened.Max, Max: -widened.Min}
		s.consistency = Unknown
	}
	return nil
}

// Chain asserts a sequential min<=delta<=max constraint between each
// consecutive pair of points (spec.md §4.2's sequential execution-
// pattern lowering).
func (s *STN) Chain(points []string, bound Bound) error {
	for i := 0; i+1 < len(points); i++ {
		if err := s.AddConstraint(points[i], points[i+1], bound); err != nil {
			return err
		}
	}
	return nil
}

// Subdivide inserts n-1 evenly-spaced intermediate points between a and
// b, distributing a's existing (min, max) bound proportionally across
// the n resulting segments. This is distinct from Split, which
// partitions the whole point set rather than interpolating within one
// constraint.
func (s *STN) Subdivide(a, b string, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: split count must be >= 1, got %d", errs.ErrInvalidInput, n)
	}
	bound := s.GetConstraint(a, b)
	if math.IsInf(bound.Min, 0) || math.IsInf(bound.Max, 0) {
		return nil, fmt.Errorf("%w: cannot split an unbounded constraint (%s, %s)", errs.ErrInvalidInput, a, b)
	}
	segMin := bound.Min / float64(n)
	segMax := bound.Max / float64(n)

	points := make([]string, 0, n+1)
	points = append(points, a)
	for i := 1; i < n; i++ {
		name, err := s.allocTimePoint(fmt.Sprintf("%s__split_%d_%d", a, n, i))
		if err != nil {
			return nil, err
		}
		points = append(points, name)
	}
	points = append(points, b)

	for i := 0; i+1 < len(points); i++ {
		if err := s.AddConstraint(points[i], points[i+1], Bound{Min: segMin, Max: segMax}); err != nil {
			return nil, err
		}
	}
	return points, nil
}

// Split partitions s's time points (in insertion order) into n
// roughly-equal-sized chunks and returns one *STN per chunk, each
// containing only the constraints whose endpoints both fall inside
// that chunk (spec.md §4.2's split(stn, n)): a way to carve an
// over-large network into independent pieces a solver can attack in
// parallel, not a way to subdivide one interval (see Subdivide for
// that).
func (s *STN) Split(n int) ([]*STN, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: split count must be >= 1, got %d", errs.ErrInvalidInput, n)
	}
	total := len(s.order)
	chunkSize := 1
	if total > 0 {
		chunkSize = (total + n - 1) / n
		if chunkSize < 1 {
			chunkSize = 1
		}
	}

	var chunks [][]string
	for i := 0; i < total; i += chunkSize {
		end := i + chunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, s.order[i:end])
	}

	result := make([]*STN, 0, len(chunks))
	for _, chunk := range chunks {
		sub := New(Options{TimeUnit: s.timeUnit, LODLevel: s.lodLevel})
		inChunk := make(map[string]struct{}, len(chunk))
		for _, p := range chunk {
			inChunk[p] = struct{}{}
			sub.AddTimePoint(p)
		}
		for k, bound := range s.constraints {
			if k.a == k.b {
				continue
			}
			_, aOK := inChunk[k.a]
			_, bOK := inChunk[k.b]
			if aOK && bOK {
				if err := sub.AddConstraint(k.a, k.b, bound); err != nil {
					return nil, err
				}
			}
		}
		result = append(result, sub)
	}
	return result, nil
}

// ConvertUnits rescales every finite bound in the network from its
// current TimeUnit to target, and updates s's recorded unit.
func (s *STN) ConvertUnits(target TimeUnit) error {
	fromRatio, ok := unitToSeconds[s.timeUnit]
	if !ok {
		return fmt.Errorf("%w: unknown source unit %q", errs.ErrInvalidInput, s.timeUnit)
	}
	toRatio, ok := unitToSeconds[target]
	if !ok {
		return fmt.Errorf("%w: unknown target unit %q", errs.ErrInvalidInput, target)
	}
	factor := fromRatio / toRatio
	for k, bound := range s.constraints {
		s.constraints[k] = Bound{Min: scaleBound(bound.Min, factor), Max: scaleBound(bound.Max, factor)}
	}
	s.timeUnit = target
	return nil
}

func scaleBound(v, factor float64) float64 {
	if math.IsInf(v, 0) {
		return v
	}
	return v * factor
}

// RescaleLOD snaps every finite bound to the nearest multiple of the
// target level's resolution, widening (never narrowing) so consistency
// is preserved: min rounds down, max rounds up (spec.md §4.2).
func (s *STN) RescaleLOD(target LODLevel) error {
	res, ok := lodResolution[target]
	if !ok {
		return fmt.Errorf("%w: unknown LOD level %q", errs.ErrInvalidInput, target)
	}
	for k, bound := range s.constraints {
		s.constraints[k] = Bound{
			Min: roundLOD(bound.Min, res, math.Floor),
			Max: roundLOD(bound.Max, res, math.Ceil),
		}
	}
	s.lodLevel = target
	s.lodRes = res
	s.consistency = Unknown
	return nil
}

func roundLOD(v, res float64, round func(float64) float64) float64 {
	if math.IsInf(v, 0) || res <= 0 {
		return v
	}
	return round(v/res) * res
}

// AutoRescale picks the finer (smaller-resolution) of s's and other's
// LOD levels and rescales s to it, so the two networks can be safely
// unioned without precision mismatch.
func (s *STN) AutoRescale(other *STN) error {
	if lodRank[other.lodLevel] < lodRank[s.lodLevel] {
		return s.RescaleLOD(other.lodLevel)
	}
	return nil
}

// PlanStep is one scheduled action in a plan being checked against the
// network's temporal constraints.
type PlanStep struct {
	StartPoint string
	EndPoint   string
}

// ValidatePlan checks that every step's start/end points are registered
// and that the resulting network (after adding any missing points) is
// consistent.
func (s *STN) ValidatePlan(steps []PlanStep) error {
	for _, step := range steps {
		s.AddTimePoint(step.StartPoint)
		s.AddTimePoint(step.EndPoint)
	}
	if !s.Consistent() {
		return fmt.Errorf("%w: plan violates temporal constraints", errs.ErrInconsistentPlan)
	}
	return nil
}
