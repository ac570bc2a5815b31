// Package config holds small, optional per-component options structs
// with Default* constructors and *FromEnv environment-variable
// overrides (SPEC_FULL.md §10.4). None of this is required: every
// option has an explicit Go-level default, and the planning core never
// reads the environment on its own — only these convenience
// constructors do, mirroring this codebase's DefaultConfig() pattern
// (itsneelabh-gomind/orchestration/interfaces.go) without taking on
// the role of an application configuration loader.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EngineOptions configures the HTN engine (spec.md §6's `opts`).
type EngineOptions struct {
	Verbose      int
	MaxDepth     int
	VerifyGoals  bool
	MaxTreeDepth int
}

func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Verbose:      0,
		MaxDepth:     100,
		VerifyGoals:  false,
		MaxTreeDepth: 0, // 0 == unbounded
	}
}

// EngineOptionsFromEnv overlays HTN_MAX_DEPTH / HTN_VERBOSE /
// HTN_VERIFY_GOALS on top of DefaultEngineOptions.
func EngineOptionsFromEnv() EngineOptions {
	opts := DefaultEngineOptions()
	if v := os.Getenv("HTN_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxDepth = n
		}
	}
	if v := os.Getenv("HTN_VERBOSE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Verbose = n
		}
	}
	if v := os.Getenv("HTN_VERIFY_GOALS"); v != "" {
		opts.VerifyGoals = strings.EqualFold(v, "true")
	}
	return opts
}

// BridgeOptions configures the external-solver bridge.
type BridgeOptions struct {
	Binary       string
	SolverID     string
	Timeout      time.Duration
	MaxBoundAbs  float64
}

func DefaultBridgeOptions() BridgeOptions {
	return BridgeOptions{
		Binary:      "minizinc",
		SolverID:    "gecode",
		Timeout:     10 * time.Second,
		MaxBoundAbs: 1e9,
	}
}

func BridgeOptionsFromEnv() BridgeOptions {
	opts := DefaultBridgeOptions()
	if v := os.Getenv("HTN_SOLVER_BINARY"); v != "" {
		opts.Binary = v
	}
	if v := os.Getenv("HTN_SOLVER_ID"); v != "" {
		opts.SolverID = v
	}
	if v := os.Getenv("HTN_SOLVER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Timeout = time.Duration(n) * time.Millisecond
		}
	}
	return opts
}

// STNOptions configures a new Simple Temporal Network.
type STNOptions struct {
	TimeUnit            string // "us", "ms", "s", "min", "h", "d"
	LODLevel            string // "ultra_high", "high", "medium", "low", "very_low"
	MaxTimepoints       int
	ConstantWorkEnabled bool
}

func DefaultSTNOptions() STNOptions {
	return STNOptions{
		TimeUnit:            "s",
		LODLevel:            "high",
		MaxTimepoints:       0,
		ConstantWorkEnabled: false,
	}
}
