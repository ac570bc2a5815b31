package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultEngineOptions(t *testing.T) {
	opts := DefaultEngineOptions()
	assert.Equal(t, 100, opts.MaxDepth)
	assert.False(t, opts.VerifyGoals)
}

func TestEngineOptionsFromEnv(t *testing.T) {
	os.Setenv("HTN_MAX_DEPTH", "42")
	os.Setenv("HTN_VERIFY_GOALS", "true")
	defer os.Unsetenv("HTN_MAX_DEPTH")
	defer os.Unsetenv("HTN_VERIFY_GOALS")

	opts := EngineOptionsFromEnv()
	assert.Equal(t, 42, opts.MaxDepth)
	assert.True(t, opts.VerifyGoals)
}

func TestDefaultBridgeOptions(t *testing.T) {
	opts := DefaultBridgeOptions()
	assert.Equal(t, "minizinc", opts.Binary)
	assert.Equal(t, float64(1e9), opts.MaxBoundAbs)
}
