package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
)

func TestParseISO8601(t *testing.T) {
	cases := map[string]time.Duration{
		"PT2H":    2 * time.Hour,
		"PT30M":   30 * time.Minute,
		"PT2H30M": 2*time.Hour + 30*time.Minute,
		"PT45S":   45 * time.Second,
		"P1DT1H":  25 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseISO8601(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseISO8601Empty(t *testing.T) {
	_, err := ParseISO8601("")
	assert.Error(t, err)
}

func TestParseISO8601Invalid(t *testing.T) {
	_, err := ParseISO8601("not-a-duration")
	assert.Error(t, err)
}

func TestValidateRejectsMalformedDurations(t *testing.T) {
	assert.Error(t, Validate(NewFixed(-time.Second)))
	assert.Error(t, Validate(NewVariable(20*time.Minute, 10*time.Minute)))
	assert.Error(t, Validate(NewConditional(nil, nil)))
	assert.Error(t, Validate(NewResourceDependent("chef", time.Minute, nil)))
	assert.NoError(t, Validate(NewFixed(5*time.Minute)))
}

func TestCalculateFixed(t *testing.T) {
	d := NewFixed(5 * time.Minute)
	got, err := Calculate(d, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, got)
}

func TestCalculateVariableMidpoint(t *testing.T) {
	d := NewVariable(10*time.Minute, 20*time.Minute)
	got, err := Calculate(d, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, got)
}

func TestCalculateConditionalFirstMatchWins(t *testing.T) {
	d := NewConditional(
		[]string{"rush.kitchen", "understaffed.kitchen"},
		map[string]time.Duration{"rush.kitchen": 5 * time.Minute, "understaffed.kitchen": 25 * time.Minute},
	)
	got, err := Calculate(d, map[string]interface{}{"rush.kitchen": true, "understaffed.kitchen": true}, "")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, got)
}

func TestCalculateConditionalFallsBackToDefault(t *testing.T) {
	d := NewConditional([]string{"rush.kitchen"}, map[string]time.Duration{"rush.kitchen": 5 * time.Minute})
	got, err := Calculate(d, map[string]interface{}{"rush.kitchen": false}, "")
	require.NoError(t, err)
	assert.Equal(t, defaultConditionalDuration, got)
}

func TestCalculateResourceDependent(t *testing.T) {
	d := NewResourceDependent("chef", 30*time.Minute, map[string]float64{"chef-1": 3.0})
	got, err := Calculate(d, nil, "chef-1")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, got)
}

func TestCalculateResourceDependentUnknownResource(t *testing.T) {
	d := NewResourceDependent("chef", 30*time.Minute, map[string]float64{"chef-1": 3.0})
	_, err := Calculate(d, nil, "chef-2")
	assert.Error(t, err)
}

func TestLowerExecutionPatternSequential(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	steps := []Step{
		{Name: "prep", StartPoint: "prep.start", EndPoint: "prep.end", Duration: 10 * time.Minute},
		{Name: "cook", StartPoint: "cook.start", EndPoint: "cook.end", Duration: 20 * time.Minute},
	}
	require.NoError(t, LowerExecutionPattern(net, Sequential, steps))
	assert.True(t, net.Consistent())
}

func TestLowerExecutionPatternParallel(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	steps := []Step{
		{Name: "grill", StartPoint: "grill.start", EndPoint: "grill.end", Duration: 10 * time.Minute},
		{Name: "saute", StartPoint: "saute.start", EndPoint: "saute.end", Duration: 8 * time.Minute},
	}
	require.NoError(t, LowerExecutionPattern(net, Parallel, steps))
	b := net.GetConstraint("grill.start", "saute.start")
	assert.Equal(t, stn.Bound{Min: 0, Max: 0}, b)
}

func TestLowerExecutionPatternPipeline(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	steps := []Step{
		{Name: "wash", StartPoint: "wash.start", EndPoint: "wash.end", Duration: 5 * time.Minute},
		{Name: "chop", StartPoint: "chop.start", EndPoint: "chop.end", Duration: 5 * time.Minute},
	}
	require.NoError(t, LowerExecutionPattern(net, Pipeline, steps))
	b := net.GetConstraint("wash.start", "chop.start")
	assert.Equal(t, stn.Bound{Min: 300, Max: 300}, b)
}
