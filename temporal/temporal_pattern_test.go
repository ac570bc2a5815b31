package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
)

func mustParseTime(t *testing.T, s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestDeriveInstant(t *testing.T) {
	d, err := TemporalPattern{}.Derive()
	require.NoError(t, err)
	assert.Nil(t, d.Start)
	assert.Nil(t, d.End)
	assert.Nil(t, d.Duration)
}

func TestDeriveFloating(t *testing.T) {
	dur := 2 * time.Hour
	d, err := TemporalPattern{Duration: &dur}.Derive()
	require.NoError(t, err)
	assert.Nil(t, d.Start)
	assert.Nil(t, d.End)
	require.NotNil(t, d.Duration)
	assert.Equal(t, dur, *d.Duration)
}

func TestDeriveDeadlineOnly(t *testing.T) {
	end := mustParseTime(t, "2025-06-22T18:00:00-07:00")
	d, err := TemporalPattern{End: &end}.Derive()
	require.NoError(t, err)
	assert.Nil(t, d.Start)
	require.NotNil(t, d.End)
	assert.Equal(t, end, *d.End)
}

func TestDeriveEndAndDurationImpliesStart(t *testing.T) {
	end := mustParseTime(t, "2025-06-22T18:00:00-07:00")
	dur := 90 * time.Minute
	d, err := TemporalPattern{End: &end, Duration: &dur}.Derive()
	require.NoError(t, err)
	require.NotNil(t, d.Start)
	assert.Equal(t, end.Add(-dur), *d.Start)
}

func TestDeriveOpenEnd(t *testing.T) {
	start := mustParseTime(t, "2025-06-22T10:00:00-07:00")
	d, err := TemporalPattern{Start: &start}.Derive()
	require.NoError(t, err)
	require.NotNil(t, d.Start)
	assert.Nil(t, d.End)
}

func TestDeriveStartAndDurationImpliesEnd(t *testing.T) {
	start := mustParseTime(t, "2025-06-22T10:00:00-07:00")
	dur := 2 * time.Hour
	d, err := TemporalPattern{Start: &start, Duration: &dur}.Derive()
	require.NoError(t, err)
	require.NotNil(t, d.End)
	assert.Equal(t, mustParseTime(t, "2025-06-22T12:00:00-07:00"), *d.End)
}

func TestDeriveFixedIntervalImpliesDuration(t *testing.T) {
	start := mustParseTime(t, "2025-06-22T10:00:00-07:00")
	end := mustParseTime(t, "2025-06-22T11:30:00-07:00")
	d, err := TemporalPattern{Start: &start, End: &end}.Derive()
	require.NoError(t, err)
	require.NotNil(t, d.Duration)
	assert.Equal(t, 90*time.Minute, *d.Duration)
}

func TestDeriveFullyConstrainedConsistent(t *testing.T) {
	start := mustParseTime(t, "2025-06-22T10:00:00-07:00")
	end := mustParseTime(t, "2025-06-22T12:00:00-07:00")
	dur := 2 * time.Hour
	d, err := TemporalPattern{Start: &start, End: &end, Duration: &dur}.Derive()
	require.NoError(t, err)
	assert.Equal(t, start, *d.Start)
	assert.Equal(t, end, *d.End)
	assert.Equal(t, dur, *d.Duration)
}

func TestDeriveFullyConstrainedIllFormed(t *testing.T) {
	start := mustParseTime(t, "2025-06-22T10:00:00-07:00")
	end := mustParseTime(t, "2025-06-22T12:00:00-07:00")
	dur := 30 * time.Minute
	_, err := TemporalPattern{Start: &start, End: &end, Duration: &dur}.Derive()
	assert.Error(t, err)
}

func TestComposeIntoSTNWithDuration(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	dur := 2 * time.Hour
	require.NoError(t, ComposeIntoSTN(net, "grill.start", "grill.end", Derived{Duration: &dur}))
	b := net.GetConstraint("grill.start", "grill.end")
	assert.Equal(t, stn.Bound{Min: 7200, Max: 7200}, b)
}

func TestComposeIntoSTNAnchorOnly(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	start := mustParseTime(t, "2025-06-22T10:00:00-07:00")
	require.NoError(t, ComposeIntoSTN(net, "serve.start", "serve.end", Derived{Start: &start}))
	b := net.GetConstraint("serve.start", "serve.end")
	assert.Equal(t, 0.0, b.Min)
	assert.True(t, net.Consistent())
}

func TestComposeIntoSTNInstantNoConstraint(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	require.NoError(t, ComposeIntoSTN(net, "ping.start", "ping.end", Derived{}))
	assert.True(t, net.Consistent())
}
