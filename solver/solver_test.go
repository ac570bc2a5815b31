package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/config"
	"github.com/V-Sekai-fire/guildmasters-ledger-sub002/stn"
)

func TestBuildProblemRejectsOversizedBound(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	require.NoError(t, net.AddConstraint("A", "B", stn.Bound{Min: 0, Max: stn.MaxAbsBound}))

	opts := config.DefaultBridgeOptions()
	opts.MaxBoundAbs = 100
	_, err := BuildProblem(net, opts)
	assert.Error(t, err)
}

func TestBuildProblemAccepted(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	require.NoError(t, net.AddConstraint("A", "B", stn.Bound{Min: 5, Max: 20}))

	p, err := BuildProblem(net, config.DefaultBridgeOptions())
	require.NoError(t, err)
	assert.Len(t, p.Variables, 2)
}

func TestRenderModelIncludesConstraints(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	require.NoError(t, net.AddConstraint("A", "B", stn.Bound{Min: 5, Max: 20}))
	p, err := BuildProblem(net, config.DefaultBridgeOptions())
	require.NoError(t, err)

	model := RenderModel(p)
	assert.Contains(t, model, "solve satisfy;")
	assert.Contains(t, model, "var 0..")
}

func TestParseResultTranslatesSanitizedNames(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	require.NoError(t, net.AddConstraint("grill.start", "grill.end", stn.Bound{Min: 10, Max: 10}))
	p, err := BuildProblem(net, config.DefaultBridgeOptions())
	require.NoError(t, err)

	out := []byte(`{"status":"SATISFIED","assignment":{"grill_start":0,"grill_end":10}}`)
	assignment, err := parseResult(out, p)
	require.NoError(t, err)
	assert.Equal(t, float64(10), assignment["grill.end"])
}

func TestParseResultRejectsUnsatisfied(t *testing.T) {
	p := &Problem{toOriginal: map[string]string{}}
	out := []byte(`{"status":"UNSATISFIABLE"}`)
	_, err := parseResult(out, p)
	assert.Error(t, err)
}

func TestLiftBackAssertsConstraints(t *testing.T) {
	net := stn.New(stn.DefaultOptions())
	net.AddTimePoint("grill.end")
	assignment := Assignment{"grill.end": 10}
	require.NoError(t, LiftBack(net, assignment))

	b := net.GetConstraint("origin", "grill.end")
	assert.Equal(t, stn.Bound{Min: 10, Max: 10}, b)
}
