package operations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracymacding/starrocks-diag-engine/internal/config"
	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/rules"
)

func testExpert() *Expert {
	return New(rules.New(config.DefaultRuleOverrides()))
}

func datasetWith(sets map[string]diagmodel.CollectedResult) *diagmodel.CollectedDataset {
	ids := make([]string, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	d := diagmodel.NewCollectedDataset(ids)
	for id, res := range sets {
		d.Set(id, res)
	}
	return d
}

func backendRow(id, alive string) diagmodel.Row {
	return diagmodel.Row{"BackendId": diagmodel.TextScalar(id), "Alive": diagmodel.TextScalar(alive)}
}

func frontendRow(name string, heartbeat float64, version string) diagmodel.Row {
	return diagmodel.Row{
		"Name": diagmodel.TextScalar(name), "LastHeartbeat": diagmodel.FloatScalar(heartbeat),
		"Version": diagmodel.TextScalar(version),
	}
}

func TestLowAliveRatioFlaggedCritical(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descBackends: {Rows: []diagmodel.Row{
			backendRow("1", "true"), backendRow("2", "false"), backendRow("3", "false"), backendRow("4", "false"),
		}},
		descFrontends: {Rows: []diagmodel.Row{frontendRow("fe1", 1000, "3.2.0"), frontendRow("fe2", 1000, "3.2.0")}},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	found := fs.ByType("alive_backends_ratio_low")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityCritical, found[0].Severity, "1/4 alive is below half the healthy floor")
}

func TestHealthyAliveRatioProducesNoFinding(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descBackends: {Rows: []diagmodel.Row{
			backendRow("1", "true"), backendRow("2", "true"), backendRow("3", "true"), backendRow("4", "true"),
		}},
		descFrontends: {Rows: []diagmodel.Row{frontendRow("fe1", 1000, "3.2.0"), frontendRow("fe2", 1000, "3.2.0")}},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	assert.Empty(t, fs.ByType("alive_backends_ratio_low"))
}

func TestClockSkewAboveThreshold(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descBackends: {Rows: []diagmodel.Row{backendRow("1", "true")}},
		descFrontends: {Rows: []diagmodel.Row{
			frontendRow("fe1", 0, "3.2.0"),
			frontendRow("fe2", 10000, "3.2.0"), // 10s apart, above the 5s default
		}},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	found := fs.ByType("frontend_clock_skew")
	require.Len(t, found, 1)
}

func TestVersionDriftAcrossFrontends(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descBackends: {Rows: []diagmodel.Row{backendRow("1", "true")}},
		descFrontends: {Rows: []diagmodel.Row{
			frontendRow("fe1", 0, "3.2.0"),
			frontendRow("fe2", 0, "3.3.1"),
		}},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	found := fs.ByType("frontend_version_drift")
	require.Len(t, found, 1)

	rec, ok := e.recommend(found[0])
	require.True(t, ok)
	assert.Equal(t, "align_frontend_versions", rec.ID)
}

func TestCorrelationPassEmitsTopologyInstability(t *testing.T) {
	fs := &diagmodel.FindingSet{Findings: []diagmodel.Finding{
		{Type: "alive_backends_ratio_low", Severity: diagmodel.SeverityCritical},
		{Type: "frontend_clock_skew", Severity: diagmodel.SeverityWarning},
	}}
	correlationPass(fs)
	found := fs.ByType("topology_instability")
	require.Len(t, found, 1)
}

func TestMissingBackendsYieldsInsufficientData(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descBackends:  {Err: context.DeadlineExceeded},
		descFrontends: {Rows: []diagmodel.Row{frontendRow("fe1", 0, "3.2.0")}},
	})
	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	assert.NotEmpty(t, fs.ByType("alive_backends_ratio_insufficient_data"))
}
