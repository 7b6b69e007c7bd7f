package queryperf

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

func TestCriticalQueryLatencyAboveThreshold(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descCurrentQueries: {Rows: []diagmodel.Row{{
			"QueryId": diagmodel.TextScalar("q1"), "ExecTimeMs": diagmodel.FloatScalar(90000),
			"ScanBytes": diagmodel.FloatScalar(0), "SpillBytes": diagmodel.FloatScalar(0),
		}}},
		descQueryQueue: {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)

	found := fs.ByType("critical_query_latency")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityCritical, found[0].Severity)

	rec, ok := e.recommend(found[0])
	require.True(t, ok)
	assert.Equal(t, "KILL QUERY 'q1'", rec.Phases[0].Steps[1].Body)
}

func TestSlowQueryBelowCriticalAboveWarning(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descCurrentQueries: {Rows: []diagmodel.Row{{
			"QueryId": diagmodel.TextScalar("q2"), "ExecTimeMs": diagmodel.FloatScalar(15000),
			"ScanBytes": diagmodel.FloatScalar(0), "SpillBytes": diagmodel.FloatScalar(0),
		}}},
		descQueryQueue: {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	found := fs.ByType("slow_query")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityWarning, found[0].Severity)
	assert.Empty(t, fs.ByType("critical_query_latency"))
}

func TestHighSpillRatioFlagged(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descCurrentQueries: {Rows: []diagmodel.Row{{
			"QueryId": diagmodel.TextScalar("q3"), "ExecTimeMs": diagmodel.FloatScalar(1000),
			"ScanBytes": diagmodel.FloatScalar(1000), "SpillBytes": diagmodel.FloatScalar(500),
		}}},
		descQueryQueue: {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	found := fs.ByType("query_spill_elevated")
	require.Len(t, found, 1)
}

func TestQueueAndCriticalLatencyProduceCorrelationFinding(t *testing.T) {
	fs := &diagmodel.FindingSet{Findings: []diagmodel.Finding{
		{Type: "critical_query_latency", Severity: diagmodel.SeverityCritical},
		{Type: "query_queue_pressure", Severity: diagmodel.SeverityWarning},
	}}
	correlationPass(fs)
	found := fs.ByType("query_backlog_from_runaway_query")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityCritical, found[0].Severity)
}

func TestMissingCurrentQueriesYieldsInsufficientData(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descCurrentQueries: {Err: context.DeadlineExceeded},
		descQueryQueue:     {Rows: nil},
	})
	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	assert.NotEmpty(t, fs.ByType("slow_query_insufficient_data"))
}
