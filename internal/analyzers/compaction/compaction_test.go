package compaction

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

func TestCompactionScoreEmergencyBandTriggersImmediateRecommendation(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descPartitionsMeta: {Rows: []diagmodel.Row{{
			"DB_NAME": diagmodel.TextScalar("db"), "TABLE_NAME": diagmodel.TextScalar("t"),
			"PARTITION_NAME": diagmodel.TextScalar("p"), "MAX_CS": diagmodel.FloatScalar(1500),
		}}},
		descFECompactionCfg: {Rows: []diagmodel.Row{{"Value": diagmodel.TextScalar("-1")}}},
		descBackendCount:    {Rows: []diagmodel.Row{{"BackendId": diagmodel.TextScalar("1")}}},
		descCompactionTasks: {Rows: nil},
		descBEThreadConfig:  {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)

	found := fs.ByType("emergency_compaction_score")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityCritical, found[0].Severity)
	assert.Equal(t, diagmodel.PriorityImmediate, found[0].Priority)

	rec, ok := e.recommend(found[0])
	require.True(t, ok)
	assert.Equal(t, "emergency_cs_handling", rec.ID)
	require.NotEmpty(t, rec.Phases)
	require.NotEmpty(t, rec.Phases[0].Steps)
	assert.Equal(t, "ALTER TABLE db.t COMPACT p", rec.Phases[0].Steps[0].Body)
}

func TestCompactionDisabledRecommendsReenableInAdaptiveMode(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descPartitionsMeta: {Rows: []diagmodel.Row{{
			"DB_NAME": diagmodel.TextScalar("db"), "TABLE_NAME": diagmodel.TextScalar("t"),
			"PARTITION_NAME": diagmodel.TextScalar("p"), "MAX_CS": diagmodel.FloatScalar(600),
		}}},
		descFECompactionCfg: {Rows: []diagmodel.Row{{"Value": diagmodel.TextScalar("0")}}},
		descBackendCount:    {Rows: []diagmodel.Row{{"BackendId": diagmodel.TextScalar("1")}}},
		descCompactionTasks: {Rows: nil},
		descBEThreadConfig:  {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)

	found := fs.ByType("compaction_disabled")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityCritical, found[0].Severity)
	assert.Equal(t, diagmodel.PriorityHigh, found[0].Priority)

	rec, ok := e.recommend(found[0])
	require.True(t, ok)
	assert.Contains(t, rec.Phases[0].Steps[0].Body, `lake_compaction_max_tasks" = "-1"`)
}

func TestCompactionCapacityInsufficientInAdaptiveModeEscalatesToCritical(t *testing.T) {
	e := testExpert()
	backends := make([]diagmodel.Row, 4)
	for i := range backends {
		backends[i] = diagmodel.Row{"BackendId": diagmodel.TextScalar("be")}
	}
	tasks := make([]diagmodel.Row, 0, 100)
	for i := 0; i < 90; i++ {
		tasks = append(tasks, diagmodel.Row{"FINISH_TIME": diagmodel.NullScalar(), "STATUS": diagmodel.TextScalar("PENDING")})
	}
	for i := 0; i < 10; i++ {
		tasks = append(tasks, diagmodel.Row{"FINISH_TIME": diagmodel.NullScalar(), "STATUS": diagmodel.TextScalar("RUNNING")})
	}

	data := datasetWith(map[string]diagmodel.CollectedResult{
		descPartitionsMeta:  {Rows: nil},
		descFECompactionCfg: {Rows: []diagmodel.Row{{"Value": diagmodel.TextScalar("-1")}}},
		descBackendCount:    {Rows: backends},
		descCompactionTasks: {Rows: tasks},
		descBEThreadConfig:  {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)

	found := fs.ByType("compaction_capacity_insufficient")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityCritical, found[0].Severity, "D=100 > 1.5*C=96")
	assert.Equal(t, 150, found[0].Evidence["recommended_max_tasks"])
}

func TestMissingPartitionsMetaYieldsInsufficientData(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descPartitionsMeta: {Err: assertErr()},
	})
	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	found := fs.ByType("score_band_insufficient_data")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityInsight, found[0].Severity)
}

func TestCorrelationPassEmitsCompoundFinding(t *testing.T) {
	fs := &diagmodel.FindingSet{Findings: []diagmodel.Finding{
		{Type: "thread_undersizing", Severity: diagmodel.SeverityWarning},
		{Type: "load_queue_backlog", Severity: diagmodel.SeverityCritical},
	}}
	correlationPass(fs)
	compound := fs.ByType("compaction_thread_starved_backlog")
	require.Len(t, compound, 1)
	assert.Equal(t, diagmodel.SeverityCritical, compound[0].Severity)
}

func assertErr() error { return context.DeadlineExceeded }
