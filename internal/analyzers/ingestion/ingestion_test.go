package ingestion

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

func TestRoutineLoadPausedRecommendsResumeFromLastOffset(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descRoutineLoads: {Rows: []diagmodel.Row{{
			"Name": diagmodel.TextScalar("kafka_ingest"), "DbName": diagmodel.TextScalar("analytics"),
			"State": diagmodel.TextScalar("PAUSED"), "ReasonOfStateChanged": diagmodel.TextScalar("kafka broker down"),
			"CurrentTaskNum": diagmodel.IntScalar(0),
		}}},
		descLoadsLive:    {Rows: nil},
		descLoadsHistory: {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)

	found := fs.ByType("routine_load_paused")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityWarning, found[0].Severity)
	assert.Equal(t, "kafka broker down", found[0].Evidence["reason"])

	rec, ok := e.recommend(found[0])
	require.True(t, ok)
	assert.Equal(t, "routine_load_recovery", rec.ID)
	assert.Equal(t, "RESUME ROUTINE LOAD FOR analytics.kafka_ingest", rec.Phases[0].Steps[0].Body)
}

// CURRENT_TASK_NUM=0 while STATE=RUNNING is a critical boundary case.
func TestRunningWithZeroTasksIsCritical(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descRoutineLoads: {Rows: []diagmodel.Row{{
			"Name": diagmodel.TextScalar("orders_ingest"), "DbName": diagmodel.TextScalar("sales"),
			"State": diagmodel.TextScalar("RUNNING"), "ReasonOfStateChanged": diagmodel.TextScalar(""),
			"CurrentTaskNum": diagmodel.IntScalar(0),
		}}},
		descLoadsLive:    {Rows: nil},
		descLoadsHistory: {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)

	found := fs.ByType("routine_load_stalled")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityCritical, found[0].Severity)
	assert.Equal(t, diagmodel.PriorityImmediate, found[0].Priority)
}

// RUNNING with a nonzero task count is healthy and produces no finding.
func TestRunningWithActiveTasksIsHealthy(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descRoutineLoads: {Rows: []diagmodel.Row{{
			"Name": diagmodel.TextScalar("orders_ingest"), "DbName": diagmodel.TextScalar("sales"),
			"State": diagmodel.TextScalar("RUNNING"), "ReasonOfStateChanged": diagmodel.TextScalar(""),
			"CurrentTaskNum": diagmodel.IntScalar(3),
		}}},
		descLoadsLive:    {Rows: nil},
		descLoadsHistory: {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	assert.Empty(t, fs.ByType("routine_load_stalled"))
}

// The error text contains the word "reached" but must still classify as
// timeout, not data_quality, because timeout is checked first in the
// priority ladder.
func TestIngestionTimeoutClassificationBeatsDataQuality(t *testing.T) {
	e := testExpert()
	loads := make([]diagmodel.Row, 0, 2)
	loads = append(loads, diagmodel.Row{
		"JOB_ID": diagmodel.TextScalar("1"), "LABEL": diagmodel.TextScalar("load1"),
		"DB_NAME": diagmodel.TextScalar("db"), "TABLE_NAME": diagmodel.TextScalar("t"),
		"STATE": diagmodel.TextScalar("CANCELLED"), "SCAN_ROWS": diagmodel.IntScalar(100),
		"FILTERED_ROWS": diagmodel.IntScalar(0), "ERROR_MSG": diagmodel.TextScalar("[E1008] Reached timeout"),
	})
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descRoutineLoads: {Rows: nil},
		descLoadsLive:    {Rows: loads},
		descLoadsHistory: {Rows: nil},
	})

	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)

	found := fs.ByType("ingestion_failure_category_timeout")
	require.Len(t, found, 1, "must classify as timeout even though the message contains the word 'reached'")
	assert.Empty(t, fs.ByType("ingestion_failure_category_data_quality"))
}

// Live and historical rows sharing (label, job_id) must dedup to one.
func TestMergeLoadRowsDedupsByLabelAndJobID(t *testing.T) {
	row := func(state string) diagmodel.Row {
		return diagmodel.Row{
			"JOB_ID": diagmodel.TextScalar("42"), "LABEL": diagmodel.TextScalar("dup_label"),
			"DB_NAME": diagmodel.TextScalar("db"), "TABLE_NAME": diagmodel.TextScalar("t"),
			"STATE": diagmodel.TextScalar(state), "SCAN_ROWS": diagmodel.IntScalar(10),
			"FILTERED_ROWS": diagmodel.IntScalar(0), "ERROR_MSG": diagmodel.TextScalar(""),
		}
	}
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descLoadsLive:    {Rows: []diagmodel.Row{row("FINISHED")}},
		descLoadsHistory: {Rows: []diagmodel.Row{row("FINISHED")}},
	})

	merged := mergeLoadRows(data)
	require.Len(t, merged, 1, "live and historical rows with the same (label, job_id) must dedup to one")
}

func TestMissingRoutineLoadsYieldsInsufficientData(t *testing.T) {
	e := testExpert()
	data := datasetWith(map[string]diagmodel.CollectedResult{
		descRoutineLoads: {Err: context.DeadlineExceeded},
		descLoadsLive:    {Rows: nil},
		descLoadsHistory: {Rows: nil},
	})
	fs, err := e.analyze(context.Background(), nil, data)
	require.NoError(t, err)
	found := fs.ByType("routine_load_health_insufficient_data")
	require.Len(t, found, 1)
	assert.Equal(t, diagmodel.SeverityInsight, found[0].Severity)
}

func TestCorrelationPassEmitsCompoundFindingForStalledUnderPressure(t *testing.T) {
	fs := &diagmodel.FindingSet{Findings: []diagmodel.Finding{
		{Type: "routine_load_stalled", Severity: diagmodel.SeverityCritical},
		{Type: "ingestion_failure_category_resource", Severity: diagmodel.SeverityWarning, Pass: "resource_pressure"},
	}}
	correlationPass(fs)
	compound := fs.ByType("ingestion_stalled_under_resource_pressure")
	require.Len(t, compound, 1)
	assert.Equal(t, diagmodel.SeverityCritical, compound[0].Severity)
}
