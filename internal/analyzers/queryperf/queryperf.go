// Package queryperf implements the query-performance domain expert:
// slow/critical query latency, spill pressure, and query-queue depth across
// the cluster's currently executing queries.
package queryperf

import (
	"context"
	"fmt"
	"sort"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/expert"
	"github.com/tracymacding/starrocks-diag-engine/internal/rules"
)

var passOrder = []string{"slow_query", "spill_ratio", "queue_pressure", "correlation"}

// Expert implements expert.Expert for the query-performance domain.
type Expert struct {
	lib *rules.Library
}

func New(lib *rules.Library) *Expert {
	return &Expert{lib: lib}
}

func (e *Expert) Metadata() expert.Metadata {
	return expert.Metadata{
		Name:                   "query_performance",
		Version:                "1.0.0",
		Description:            "Diagnoses slow/critical query latency, spill pressure, and query-queue depth.",
		SupportedArchitectures: []expert.Architecture{expert.ArchSharedNothing, expert.ArchSharedData},
	}
}

func (e *Expert) Tools() []expert.Tool {
	return []expert.Tool{e.healthCheckTool()}
}

func (e *Expert) healthCheckTool() expert.Tool {
	return expert.Tool{
		Spec: expert.ToolSpec{
			Name:        "query_performance_health_check",
			Description: "Checks currently executing queries for slow/critical latency, high spill ratio, and queueing pressure.",
			InputSchema: expert.InputSchema{
				Type:       "object",
				Properties: map[string]expert.SchemaField{},
			},
		},
		Mode:      expert.ModePlan,
		Plan:      e.plan,
		Analyze:   e.analyze,
		Recommend: e.recommend,
		PassOrder: passOrder,
	}
}

const (
	descCurrentQueries = "current_queries"
	descQueryQueue     = "query_queue"
)

func (e *Expert) plan(args map[string]any) (diagmodel.Plan, error) {
	return diagmodel.Plan{
		{ID: descCurrentQueries, Kind: diagmodel.QueryAdmin, StatementOrPath: "SHOW PROC '/current_queries'", Required: true},
		{ID: descQueryQueue, Kind: diagmodel.QueryAdmin, StatementOrPath: "SHOW PROC '/query_queue'"},
	}, nil
}

func (e *Expert) analyze(ctx context.Context, args map[string]any, data *diagmodel.CollectedDataset) (*diagmodel.FindingSet, error) {
	fs := &diagmodel.FindingSet{}

	slowQueryPass(e.lib, data, fs)
	spillRatioPass(e.lib, data, fs)
	queuePressurePass(e.lib, data, fs)
	correlationPass(fs)

	return fs, nil
}

// slowQueryPass classifies every running query's elapsed time against the
// library's slow/critical thresholds.
func slowQueryPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "slow_query"
	res, ok := data.Get(descCurrentQueries)
	if !ok || res.Failed() {
		addInsufficientData(fs, pass, 0, descCurrentQueries, res.Err)
		return
	}

	band := lib.QueryPerf()
	type slow struct {
		QueryID string
		Seconds float64
	}
	var criticals, warnings []slow
	for _, row := range res.Rows {
		ms, ok := row["ExecTimeMs"].AsNumeric()
		if !ok {
			continue
		}
		seconds := ms / 1000
		switch {
		case seconds >= band.CriticalQuerySeconds:
			criticals = append(criticals, slow{row["QueryId"].AsString(), seconds})
		case seconds >= band.SlowQuerySeconds:
			warnings = append(warnings, slow{row["QueryId"].AsString(), seconds})
		}
	}

	sortSlow := func(s []slow) {
		sort.Slice(s, func(i, j int) bool { return s[i].Seconds > s[j].Seconds })
	}
	sortSlow(criticals)
	sortSlow(warnings)

	idx := 0
	for _, q := range criticals {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityCritical,
			Priority: diagmodel.PriorityImmediate,
			Type:     "critical_query_latency",
			Message:  fmt.Sprintf("query %s has run for %.0fs, above the critical threshold of %.0fs", q.QueryID, q.Seconds, band.CriticalQuerySeconds),
			Evidence: map[string]any{"query_id": q.QueryID, "elapsed_seconds": q.Seconds},
			Impact:   "a query running this long is likely consuming disproportionate cluster resources",
			Pass:     pass, DiscoveryIndex: idx,
		})
		idx++
	}
	for _, q := range warnings {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityWarning,
			Priority: diagmodel.PriorityMedium,
			Type:     "slow_query",
			Message:  fmt.Sprintf("query %s has run for %.0fs, above the slow-query threshold of %.0fs", q.QueryID, q.Seconds, band.SlowQuerySeconds),
			Evidence: map[string]any{"query_id": q.QueryID, "elapsed_seconds": q.Seconds},
			Pass:     pass, DiscoveryIndex: idx,
		})
		idx++
	}
}

// spillRatioPass flags queries whose spilled bytes are a large fraction of
// scanned bytes, indicating memory pressure forcing disk-based execution.
func spillRatioPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "spill_ratio"
	res, ok := data.Get(descCurrentQueries)
	if !ok || res.Failed() {
		addInsufficientData(fs, pass, 0, descCurrentQueries, res.Err)
		return
	}

	band := lib.QueryPerf()
	idx := 0
	for _, row := range res.Rows {
		scanBytes, ok := row["ScanBytes"].AsNumeric()
		if !ok || scanBytes <= 0 {
			continue
		}
		spillBytes, ok := row["SpillBytes"].AsNumeric()
		if !ok || spillBytes <= 0 {
			continue
		}
		ratio := spillBytes / scanBytes
		if ratio >= band.HighSpillRatio {
			fs.Add(diagmodel.Finding{
				Severity: diagmodel.SeverityWarning,
				Priority: diagmodel.PriorityMedium,
				Type:     "query_spill_elevated",
				Message:  fmt.Sprintf("query %s spilled %.0f%% of scanned bytes to disk", row["QueryId"].AsString(), ratio*100),
				Evidence: map[string]any{"query_id": row["QueryId"].AsString(), "spill_ratio": ratio},
				Impact:   "disk-based spill execution is an order of magnitude slower than in-memory execution",
				Pass:     pass, DiscoveryIndex: idx,
			})
			idx++
		}
	}
}

// queuePressurePass flags a large number of queries waiting for admission.
func queuePressurePass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "queue_pressure"
	res, ok := data.Get(descQueryQueue)
	if !ok || res.Failed() || len(res.Rows) == 0 {
		addInsufficientData(fs, pass, 0, descQueryQueue, res.Err)
		return
	}

	queued, ok := res.Rows[0]["QueuedQueries"].AsNumeric()
	if !ok {
		addInsufficientData(fs, pass, 0, descQueryQueue, nil)
		return
	}

	band := lib.QueryPerf()
	if int(queued) >= band.HighQueuedQueriesCount {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityWarning,
			Priority: diagmodel.PriorityHigh,
			Type:     "query_queue_pressure",
			Message:  fmt.Sprintf("%d queries are queued for admission, above the threshold of %d", int(queued), band.HighQueuedQueriesCount),
			Evidence: map[string]any{"queued": int(queued)},
			Impact:   "incoming queries are waiting rather than executing",
			Pass:     pass,
		})
	}
}

// correlationPass is the final cross-dimensional pass.
func correlationPass(fs *diagmodel.FindingSet) {
	hasCriticalLatency := len(fs.ByType("critical_query_latency")) > 0
	hasQueuePressure := len(fs.ByType("query_queue_pressure")) > 0
	if hasCriticalLatency && hasQueuePressure {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityCritical,
			Priority: diagmodel.PriorityImmediate,
			Type:     "query_backlog_from_runaway_query",
			Message:  "the query queue is backing up while at least one critically slow query is running",
			Evidence: map[string]any{"source_finding_types": []string{"critical_query_latency", "query_queue_pressure"}},
			Impact:   "killing the runaway query may be the fastest way to relieve the queue",
			Pass:     "correlation",
		})
	}
}

func addInsufficientData(fs *diagmodel.FindingSet, pass string, idx int, descriptor string, err error) {
	msg := fmt.Sprintf("insufficient data from %s to run the %s pass", descriptor, pass)
	if err != nil {
		msg += fmt.Sprintf(": %v", err)
	}
	fs.Add(diagmodel.Finding{
		Severity:       diagmodel.SeverityInsight,
		Priority:       diagmodel.PriorityLow,
		Type:           pass + "_insufficient_data",
		Message:        msg,
		Pass:           pass,
		DiscoveryIndex: idx,
	})
}
