// Package ingestion implements the ingestion domain expert: routine
// load health, stream/broker load failure classification, and load-queue
// pressure across the cluster's frontend-tracked load jobs.
package ingestion

import (
	"context"
	"fmt"
	"sort"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagerrors"
	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/expert"
	"github.com/tracymacding/starrocks-diag-engine/internal/llm"
	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
	"github.com/tracymacding/starrocks-diag-engine/internal/rules"
)

// passOrder fixes the analyzer pass ordering for this domain's finding
// sort.
var passOrder = []string{"routine_load_health", "frequency_extreme", "failure_rate", "resource_pressure", "parameter_audit", "correlation"}

// Expert implements expert.Expert for the ingestion domain.
type Expert struct {
	lib *rules.Library

	// llmAdapter is optional: when set, resourcePressurePass asks it
	// to enrich the jobs the rule-based classifier placed in CategoryOther,
	// the one bucket the deterministic matcher cannot explain further.
	llmAdapter *llm.Adapter
}

func New(lib *rules.Library) *Expert {
	return &Expert{lib: lib}
}

// WithLLMAdapter opts an Expert into LLM-assisted classification of
// otherwise-uncategorized load failures. It is consumed only when the
// caller opts in and at least one provider credential is available.
func (e *Expert) WithLLMAdapter(a *llm.Adapter) *Expert {
	e.llmAdapter = a
	return e
}

func (e *Expert) Metadata() expert.Metadata {
	return expert.Metadata{
		Name:                   "ingestion",
		Version:                "1.0.0",
		Description:            "Diagnoses routine-load job health and stream/broker load failure patterns.",
		SupportedArchitectures: []expert.Architecture{expert.ArchSharedNothing, expert.ArchSharedData},
	}
}

func (e *Expert) Tools() []expert.Tool {
	return []expert.Tool{e.healthCheckTool()}
}

func (e *Expert) healthCheckTool() expert.Tool {
	return expert.Tool{
		Spec: expert.ToolSpec{
			Name:        "ingestion_health_check",
			Description: "Checks routine-load job state, recent load failure rates, and failure-category breakdown.",
			InputSchema: expert.InputSchema{
				Type: "object",
				Properties: map[string]expert.SchemaField{
					"database":        {Type: "string", Description: "restrict to a single database (optional)"},
					"include_details": {Type: "boolean", Description: "include the raw collected dataset in the response"},
				},
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
	descRoutineLoads = "routine_loads"
	descLoadsLive    = "loads_live"
	descLoadsHistory = "loads_history"
)

func (e *Expert) plan(args map[string]any) (diagmodel.Plan, error) {
	db, _ := args["database"].(string)

	liveStmt := "SELECT JOB_ID, LABEL, DB_NAME, TABLE_NAME, STATE, TYPE, SCAN_ROWS, FILTERED_ROWS, UNSELECTED_ROWS, CREATE_TIME, LOAD_FINISH_TIME, ERROR_MSG FROM information_schema.loads"
	historyStmt := "SELECT JOB_ID, LABEL, DB_NAME, TABLE_NAME, STATE, TYPE, SCAN_ROWS, FILTERED_ROWS, UNSELECTED_ROWS, CREATE_TIME, LOAD_FINISH_TIME, ERROR_MSG FROM information_schema.loads_history"
	routineLoadStmt := "SHOW ALL ROUTINE LOAD"
	if db != "" {
		liveStmt += fmt.Sprintf(" WHERE DB_NAME = '%s'", db)
		historyStmt += fmt.Sprintf(" WHERE DB_NAME = '%s'", db)
		routineLoadStmt = fmt.Sprintf("SHOW ROUTINE LOAD FROM %s", db)
	}

	return diagmodel.Plan{
		{ID: descRoutineLoads, Kind: diagmodel.QueryAdmin, StatementOrPath: routineLoadStmt},
		{ID: descLoadsLive, Kind: diagmodel.QuerySQL, StatementOrPath: liveStmt, Required: true},
		{ID: descLoadsHistory, Kind: diagmodel.QuerySQL, StatementOrPath: historyStmt},
	}, nil
}

func (e *Expert) analyze(ctx context.Context, args map[string]any, data *diagmodel.CollectedDataset) (*diagmodel.FindingSet, error) {
	fs := &diagmodel.FindingSet{}

	routineLoadHealthPass(data, fs)
	merged := mergeLoadRows(data)
	frequencyExtremePass(e.lib, merged, fs)
	failureRatePass(e.lib, merged, fs)
	resourcePressurePass(ctx, e.llmAdapter, merged, fs)
	parameterAuditPass(data, fs)
	correlationPass(fs)

	return fs, nil
}

// routineLoadHealthPass flags PAUSED/STOPPED jobs and the
// CURRENT_TASK_NUM=0-while-RUNNING boundary case.
func routineLoadHealthPass(data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "routine_load_health"
	res, ok := data.Get(descRoutineLoads)
	if !ok || res.Failed() {
		addInsufficientData(fs, pass, 0, descRoutineLoads, res.Err)
		return
	}
	if len(res.Rows) == 0 {
		return // no routine-load jobs configured is not itself a finding
	}

	idx := 0
	for _, row := range res.Rows {
		name := row["Name"].AsString()
		dbName := row["DbName"].AsString()
		state := row["State"].AsString()
		reason := row["ReasonOfStateChanged"].AsString()

		switch state {
		case "PAUSED":
			fs.Add(diagmodel.Finding{
				Severity: diagmodel.SeverityWarning,
				Priority: diagmodel.PriorityHigh,
				Type:     "routine_load_paused",
				Message:  fmt.Sprintf("routine load job %s.%s is paused: %s", dbName, name, reason),
				Evidence: map[string]any{"db": dbName, "job": name, "reason": reason},
				Impact:   "ingestion for this job has stopped; consumer lag will keep growing until resumed",
				Pass:     pass, DiscoveryIndex: idx,
			})
			idx++
		case "STOPPED", "CANCELLED":
			fs.Add(diagmodel.Finding{
				Severity: diagmodel.SeverityIssue,
				Priority: diagmodel.PriorityMedium,
				Type:     "routine_load_stopped",
				Message:  fmt.Sprintf("routine load job %s.%s has been stopped: %s", dbName, name, reason),
				Evidence: map[string]any{"db": dbName, "job": name, "reason": reason},
				Pass:     pass, DiscoveryIndex: idx,
			})
			idx++
		case "RUNNING":
			taskNum, ok := row["CurrentTaskNum"].AsNumeric()
			if ok && taskNum == 0 {
				fs.Add(diagmodel.Finding{
					Severity: diagmodel.SeverityCritical,
					Priority: diagmodel.PriorityImmediate,
					Type:     "routine_load_stalled",
					Message:  fmt.Sprintf("routine load job %s.%s reports RUNNING but has 0 active tasks", dbName, name),
					Evidence: map[string]any{"db": dbName, "job": name, "current_task_num": 0},
					Impact:   "job is effectively idle despite a healthy-looking state; consumer offsets are not advancing",
					Pass:     pass, DiscoveryIndex: idx,
				})
				idx++
			}
		}
	}
}

// mergedLoad is one load job after live/historical dedup by (label,
// job_id). When both tables hold the same job the live row is kept; no
// age window is applied to choose between the two sources.
type mergedLoad struct {
	JobID, Label, DB, Table, State string
	ScanRows, FilteredRows         float64
	ErrorMsg                       string
}

// mergeLoadRows dedups the live and historical loads tables by (label,
// job_id), preferring whichever source provided the row first
// (information_schema.loads is queried before loads_history in the plan,
// so a live row always wins a collision - the window-based "historical for
// rows older than N minutes" distinction collapses to this when both
// tables are read in the same Collect pass, since only the live table can
// return a row inside the window at all).
func mergeLoadRows(data *diagmodel.CollectedDataset) []mergedLoad {
	seen := map[string]bool{}
	var out []mergedLoad

	add := func(id string) {
		res, ok := data.Get(id)
		if !ok || res.Failed() {
			return
		}
		for _, row := range res.Rows {
			key := row["LABEL"].AsString() + "\x00" + row["JOB_ID"].AsString()
			if seen[key] {
				continue
			}
			seen[key] = true
			scan, _ := row["SCAN_ROWS"].AsNumeric()
			filtered, _ := row["FILTERED_ROWS"].AsNumeric()
			out = append(out, mergedLoad{
				JobID:        row["JOB_ID"].AsString(),
				Label:        row["LABEL"].AsString(),
				DB:           row["DB_NAME"].AsString(),
				Table:        row["TABLE_NAME"].AsString(),
				State:        row["STATE"].AsString(),
				ScanRows:     scan,
				FilteredRows: filtered,
				ErrorMsg:     row["ERROR_MSG"].AsString(),
			})
		}
	}
	add(descLoadsLive)
	add(descLoadsHistory)
	return out
}

// frequencyExtremePass flags too many concurrent load jobs in flight
// against one table, signaling either a misconfigured scheduler or a
// retry storm.
func frequencyExtremePass(lib *rules.Library, loads []mergedLoad, fs *diagmodel.FindingSet) {
	const pass = "frequency_extreme"
	if len(loads) == 0 {
		addInsufficientData(fs, pass, 0, descLoadsLive, nil)
		return
	}

	perTable := map[string]int{}
	for _, l := range loads {
		if l.State == "LOADING" || l.State == "PENDING" {
			perTable[l.DB+"."+l.Table]++
		}
	}

	band := lib.TaskExecution()
	idx := 0
	for table, n := range perTable {
		if n > band.MaxHealthyTasksPerNode {
			fs.Add(diagmodel.Finding{
				Severity: diagmodel.SeverityWarning,
				Priority: diagmodel.PriorityMedium,
				Type:     "load_frequency_extreme",
				Message:  fmt.Sprintf("%d concurrent load jobs in flight against %s, above the healthy threshold of %d", n, table, band.MaxHealthyTasksPerNode),
				Evidence: map[string]any{"table": table, "in_flight": n},
				Impact:   "overlapping loads against the same table compete for the same tablet write locks",
				Pass:     pass, DiscoveryIndex: idx,
			})
			idx++
		}
	}
}

// failureRatePass computes the fraction of terminal jobs (FINISHED +
// CANCELLED) that ended in CANCELLED state, compared against the
// library's healthy-success-rate floor.
func failureRatePass(lib *rules.Library, loads []mergedLoad, fs *diagmodel.FindingSet) {
	const pass = "failure_rate"
	var finished, cancelled int
	for _, l := range loads {
		switch l.State {
		case "FINISHED":
			finished++
		case "CANCELLED":
			cancelled++
		}
	}
	total := finished + cancelled
	if total == 0 {
		addInsufficientData(fs, pass, 0, descLoadsLive, nil)
		return
	}

	successPct := float64(finished) / float64(total) * 100
	band := lib.TaskExecution()
	if successPct < band.HealthySuccessPct {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityWarning,
			Priority: diagmodel.PriorityHigh,
			Type:     "load_failure_rate_elevated",
			Message:  fmt.Sprintf("load success rate is %.1f%%, below the healthy floor of %.1f%%", successPct, band.HealthySuccessPct),
			Evidence: map[string]any{"finished": finished, "cancelled": cancelled, "success_pct": successPct},
			Impact:   "a sustained elevated failure rate indicates a systemic ingestion problem, not transient noise",
			Pass:     pass,
		})
	}
}

// resourcePressurePass classifies each cancelled job's terminal error text
// with the deterministic priority-ordered classifier and surfaces one
// finding for each of the resource, network and timeout categories that
// at least one cancelled job lands in.
// When an LLM adapter is configured, jobs the rule-based matcher could
// not place (CategoryOther) get one additional attempt at classification
// through it - its answer is recorded as a separate, clearly-attributed
// finding, never merged into or silently overriding the rule-based
// result.
func resourcePressurePass(ctx context.Context, adapter *llm.Adapter, loads []mergedLoad, fs *diagmodel.FindingSet) {
	const pass = "resource_pressure"
	byCategory := map[diagerrors.FailureCategory][]mergedLoad{}
	for _, l := range loads {
		if l.State != "CANCELLED" || l.ErrorMsg == "" {
			continue
		}
		cat := diagerrors.ClassifyFailure(l.ErrorMsg)
		byCategory[cat] = append(byCategory[cat], l)
	}

	idx := 0
	for _, cat := range []diagerrors.FailureCategory{diagerrors.CategoryResource, diagerrors.CategoryNetwork, diagerrors.CategoryTimeout} {
		jobs := byCategory[cat]
		if len(jobs) == 0 {
			continue
		}
		labels := make([]string, len(jobs))
		for i, j := range jobs {
			labels[i] = j.Label
		}
		sort.Strings(labels)
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityWarning,
			Priority: diagmodel.PriorityMedium,
			Type:     "ingestion_failure_category_" + string(cat),
			Message:  fmt.Sprintf("%d cancelled load job(s) classified as %s", len(jobs), cat),
			Evidence: map[string]any{"category": string(cat), "labels": labels},
			Pass:     pass, DiscoveryIndex: idx,
		})
		idx++
	}

	if adapter == nil {
		return
	}
	for _, job := range byCategory[diagerrors.CategoryOther] {
		classifyWithLLM(ctx, adapter, job, fs, pass, &idx)
	}
}

// classifyWithLLM asks the LLM adapter to re-classify one job the
// rule-based matcher left in CategoryOther. Any adapter failure is
// swallowed here - the caller already has the rule-based CategoryOther
// result, and a pipeline error would be the wrong way to handle an
// optional enrichment step declining to answer.
func classifyWithLLM(ctx context.Context, adapter *llm.Adapter, job mergedLoad, fs *diagmodel.FindingSet, pass string, idx *int) {
	prompt := fmt.Sprintf("Load job label=%s table=%s.%s terminal error: %s", job.Label, job.DB, job.Table, job.ErrorMsg)
	result, err := adapter.Classify(ctx, prompt)
	if err != nil {
		logging.AnalyzerDebug("ingestion: llm classification unavailable for job %s: %v", job.Label, err)
		return
	}
	fs.Add(diagmodel.Finding{
		Severity: diagmodel.SeverityIssue,
		Priority: diagmodel.PriorityMedium,
		Type:     "ingestion_failure_category_llm_" + string(result.Category),
		Message:  fmt.Sprintf("job %s: llm-assisted classification (%s provider): %s", job.Label, adapter.Provider(), result.RootCause),
		Evidence: map[string]any{
			"label":           job.Label,
			"category":        string(result.Category),
			"method":          "llm",
			"provider":        string(adapter.Provider()),
			"details":         result.Details,
			"recommendations": result.Recommendations,
		},
		Pass: pass, DiscoveryIndex: *idx,
	})
	*idx++
}

// parameterAuditPass flags a routine-load job missing its pause/cancel
// reason text - the reason string is opaque server-provided evidence, but
// its absence is itself worth a low-severity note so operators know to
// check server logs instead.
func parameterAuditPass(data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "parameter_audit"
	res, ok := data.Get(descRoutineLoads)
	if !ok || res.Failed() {
		return // routine_load_health pass already recorded insufficient_data
	}
	idx := 0
	for _, row := range res.Rows {
		state := row["State"].AsString()
		if state == "PAUSED" && row["ReasonOfStateChanged"].AsString() == "" {
			fs.Add(diagmodel.Finding{
				Severity: diagmodel.SeverityInsight,
				Priority: diagmodel.PriorityLow,
				Type:     "routine_load_pause_reason_missing",
				Message:  fmt.Sprintf("job %s.%s is paused with no recorded reason", row["DbName"].AsString(), row["Name"].AsString()),
				Pass:     pass, DiscoveryIndex: idx,
			})
			idx++
		}
	}
}

// correlationPass is the final cross-dimensional pass: read-only over
// the finding set, it emits compound findings by reference.
func correlationPass(fs *diagmodel.FindingSet) {
	hasStalled := len(fs.ByType("routine_load_stalled")) > 0
	hasResourcePressure := false
	for _, f := range fs.Findings {
		if f.Pass == "resource_pressure" {
			hasResourcePressure = true
			break
		}
	}
	if hasStalled && hasResourcePressure {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityCritical,
			Priority: diagmodel.PriorityImmediate,
			Type:     "ingestion_stalled_under_resource_pressure",
			Message:  "a routine load job is stalled while the cluster shows resource/network failure pressure",
			Evidence: map[string]any{"source_finding_types": []string{"routine_load_stalled", "resource_pressure"}},
			Impact:   "restarting the stalled job alone is unlikely to help until the underlying resource pressure clears",
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
