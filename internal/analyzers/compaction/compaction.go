// Package compaction implements the compaction domain expert: LSM
// compaction-score health, thread sizing, and queue/capacity saturation for
// the shared_data (cloud-native) compaction subsystem.
package compaction

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/expert"
	"github.com/tracymacding/starrocks-diag-engine/internal/rules"
)

// passOrder fixes the analyzer pass ordering for this domain's finding
// sort.
var passOrder = []string{"score_band", "thread_undersizing", "queue_backlog", "capacity_saturation", "parameter_audit", "correlation"}

// Expert implements expert.Expert for the compaction domain.
type Expert struct {
	lib *rules.Library
}

func New(lib *rules.Library) *Expert {
	return &Expert{lib: lib}
}

func (e *Expert) Metadata() expert.Metadata {
	return expert.Metadata{
		Name:                   "compaction",
		Version:                "1.0.0",
		Description:            "Diagnoses compaction-score health, thread sizing, and compaction queue/capacity saturation.",
		SupportedArchitectures: []expert.Architecture{expert.ArchSharedData},
	}
}

func (e *Expert) Tools() []expert.Tool {
	return []expert.Tool{e.healthCheckTool()}
}

func (e *Expert) healthCheckTool() expert.Tool {
	return expert.Tool{
		Spec: expert.ToolSpec{
			Name:        "compaction_health_check",
			Description: "Checks compaction-score distribution, thread sizing, and queue/capacity saturation across the cluster.",
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
	descPartitionsMeta   = "partitions_meta"
	descFECompactionCfg  = "fe_compaction_config"
	descBackendCount     = "backend_count"
	descCompactionTasks  = "compaction_tasks"
	descBEThreadConfig   = "be_thread_config"
)

func (e *Expert) plan(args map[string]any) (diagmodel.Plan, error) {
	stmt := "SELECT DB_NAME, TABLE_NAME, PARTITION_NAME, MAX_CS, AVG_CS, P50_CS FROM information_schema.partitions_meta"
	if db, ok := args["database"].(string); ok && db != "" {
		stmt += fmt.Sprintf(" WHERE DB_NAME = '%s'", db)
	}
	return diagmodel.Plan{
		{ID: descPartitionsMeta, Kind: diagmodel.QuerySQL, StatementOrPath: stmt, Required: true},
		{ID: descFECompactionCfg, Kind: diagmodel.QueryAdmin, StatementOrPath: "ADMIN SHOW FRONTEND CONFIG LIKE 'lake_compaction_max_tasks'"},
		{ID: descBackendCount, Kind: diagmodel.QueryAdmin, StatementOrPath: "SHOW BACKENDS"},
		{ID: descCompactionTasks, Kind: diagmodel.QuerySQL, StatementOrPath: "SELECT BE_ID, TABLET_ID, START_TIME, FINISH_TIME, STATUS FROM information_schema.be_cloud_native_compactions"},
		{ID: descBEThreadConfig, Kind: diagmodel.QuerySQL, StatementOrPath: "SELECT BE_ID, NAME, VALUE FROM information_schema.be_configs WHERE NAME = 'lake_compaction_threads'"},
	}, nil
}

func (e *Expert) analyze(ctx context.Context, args map[string]any, data *diagmodel.CollectedDataset) (*diagmodel.FindingSet, error) {
	fs := &diagmodel.FindingSet{}

	scoreBandPass(e.lib, data, fs)
	threadUndersizingPass(e.lib, data, fs)
	queueBacklogPass(e.lib, data, fs)
	capacitySaturationPass(e.lib, data, fs)
	parameterAuditPass(e.lib, data, fs)
	correlationPass(fs)

	return fs, nil
}

// partitionScore is one partitions_meta row reduced to what the score_band
// pass needs.
type partitionScore struct {
	DB, Table, Partition string
	MaxCS                 float64
}

// scoreBandPass classifies each partition's MAX_CS, aggregates counts, and
// emits a finding at the highest present band with the top-10 offenders as
// evidence.
func scoreBandPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "score_band"
	res, ok := data.Get(descPartitionsMeta)
	if !ok || res.Failed() {
		addInsufficientData(fs, pass, 0, descPartitionsMeta, res.Err)
		return
	}

	counts := map[rules.Band]int{}
	var scored []partitionScore
	for _, row := range res.Rows {
		cs, ok := row["MAX_CS"].AsFloat()
		if !ok {
			continue
		}
		band := lib.ClassifyCompactionScore(cs)
		counts[band]++
		scored = append(scored, partitionScore{
			DB:        row["DB_NAME"].AsString(),
			Table:     row["TABLE_NAME"].AsString(),
			Partition: row["PARTITION_NAME"].AsString(),
			MaxCS:     cs,
		})
	}
	if len(scored) == 0 {
		addInsufficientData(fs, pass, 0, descPartitionsMeta, nil)
		return
	}

	highest := highestBand(counts)
	if highest == rules.BandExcellent || highest == rules.BandNormal {
		return // nothing worth surfacing
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].MaxCS > scored[j].MaxCS })
	top := scored
	if len(top) > 10 {
		top = top[:10]
	}
	evidence := make([]map[string]any, len(top))
	for i, p := range top {
		evidence[i] = map[string]any{
			"db": p.DB, "table": p.Table, "partition": p.Partition, "max_cs": p.MaxCS,
		}
	}

	sev, findingType, prio := severityForBand(highest)
	fs.Add(diagmodel.Finding{
		Severity: sev,
		Priority: prio,
		Type:     findingType,
		Message:  fmt.Sprintf("%d partition(s) in the %s compaction-score band (top score %.0f)", counts[highest], highest, top[0].MaxCS),
		Evidence: map[string]any{
			"band_counts":       countsToAny(counts),
			"top_offenders":     evidence,
			"top_offender_table": fmt.Sprintf("%s.%s", top[0].DB, top[0].Table),
			"top_offender_partition": top[0].Partition,
		},
		Impact:         "compaction debt at this level degrades read amplification and can stall writes",
		Pass:           pass,
		DiscoveryIndex: 0,
	})
}

func highestBand(counts map[rules.Band]int) rules.Band {
	order := []rules.Band{rules.BandEmergency, rules.BandCritical, rules.BandWarning, rules.BandNormal, rules.BandExcellent}
	for _, b := range order {
		if counts[b] > 0 {
			return b
		}
	}
	return rules.BandExcellent
}

func severityForBand(b rules.Band) (diagmodel.Severity, string, diagmodel.Priority) {
	switch b {
	case rules.BandEmergency:
		return diagmodel.SeverityCritical, "emergency_compaction_score", diagmodel.PriorityImmediate
	case rules.BandCritical:
		return diagmodel.SeverityCritical, "critical_compaction_score", diagmodel.PriorityHigh
	case rules.BandWarning:
		return diagmodel.SeverityWarning, "elevated_compaction_score", diagmodel.PriorityMedium
	default:
		return diagmodel.SeverityIssue, "compaction_score_issue", diagmodel.PriorityLow
	}
}

func countsToAny(counts map[rules.Band]int) map[string]int {
	out := make(map[string]int, len(counts))
	for b, n := range counts {
		out[string(b)] = n
	}
	return out
}

// threadUndersizingPass compares the configured lake_compaction_threads
// against the library's recommended range for the observed node count.
func threadUndersizingPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "thread_undersizing"
	cfgRes, cfgOK := data.Get(descBEThreadConfig)
	beRes, beOK := data.Get(descBackendCount)
	if !cfgOK || cfgRes.Failed() || !beOK || beRes.Failed() {
		addInsufficientData(fs, pass, 0, descBEThreadConfig, firstErr(cfgRes, beRes))
		return
	}
	if len(cfgRes.Rows) == 0 || len(beRes.Rows) == 0 {
		addInsufficientData(fs, pass, 0, descBEThreadConfig, nil)
		return
	}

	cores := len(beRes.Rows) // one row per backend stands in for node count absent a dedicated core count column
	band := lib.ThreadConfig()
	recommendedMin := lib.RecommendedCompactionThreads(cores, band.MinPerCore)

	idx := 0
	for _, row := range cfgRes.Rows {
		configured, ok := row["VALUE"].AsNumeric()
		if !ok {
			continue
		}
		if int(configured) < recommendedMin {
			fs.Add(diagmodel.Finding{
				Severity: diagmodel.SeverityWarning,
				Priority: diagmodel.PriorityMedium,
				Type:     "thread_undersizing",
				Message:  fmt.Sprintf("backend %s configures %d compaction threads, below the recommended minimum of %d", row["BE_ID"].AsString(), int(configured), recommendedMin),
				Evidence: map[string]any{"be_id": row["BE_ID"].AsString(), "configured": configured, "recommended_min": recommendedMin},
				Impact:   "too few compaction threads slows compaction-score recovery under write pressure",
				RecommendedActions: []diagmodel.Action{{
					Description: fmt.Sprintf("raise lake_compaction_threads to at least %d", recommendedMin),
				}},
				Pass:           pass,
				DiscoveryIndex: idx,
			})
			idx++
		}
	}
}

// queueBacklogPass classifies compaction-queue depth over compaction task
// rows.
func queueBacklogPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "queue_backlog"
	res, ok := data.Get(descCompactionTasks)
	if !ok || res.Failed() {
		addInsufficientData(fs, pass, 0, descCompactionTasks, res.Err)
		return
	}

	band := lib.QueueBacklog()
	var pending, running int
	idx := 0
	for _, row := range res.Rows {
		if !row["FINISH_TIME"].IsNull() {
			continue // not a running task
		}
		running++
		status := row["STATUS"].AsString()
		if status == "PENDING" {
			pending++
		}
	}

	switch {
	case pending > band.CriticalPendingCount:
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityCritical,
			Priority: diagmodel.PriorityHigh,
			Type:     "load_queue_backlog",
			Message:  fmt.Sprintf("%d compaction tasks pending, above the critical threshold of %d", pending, band.CriticalPendingCount),
			Evidence: map[string]any{"pending": pending, "running": running},
			Impact:   "compaction is falling behind write volume",
			Pass:     pass, DiscoveryIndex: idx,
		})
		idx++
	case pending > band.WarningPendingCount:
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityWarning,
			Priority: diagmodel.PriorityMedium,
			Type:     "load_queue_buildup",
			Message:  fmt.Sprintf("%d compaction tasks pending, above the warning threshold of %d", pending, band.WarningPendingCount),
			Evidence: map[string]any{"pending": pending, "running": running},
			Pass:     pass, DiscoveryIndex: idx,
		})
		idx++
	}
}

// capacitySaturationPass checks compaction demand against effective task
// capacity.
func capacitySaturationPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "capacity_saturation"
	cfgRes, cfgOK := data.Get(descFECompactionCfg)
	beRes, beOK := data.Get(descBackendCount)
	tasksRes, tasksOK := data.Get(descCompactionTasks)
	if !cfgOK || cfgRes.Failed() || len(cfgRes.Rows) == 0 {
		addInsufficientData(fs, pass, 0, descFECompactionCfg, cfgRes.Err)
		return
	}
	if !beOK || beRes.Failed() || !tasksOK || tasksRes.Failed() {
		addInsufficientData(fs, pass, 0, descBackendCount, firstErr(beRes, tasksRes))
		return
	}

	configuredRaw, _ := cfgRes.Rows[0]["Value"].AsNumeric()
	nodeCount := len(beRes.Rows)
	capacity := lib.EffectiveCompactionCapacity(int(configuredRaw), nodeCount)

	if capacity == 0 {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityCritical,
			Priority: diagmodel.PriorityHigh,
			Type:     "compaction_disabled",
			Message:  "lake_compaction_max_tasks is 0 - compaction is fully disabled on this cluster",
			Evidence: map[string]any{"lake_compaction_max_tasks": int(configuredRaw)},
			Impact:   "compaction debt will grow unbounded until this is re-enabled",
			RecommendedActions: []diagmodel.Action{{
				Description: "re-enable compaction in adaptive mode",
				Statement:   `ADMIN SET FRONTEND CONFIG ("lake_compaction_max_tasks" = "-1")`,
			}},
			Pass: pass,
		})
		return
	}

	var unscheduled, runningTablets int
	for _, row := range tasksRes.Rows {
		if !row["FINISH_TIME"].IsNull() {
			continue
		}
		if row["STATUS"].AsString() == "PENDING" {
			unscheduled++
		} else {
			runningTablets++
		}
	}
	d := unscheduled + runningTablets
	band := lib.QueueBacklog()
	if d == 0 || float64(d) <= band.CapacityWarnRatio*float64(capacity) {
		return
	}

	sev := diagmodel.SeverityWarning
	prio := diagmodel.PriorityHigh
	if float64(d) > band.CapacityCriticalRatio*float64(capacity) {
		sev = diagmodel.SeverityCritical
		prio = diagmodel.PriorityImmediate
	}
	recommendedMaxTasks := int(math.Ceil(band.CapacityCriticalRatio * float64(d)))

	fs.Add(diagmodel.Finding{
		Severity: sev,
		Priority: prio,
		Type:     "compaction_capacity_insufficient",
		Message:  fmt.Sprintf("compaction demand (%d) exceeds %.0f%% of available capacity (%d)", d, band.CapacityWarnRatio*100, capacity),
		Evidence: map[string]any{
			"demand":                 d,
			"capacity":               capacity,
			"unscheduled_tablets":    unscheduled,
			"running_tablets":        runningTablets,
			"recommended_max_tasks":  recommendedMaxTasks,
		},
		Impact: "backlog will continue to grow until capacity is raised",
		Pass:   pass,
	})
}

// parameterAuditPass flags an fe config value outside the sane set
// {disabled, adaptive, positive literal}.
func parameterAuditPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "parameter_audit"
	res, ok := data.Get(descFECompactionCfg)
	if !ok || res.Failed() || len(res.Rows) == 0 {
		addInsufficientData(fs, pass, 0, descFECompactionCfg, res.Err)
		return
	}
	v, _ := res.Rows[0]["Value"].AsNumeric()
	band := lib.FEConfig()
	if int(v) < band.Adaptive {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityIssue,
			Priority: diagmodel.PriorityLow,
			Type:     "invalid_compaction_config",
			Message:  fmt.Sprintf("lake_compaction_max_tasks=%d is not a recognized value (expected -1 adaptive, 0 disabled, or a positive literal)", int(v)),
			Pass:     pass,
		})
	}
}

// correlationPass is the final cross-dimensional pass: read-only over
// the finding set, it emits compound findings by reference.
func correlationPass(fs *diagmodel.FindingSet) {
	hasUndersizing := len(fs.ByType("thread_undersizing")) > 0
	hasBacklog := len(fs.ByType("load_queue_backlog")) > 0
	if hasUndersizing && hasBacklog {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityCritical,
			Priority: diagmodel.PriorityImmediate,
			Type:     "compaction_thread_starved_backlog",
			Message:  "queue backlog is compounded by undersized compaction thread pools",
			Evidence: map[string]any{"source_finding_types": []string{"thread_undersizing", "load_queue_backlog"}},
			Impact:   "raising thread counts alone may not clear the backlog without also addressing demand",
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

func firstErr(results ...diagmodel.CollectedResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
