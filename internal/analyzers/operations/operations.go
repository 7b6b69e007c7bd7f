// Package operations implements the operations domain expert:
// cluster-topology health - alive-backend ratio, frontend clock skew, and
// config/version drift between frontends.
package operations

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/expert"
	"github.com/tracymacding/starrocks-diag-engine/internal/rules"
)

var passOrder = []string{"alive_backends_ratio", "clock_skew", "config_drift", "correlation"}

// Expert implements expert.Expert for the operations domain.
type Expert struct {
	lib *rules.Library
}

func New(lib *rules.Library) *Expert {
	return &Expert{lib: lib}
}

func (e *Expert) Metadata() expert.Metadata {
	return expert.Metadata{
		Name:                   "operations",
		Version:                "1.0.0",
		Description:            "Diagnoses cluster-topology health: alive-backend ratio, frontend clock skew, and version/config drift.",
		SupportedArchitectures: []expert.Architecture{expert.ArchSharedNothing, expert.ArchSharedData},
	}
}

func (e *Expert) Tools() []expert.Tool {
	return []expert.Tool{e.healthCheckTool()}
}

func (e *Expert) healthCheckTool() expert.Tool {
	return expert.Tool{
		Spec: expert.ToolSpec{
			Name:        "operations_health_check",
			Description: "Checks alive-backend ratio, frontend clock skew, and frontend version drift.",
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
	descBackends  = "backends"
	descFrontends = "frontends"
)

func (e *Expert) plan(args map[string]any) (diagmodel.Plan, error) {
	return diagmodel.Plan{
		{ID: descBackends, Kind: diagmodel.QueryAdmin, StatementOrPath: "SHOW BACKENDS", Required: true},
		{ID: descFrontends, Kind: diagmodel.QueryAdmin, StatementOrPath: "SHOW FRONTENDS", Required: true},
	}, nil
}

func (e *Expert) analyze(ctx context.Context, args map[string]any, data *diagmodel.CollectedDataset) (*diagmodel.FindingSet, error) {
	fs := &diagmodel.FindingSet{}

	aliveBackendsRatioPass(e.lib, data, fs)
	clockSkewPass(e.lib, data, fs)
	configDriftPass(data, fs)
	correlationPass(fs)

	return fs, nil
}

// aliveBackendsRatioPass checks the cluster's alive-backend ratio against
// the configured healthy floor.
func aliveBackendsRatioPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "alive_backends_ratio"
	res, ok := data.Get(descBackends)
	if !ok || res.Failed() || len(res.Rows) == 0 {
		addInsufficientData(fs, pass, 0, descBackends, res.Err)
		return
	}

	var alive, total int
	var deadIDs []string
	for _, row := range res.Rows {
		total++
		if row["Alive"].AsString() == "true" {
			alive++
		} else {
			deadIDs = append(deadIDs, row["BackendId"].AsString())
		}
	}
	ratio := float64(alive) / float64(total)
	band := lib.Operations()
	if ratio >= band.MinAliveBackendsRatio {
		return
	}

	sort.Strings(deadIDs)
	sev := diagmodel.SeverityWarning
	prio := diagmodel.PriorityHigh
	if ratio < band.MinAliveBackendsRatio*0.5 {
		sev = diagmodel.SeverityCritical
		prio = diagmodel.PriorityImmediate
	}
	fs.Add(diagmodel.Finding{
		Severity: sev,
		Priority: prio,
		Type:     "alive_backends_ratio_low",
		Message:  fmt.Sprintf("%d of %d backends are alive (%.0f%%), below the healthy floor of %.0f%%", alive, total, ratio*100, band.MinAliveBackendsRatio*100),
		Evidence: map[string]any{"alive": alive, "total": total, "ratio": ratio, "dead_backend_ids": deadIDs},
		Impact:   "reduced backend capacity increases per-node load and risks cascading failure",
		Pass:     pass,
	})
}

// clockSkewPass compares frontends' last-heartbeat timestamps pairwise;
// all frontends should report heartbeats within a small window of each
// other when NTP is healthy.
func clockSkewPass(lib *rules.Library, data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "clock_skew"
	res, ok := data.Get(descFrontends)
	if !ok || res.Failed() || len(res.Rows) < 2 {
		addInsufficientData(fs, pass, 0, descFrontends, res.Err)
		return
	}

	var earliest, latest float64
	var earliestName, latestName string
	for i, row := range res.Rows {
		hb, ok := row["LastHeartbeat"].AsNumeric()
		if !ok {
			continue
		}
		name := row["Name"].AsString()
		if i == 0 || hb < earliest {
			earliest, earliestName = hb, name
		}
		if i == 0 || hb > latest {
			latest, latestName = hb, name
		}
	}

	skewSeconds := math.Abs(latest-earliest) / 1000
	band := lib.Operations()
	if skewSeconds > band.ClockSkewWarnSeconds {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityWarning,
			Priority: diagmodel.PriorityMedium,
			Type:     "frontend_clock_skew",
			Message:  fmt.Sprintf("frontends %s and %s report heartbeats %.1fs apart, above the %0.fs warning threshold", earliestName, latestName, skewSeconds, band.ClockSkewWarnSeconds),
			Evidence: map[string]any{"skew_seconds": skewSeconds, "earliest": earliestName, "latest": latestName},
			Impact:   "clock skew between frontends can cause inconsistent timestamp-based metadata decisions",
			Pass:     pass,
		})
	}
}

// configDriftPass flags a cluster running mismatched frontend binary
// versions, a common precursor to metadata-replication bugs.
func configDriftPass(data *diagmodel.CollectedDataset, fs *diagmodel.FindingSet) {
	const pass = "config_drift"
	res, ok := data.Get(descFrontends)
	if !ok || res.Failed() {
		return // clock_skew pass already recorded insufficient_data
	}

	versions := map[string][]string{}
	for _, row := range res.Rows {
		v := row["Version"].AsString()
		name := row["Name"].AsString()
		versions[v] = append(versions[v], name)
	}
	if len(versions) <= 1 {
		return
	}

	fs.Add(diagmodel.Finding{
		Severity: diagmodel.SeverityWarning,
		Priority: diagmodel.PriorityHigh,
		Type:     "frontend_version_drift",
		Message:  fmt.Sprintf("frontends are running %d distinct binary versions", len(versions)),
		Evidence: map[string]any{"versions": versions},
		Impact:   "mixed-version frontends risk metadata incompatibilities during rolling upgrades",
		Pass:     pass,
	})
}

// correlationPass is the final cross-dimensional pass.
func correlationPass(fs *diagmodel.FindingSet) {
	hasLowAlive := len(fs.ByType("alive_backends_ratio_low")) > 0
	hasSkew := len(fs.ByType("frontend_clock_skew")) > 0
	if hasLowAlive && hasSkew {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityCritical,
			Priority: diagmodel.PriorityImmediate,
			Type:     "topology_instability",
			Message:  "backends are dropping out of the cluster while frontend clocks are drifting - consistent with a broader network/infrastructure problem",
			Evidence: map[string]any{"source_finding_types": []string{"alive_backends_ratio_low", "frontend_clock_skew"}},
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
