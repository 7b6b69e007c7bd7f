// Package rules implements the rule library: immutable per-domain
// classification tables built from a single static configuration surface
// (config.RuleOverrides). Domain analyzers call ClassifyCompactionScore and
// the per-domain band accessors on a *Library rather than embedding literal
// thresholds.
package rules

import (
	"sync/atomic"

	"github.com/tracymacding/starrocks-diag-engine/internal/config"
)

// Band is a classification-table result name (e.g. "excellent", "critical").
type Band string

const (
	BandExcellent Band = "excellent"
	BandNormal    Band = "normal"
	BandWarning   Band = "warning"
	BandCritical  Band = "critical"
	BandEmergency Band = "emergency"
)

// Verdict describes the outcome of a composite threshold check; no Library
// method returns one.
type Verdict struct {
	Violated bool
	Reason   string
	Severity string // maps to diagmodel.Severity string values; kept untyped to avoid an import cycle back into diagmodel from rules' callers that don't need it
}

// Library is an immutable snapshot of every domain's classification tables.
// A process builds exactly one Library per config generation; hot-reload
// (Watcher) swaps the pointer atomically rather than mutating fields in
// place, so an in-flight classification or accessor call always sees a fully
// consistent table set.
type Library struct {
	overrides config.RuleOverrides
}

// New builds a Library from a RuleOverrides snapshot.
func New(overrides config.RuleOverrides) *Library {
	return &Library{overrides: overrides}
}

// ClassifyCompactionScore implements the compaction_score table:
// excellent<10, normal<50, warning>=100, critical>=500, emergency>=1000.
// A score in [50,100) falls through to "normal", the nearest lower band
// for that unnamed gap - so classifying a band's own lower bound always
// reproduces that band.
func (l *Library) ClassifyCompactionScore(score float64) Band {
	b := l.overrides.CompactionScore
	switch {
	case score >= b.Emergency:
		return BandEmergency
	case score >= b.Critical:
		return BandCritical
	case score >= b.Warning:
		return BandWarning
	case score < b.Excellent:
		return BandExcellent
	default:
		return BandNormal
	}
}

// CompactionScoreBounds exposes the raw thresholds for evidence rendering
// (e.g. the report formatter citing "critical >= 500").
func (l *Library) CompactionScoreBounds() config.CompactionScoreBand {
	return l.overrides.CompactionScore
}

func (l *Library) ThreadConfig() config.ThreadConfigBand { return l.overrides.ThreadConfig }

func (l *Library) TaskExecution() config.TaskExecutionBand { return l.overrides.TaskExecution }

func (l *Library) FEConfig() config.FEConfigBand { return l.overrides.FEConfig }

func (l *Library) QueueBacklog() config.QueueBacklogBand { return l.overrides.QueueBacklog }

func (l *Library) Memory() config.MemoryBand { return l.overrides.Memory }

func (l *Library) QueryPerf() config.QueryPerfBand { return l.overrides.QueryPerf }

func (l *Library) Operations() config.OperationsBand { return l.overrides.Operations }

func (l *Library) ProfileWait() config.ProfileWaitBand { return l.overrides.ProfileWait }

// RecommendedCompactionThreads clamps a per-core thread recommendation into
// [AbsMin, AbsMax].
func (l *Library) RecommendedCompactionThreads(cores int, perCore float64) int {
	b := l.overrides.ThreadConfig
	if perCore < b.MinPerCore {
		perCore = b.MinPerCore
	}
	if perCore > b.MaxPerCore {
		perCore = b.MaxPerCore
	}
	n := int(float64(cores) * perCore)
	if n < b.AbsMin {
		n = b.AbsMin
	}
	if n > b.AbsMax {
		n = b.AbsMax
	}
	return n
}

// EffectiveCompactionCapacity resolves fe.lake_compaction_max_tasks into a
// concrete task slot count for the capacity-saturation pass:
// adaptive ⇒ 16·node_count, disabled ⇒ 0, otherwise the literal value.
func (l *Library) EffectiveCompactionCapacity(configuredMaxTasks, nodeCount int) int {
	b := l.overrides.FEConfig
	switch configuredMaxTasks {
	case b.Disabled:
		return 0
	case b.Adaptive:
		return b.AdaptiveMultiplier * nodeCount
	default:
		return configuredMaxTasks
	}
}

// Holder atomically holds the live Library, swapped wholesale on config
// reload so readers never observe a half-updated table set - rule values
// are always overridable from a single static configuration surface.
type Holder struct {
	ptr atomic.Pointer[Library]
}

func NewHolder(initial *Library) *Holder {
	h := &Holder{}
	h.ptr.Store(initial)
	return h
}

func (h *Holder) Get() *Library { return h.ptr.Load() }

func (h *Holder) Set(l *Library) { h.ptr.Store(l) }
