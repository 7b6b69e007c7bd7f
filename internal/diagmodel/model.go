// Package diagmodel defines the shared data model every diagnostic
// component operates on: query descriptors, the collected dataset,
// findings, recommendations, health scores and profile trees. It has no
// dependencies on any other internal package so probe, rules, expert,
// pipeline, analyzers, profile, report, llm and registry can all import it
// without creating cycles.
package diagmodel

import (
	"strconv"
	"strings"
	"time"
)

// ScalarKind tags the source type family of a probe result value.
type ScalarKind string

const (
	KindInteger   ScalarKind = "integer"
	KindFloat     ScalarKind = "float"
	KindText      ScalarKind = "text"
	KindTimestamp ScalarKind = "timestamp"
	KindNull      ScalarKind = "null"
)

// Scalar is a single cell value tagged with its source type family.
type Scalar struct {
	Kind ScalarKind
	I    int64
	F    float64
	S    string
	T    time.Time
}

func IntScalar(v int64) Scalar          { return Scalar{Kind: KindInteger, I: v} }
func FloatScalar(v float64) Scalar      { return Scalar{Kind: KindFloat, F: v} }
func TextScalar(v string) Scalar        { return Scalar{Kind: KindText, S: v} }
func TimeScalar(v time.Time) Scalar     { return Scalar{Kind: KindTimestamp, T: v} }
func NullScalar() Scalar                { return Scalar{Kind: KindNull} }

// AsFloat best-effort coerces a scalar to float64. Ok is false for
// KindNull/KindText (non-numeric text), so callers treat it as absent
// data rather than silently reading a zero.
func (s Scalar) AsFloat() (float64, bool) {
	switch s.Kind {
	case KindInteger:
		return float64(s.I), true
	case KindFloat:
		return s.F, true
	default:
		return 0, false
	}
}

// AsNumeric coerces a scalar to float64, additionally parsing KindText
// values that hold a numeric string - the shape ADMIN SHOW/SHOW-style
// commands return even for integer configuration values, since the
// MySQL-wire protocol surfaces them as text columns. Ok is false only when
// the value is genuinely non-numeric.
func (s Scalar) AsNumeric() (float64, bool) {
	if f, ok := s.AsFloat(); ok {
		return f, true
	}
	if s.Kind == KindText {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s.S), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func (s Scalar) AsString() string {
	switch s.Kind {
	case KindText:
		return s.S
	case KindInteger:
		return ""
	default:
		return s.S
	}
}

func (s Scalar) IsNull() bool { return s.Kind == KindNull }

// Row is a column-name -> Scalar mapping for one result row. It does not
// keep column order; a plain map suffices since lookup is always by name,
// never by column position within a row.
type Row map[string]Scalar

// QueryKind distinguishes the three probe operations a descriptor may
// target.
type QueryKind string

const (
	QuerySQL   QueryKind = "sql"
	QueryAdmin QueryKind = "admin"
	QueryHTTP  QueryKind = "http"
)

// QueryDescriptor is one unit of work in a query plan. ID must be
// unique within a Plan - the pipeline rejects a plan with collisions
// before executing anything.
type QueryDescriptor struct {
	ID              string
	Kind            QueryKind
	StatementOrPath string
	Params          []any
	Required        bool
	Timeout         time.Duration // zero means "use the pipeline default"
}

// Plan is the ordered list of descriptors an expert's plan-mode tool
// produces. Order defines the Collected Dataset's key ordering.
type Plan []QueryDescriptor

// CollectedResult is the outcome of executing one QueryDescriptor: at most
// one of Rows, JSONDoc or Err is set, never a partial mix. A query that
// returns no rows leaves all three empty.
type CollectedResult struct {
	Rows     []Row
	JSONDoc  []byte
	Err      error
	Duration time.Duration
}

func (r CollectedResult) Failed() bool { return r.Err != nil }

// CollectedDataset is the keyed output of the Collect stage, keyed by
// QueryDescriptor.ID. Key ordering always matches the originating Plan's
// descriptor order, regardless of completion order.
type CollectedDataset struct {
	order   []string
	results map[string]CollectedResult
}

func NewCollectedDataset(order []string) *CollectedDataset {
	return &CollectedDataset{
		order:   append([]string(nil), order...),
		results: make(map[string]CollectedResult, len(order)),
	}
}

func (d *CollectedDataset) Set(id string, result CollectedResult) {
	d.results[id] = result
}

func (d *CollectedDataset) Get(id string) (CollectedResult, bool) {
	r, ok := d.results[id]
	return r, ok
}

// Keys returns descriptor IDs in Plan order, never completion order.
func (d *CollectedDataset) Keys() []string {
	return append([]string(nil), d.order...)
}

// Severity is the total order Findings are sorted by: critical > warning >
// issue > insight.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityIssue    Severity = "issue"
	SeverityInsight  Severity = "insight"
)

// severityRank gives Severity a total order for sorting; lower ranks first.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityWarning:  1,
	SeverityIssue:    2,
	SeverityInsight:  3,
}

func (s Severity) rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank) // unknown severities sort last
}

// Priority is the ordering key for Recommendations and recommended
// actions: immediate > high > medium > low.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityHigh       Priority = "high"
	PriorityMedium     Priority = "medium"
	PriorityLow        Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityImmediate: 0,
	PriorityHigh:       1,
	PriorityMedium:     2,
	PriorityLow:        3,
}

func (p Priority) rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// Action is a single recommended remediation step attached to a Finding.
type Action struct {
	Description string
	Statement   string // executable statement, optional
}

// Finding is the unit of diagnostic output. Type is a stable
// machine-readable slug; it is never reassigned once emitted by a pass -
// a finding's severity only ever gets corroborated by further evidence,
// never silently upgraded or downgraded in place.
type Finding struct {
	Severity           Severity
	Priority           Priority
	Type               string
	Message            string
	Evidence           map[string]any
	Impact             string
	RecommendedActions []Action

	// Pass records which analyzer rule pass emitted this finding, and
	// DiscoveryIndex the order within that pass - together they order
	// findings that share the same severity: by pass, then by discovery
	// order within the pass.
	Pass           string
	DiscoveryIndex int
}

// Step is one structured action inside a Recommendation Phase.
type StepKind string

const (
	StepInspect StepKind = "inspect"
	StepMutate  StepKind = "mutate"
	StepObserve StepKind = "observe"
)

type Step struct {
	Kind    StepKind
	Body    string
	Purpose string

	// Verification and Rollback are required on every StepMutate step:
	// a mutating step always carries a way to confirm it worked and a
	// note on how to undo it.
	Verification string
	Rollback     string
}

// Phase groups a sequence of Steps inside an action plan.
type Phase struct {
	Name         string
	DurationHint string
	Steps        []Step
}

// Recommendation is the unit of remediation guidance produced from one or
// more Findings. FindingTypes records which Finding.Type values motivated
// it, so the findings that justified a given recommendation stay
// auditable.
type Recommendation struct {
	ID            string
	Category      string
	Priority      Priority
	Title         string
	Description   string
	FindingTypes  []string
	Phases        []Phase
	Risk          string
	Verification  string
}

// HealthLevel and HealthStatus are the two derived health-score axes.
type HealthLevel string

const (
	LevelExcellent HealthLevel = "excellent"
	LevelGood      HealthLevel = "good"
	LevelFair      HealthLevel = "fair"
	LevelPoor      HealthLevel = "poor"
)

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
)

// HealthScore is the deterministic summary derived from a Finding Set.
type HealthScore struct {
	Score  int
	Level  HealthLevel
	Status HealthStatus
}

// FindingSet is an ordered collection of Findings with the sort contract
// baked into Sort: severity, then pass order, then discovery order within
// the pass.
type FindingSet struct {
	Findings []Finding
}

func (fs *FindingSet) Add(f Finding) {
	fs.Findings = append(fs.Findings, f)
}

// PassOrder returns the index of pass within order, or len(order) if the
// pass is unrecognized (sorts after all known passes, never panics on an
// analyzer that adds a pass name the caller forgot to register).
func PassOrder(order []string, pass string) int {
	for i, p := range order {
		if p == pass {
			return i
		}
	}
	return len(order)
}

// Sort orders Findings by severity, then passOrder(pass), then
// DiscoveryIndex. It is a stable sort so ties beyond these three keys
// keep their original relative order.
func (fs *FindingSet) Sort(passOrder []string) {
	stableSortFindings(fs.Findings, passOrder)
}

// ByType returns all findings whose Type matches t, preserving order.
func (fs *FindingSet) ByType(t string) []Finding {
	var out []Finding
	for _, f := range fs.Findings {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// AttrValue is a profile-tree attribute value, either text or numeric. A
// numeric attribute may additionally carry an aggregated
// __MAX_OF_/__MIN_OF_ annotation on the same key, tracked here rather than
// as separate map entries.
type AttrValue struct {
	IsNumeric bool
	Num       float64
	Text      string

	HasMax bool
	Max    float64
	HasMin bool
	Min    float64
}

func TextAttr(s string) AttrValue { return AttrValue{Text: s} }
func NumAttr(f float64) AttrValue { return AttrValue{IsNumeric: true, Num: f} }

// ProfileNode is one node of a Profile Tree: a label, optional
// parenthesized header parameters, typed attributes, and children in
// original insertion order.
type ProfileNode struct {
	Label      string
	Params     map[string]string
	Attributes map[string]AttrValue
	AttrOrder  []string
	Children   []*ProfileNode
}

func NewProfileNode(label string) *ProfileNode {
	return &ProfileNode{
		Label:      label,
		Params:     map[string]string{},
		Attributes: map[string]AttrValue{},
	}
}

// SetAttr records a point value for key, preserving first-seen order.
func (n *ProfileNode) SetAttr(key string, v AttrValue) {
	if _, exists := n.Attributes[key]; !exists {
		n.AttrOrder = append(n.AttrOrder, key)
	}
	existing := n.Attributes[key]
	v.HasMax, v.Max = existing.HasMax, existing.Max
	v.HasMin, v.Min = existing.HasMin, existing.Min
	n.Attributes[key] = v
}

// SetMaxOf/SetMinOf attach an aggregated annotation to an existing or
// not-yet-seen attribute key, stored on the same key but kept distinct
// from the point value.
func (n *ProfileNode) SetMaxOf(key string, f float64) {
	if _, exists := n.Attributes[key]; !exists {
		n.AttrOrder = append(n.AttrOrder, key)
	}
	v := n.Attributes[key]
	v.HasMax, v.Max = true, f
	n.Attributes[key] = v
}

func (n *ProfileNode) SetMinOf(key string, f float64) {
	if _, exists := n.Attributes[key]; !exists {
		n.AttrOrder = append(n.AttrOrder, key)
	}
	v := n.Attributes[key]
	v.HasMin, v.Min = true, f
	n.Attributes[key] = v
}

// NumericAttr returns the point numeric value for key, if present and
// numeric.
func (n *ProfileNode) NumericAttr(key string) (float64, bool) {
	v, ok := n.Attributes[key]
	if !ok || !v.IsNumeric {
		return 0, false
	}
	return v.Num, true
}
