package profile

import (
	"fmt"

	"github.com/tracymacding/starrocks-diag-engine/internal/rules"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

// probableMissingTimeSources enumerates the fixed set of causes a
// reconciliation finding cites - a static list, not discovered at runtime.
var probableMissingTimeSources = []string{
	"transaction publish",
	"explicit-commit wait",
	"metadata update",
	"cross-node RPC",
}

// ReconcileTime implements the time-accounting reconciliation: compare
// summary's point value for attrKey against the sum of the same attribute
// across its direct children (the accounted phases). If more than the
// configured fraction of the total is unaccounted for, it emits a
// missing_time finding enumerating the probable sources.
func ReconcileTime(summary *diagmodel.ProfileNode, attrKey string, lib *rules.Library) (diagmodel.Finding, bool) {
	total, ok := summary.NumericAttr(attrKey)
	if !ok || total <= 0 {
		return diagmodel.Finding{}, false
	}

	var accounted float64
	for _, child := range summary.Children {
		if v, ok := child.NumericAttr(attrKey); ok {
			accounted += v
		}
	}

	unaccounted := total - accounted
	if unaccounted < 0 {
		unaccounted = 0
	}
	ratio := unaccounted / total

	band := lib.ProfileWait()
	if ratio <= band.MissingTimeUnaccountedRatio {
		return diagmodel.Finding{}, false
	}

	return diagmodel.Finding{
		Severity: diagmodel.SeverityIssue,
		Priority: diagmodel.PriorityMedium,
		Type:     "missing_time",
		Message:  fmt.Sprintf("%.0f%% of %s's %s is unaccounted for by its phases", ratio*100, summary.Label, attrKey),
		Evidence: map[string]any{
			"total_ms":         total,
			"accounted_ms":     accounted,
			"unaccounted_ms":   unaccounted,
			"unaccounted_ratio": ratio,
			"probable_sources": probableMissingTimeSources,
		},
		Impact: "unaccounted time hides where the job is actually spending wall-clock time",
		Pass:   "reconciliation",
	}, true
}
