package operations

import (
	"fmt"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

// recommend is the recommendation factory for the operations domain.
func (e *Expert) recommend(f diagmodel.Finding) (diagmodel.Recommendation, bool) {
	switch f.Type {
	case "alive_backends_ratio_low":
		return diagmodel.Recommendation{
			ID:           "restore_dead_backends",
			Category:     "operations",
			Priority:     f.Priority,
			Title:        "Restore dead backend nodes",
			Description:  "One or more backends are not reporting alive; the cluster is running with reduced capacity.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "investigation",
				Steps: []diagmodel.Step{{
					Kind:    diagmodel.StepInspect,
					Body:    "SHOW BACKENDS",
					Purpose: "confirm which backends are down and since when",
				}},
			}},
		}, true

	case "frontend_clock_skew":
		return diagmodel.Recommendation{
			ID:           "fix_frontend_clock_skew",
			Category:     "operations",
			Priority:     diagmodel.PriorityMedium,
			Title:        "Resynchronize frontend clocks",
			Description:  "Ensure NTP/chrony is running and synced on all frontend hosts.",
			FindingTypes: []string{f.Type},
		}, true

	case "frontend_version_drift":
		versions, _ := f.Evidence["versions"].(map[string][]string)
		return diagmodel.Recommendation{
			ID:           "align_frontend_versions",
			Category:     "operations",
			Priority:     diagmodel.PriorityHigh,
			Title:        "Align frontend binary versions",
			Description:  fmt.Sprintf("Upgrade or downgrade frontends so all %d report the same version.", len(versions)),
			FindingTypes: []string{f.Type},
		}, true

	case "topology_instability":
		return diagmodel.Recommendation{
			ID:           "investigate_topology_instability",
			Category:     "operations",
			Priority:     diagmodel.PriorityImmediate,
			Title:        "Investigate underlying infrastructure instability",
			Description:  "Backend dropouts combined with frontend clock drift point to a shared root cause - check the underlying network/host infrastructure before treating each symptom separately.",
			FindingTypes: []string{f.Type},
		}, true

	default:
		return diagmodel.Recommendation{}, false
	}
}
