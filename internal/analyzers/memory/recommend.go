package memory

import (
	"fmt"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

// recommend is the recommendation factory for the memory domain.
func (e *Expert) recommend(f diagmodel.Finding) (diagmodel.Recommendation, bool) {
	switch f.Type {
	case "memory_pressure":
		beID, _ := f.Evidence["be_id"].(string)
		return diagmodel.Recommendation{
			ID:           "relieve_backend_memory_pressure",
			Category:     "memory",
			Priority:     f.Priority,
			Title:        fmt.Sprintf("Relieve memory pressure on backend %s", beID),
			Description:  "This backend's process memory usage is approaching its limit; inspect the query/load workload routed to it and consider reducing concurrent scan/spill-heavy queries.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "investigation",
				Steps: []diagmodel.Step{{
					Kind:    diagmodel.StepInspect,
					Body:    fmt.Sprintf("GET /mem_tracker on backend %s", beID),
					Purpose: "identify which memory tracker category (query pool, load, compaction, metadata cache) is consuming the most",
				}},
			}},
		}, true

	case "tcmalloc_fragmentation":
		beID, _ := f.Evidence["be_id"].(string)
		return diagmodel.Recommendation{
			ID:           "address_tcmalloc_fragmentation",
			Category:     "memory",
			Priority:     diagmodel.PriorityMedium,
			Title:        fmt.Sprintf("Address allocator fragmentation on backend %s", beID),
			Description:  "A large gap between allocated and physically resident memory indicates tcmalloc is holding pages it cannot release back to the OS.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "execution",
				Steps: []diagmodel.Step{{
					Kind:         diagmodel.StepMutate,
					Body:         fmt.Sprintf("curl -X POST http://%s:<http_port>/api/mem_tracker/release", beID),
					Purpose:      "ask tcmalloc to release freed-but-unreturned pages back to the OS",
					Verification: fmt.Sprintf("GET /mem_tracker on backend %s and recompute the fragmentation ratio", beID),
					Rollback:     "releasing cached pages is safe; no rollback is required",
				}},
			}},
		}, true

	case "cluster_wide_memory_pressure":
		return diagmodel.Recommendation{
			ID:           "investigate_cluster_memory_pressure",
			Category:     "memory",
			Priority:     diagmodel.PriorityImmediate,
			Title:        "Investigate cluster-wide memory pressure",
			Description:  "Multiple backends are under memory pressure at once; check for a shared runaway query, a recent workload shift, or an under-provisioned cluster.",
			FindingTypes: []string{f.Type},
		}, true

	default:
		return diagmodel.Recommendation{}, false
	}
}
