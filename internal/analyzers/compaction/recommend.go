package compaction

import (
	"fmt"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

// recommend is the recommendation factory for the compaction domain,
// keyed by finding type. Unknown types return (zero, false) - not an error.
func (e *Expert) recommend(f diagmodel.Finding) (diagmodel.Recommendation, bool) {
	switch f.Type {
	case "emergency_compaction_score":
		table, _ := f.Evidence["top_offender_table"].(string)
		partition, _ := f.Evidence["top_offender_partition"].(string)
		return diagmodel.Recommendation{
			ID:           "emergency_cs_handling",
			Category:     "compaction",
			Priority:     diagmodel.PriorityImmediate,
			Title:        "Run manual compaction on the highest-scoring partition",
			Description:  "One or more partitions have reached the emergency compaction-score band; manual compaction relieves read amplification immediately while background compaction catches up.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "execution",
				Steps: []diagmodel.Step{{
					Kind:         diagmodel.StepMutate,
					Body:         fmt.Sprintf("ALTER TABLE %s COMPACT %s", table, partition),
					Purpose:      "force a synchronous compaction of the offending partition",
					Verification: fmt.Sprintf("SELECT MAX_CS FROM information_schema.partitions_meta WHERE TABLE_NAME IN (%s) AND PARTITION_NAME = '%s'", table, partition),
					Rollback:     "manual compaction is not reversible but is safe to re-run; no rollback action is required",
				}},
			}},
			Risk:         "manual compaction consumes backend CPU/IO; schedule during low-traffic windows on large partitions",
			Verification: "confirm MAX_CS has dropped below the warning threshold after compaction completes",
		}, true

	case "compaction_disabled":
		return diagmodel.Recommendation{
			ID:           "reenable_compaction",
			Category:     "compaction",
			Priority:     diagmodel.PriorityHigh,
			Title:        "Re-enable compaction in adaptive mode",
			Description:  "Compaction is fully disabled cluster-wide; re-enable it in adaptive mode so capacity scales with node count.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "execution",
				Steps: []diagmodel.Step{{
					Kind:         diagmodel.StepMutate,
					Body:         `ADMIN SET FRONTEND CONFIG ("lake_compaction_max_tasks" = "-1")`,
					Purpose:      "switch compaction capacity to adaptive (16 tasks per node)",
					Verification: "ADMIN SHOW FRONTEND CONFIG LIKE 'lake_compaction_max_tasks'",
					Rollback:     `ADMIN SET FRONTEND CONFIG ("lake_compaction_max_tasks" = "0")`,
				}},
			}},
			Risk:         "compaction will begin consuming backend resources immediately after re-enabling",
			Verification: "confirm compaction tasks begin appearing in information_schema.be_cloud_native_compactions",
		}, true

	case "compaction_capacity_insufficient":
		recommendedMaxTasks, _ := f.Evidence["recommended_max_tasks"].(int)
		return diagmodel.Recommendation{
			ID:           "raise_compaction_capacity",
			Category:     "compaction",
			Priority:     f.Priority,
			Title:        "Raise compaction task capacity",
			Description:  "Compaction demand exceeds the cluster's current task capacity; raising the configured limit lets more tablets compact concurrently.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "execution",
				Steps: []diagmodel.Step{{
					Kind:         diagmodel.StepMutate,
					Body:         fmt.Sprintf(`ADMIN SET FRONTEND CONFIG ("lake_compaction_max_tasks" = "%d")`, recommendedMaxTasks),
					Purpose:      "raise the hard task-slot ceiling to match current demand",
					Verification: "ADMIN SHOW FRONTEND CONFIG LIKE 'lake_compaction_max_tasks'",
					Rollback:     "restore the previous configured value",
				}},
			}},
			Risk:         "raising the ceiling increases background CPU/IO pressure on backends",
			Verification: "confirm unscheduled/running tablet counts trend down over the following compaction cycles",
		}, true

	case "thread_undersizing":
		recommendedMin, _ := f.Evidence["recommended_min"].(int)
		beID, _ := f.Evidence["be_id"].(string)
		return diagmodel.Recommendation{
			ID:           "raise_compaction_threads",
			Category:     "compaction",
			Priority:     diagmodel.PriorityMedium,
			Title:        fmt.Sprintf("Increase compaction thread pool on backend %s", beID),
			Description:  "This backend's compaction thread pool is undersized for its core count.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "execution",
				Steps: []diagmodel.Step{{
					Kind:         diagmodel.StepMutate,
					Body:         fmt.Sprintf(`UPDATE BE CONFIG ("lake_compaction_threads" = "%d") FOR %s`, recommendedMin, beID),
					Purpose:      "raise the backend's compaction thread count to the recommended minimum",
					Verification: fmt.Sprintf("SELECT VALUE FROM information_schema.be_configs WHERE BE_ID = '%s' AND NAME = 'lake_compaction_threads'", beID),
					Rollback:     "restore the previous configured thread count",
				}},
			}},
		}, true

	case "load_queue_backlog":
		return diagmodel.Recommendation{
			ID:           "relieve_queue_backlog",
			Category:     "compaction",
			Priority:     diagmodel.PriorityHigh,
			Title:        "Relieve compaction queue backlog",
			Description:  "A large number of compaction tasks are pending scheduling; investigate thread sizing and capacity together.",
			FindingTypes: []string{f.Type},
		}, true

	default:
		return diagmodel.Recommendation{}, false
	}
}
