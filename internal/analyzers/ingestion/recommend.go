package ingestion

import (
	"fmt"
	"strings"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

// recommend is the recommendation factory for the ingestion domain,
// keyed by finding type.
func (e *Expert) recommend(f diagmodel.Finding) (diagmodel.Recommendation, bool) {
	switch f.Type {
	case "routine_load_paused":
		db, _ := f.Evidence["db"].(string)
		job, _ := f.Evidence["job"].(string)
		return diagmodel.Recommendation{
			ID:           "routine_load_recovery",
			Category:     "ingestion",
			Priority:     diagmodel.PriorityHigh,
			Title:        fmt.Sprintf("Resume paused routine load job %s.%s", db, job),
			Description:  "The job's consumer offset stops advancing while paused; resuming restarts consumption from the last committed offset.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "execution",
				Steps: []diagmodel.Step{{
					Kind:         diagmodel.StepMutate,
					Body:         fmt.Sprintf("RESUME ROUTINE LOAD FOR %s.%s", db, job),
					Purpose:      "restart consumption from the external stream",
					Verification: fmt.Sprintf("SHOW ROUTINE LOAD FROM %s WHERE Name = '%s'", db, job),
					Rollback:     fmt.Sprintf("PAUSE ROUTINE LOAD FOR %s.%s", db, job),
				}},
			}},
			Risk:         "resuming before the underlying cause (e.g. broker outage) clears will immediately re-pause",
			Verification: "confirm State transitions to RUNNING and CurrentTaskNum > 0",
		}, true

	case "routine_load_stalled":
		db, _ := f.Evidence["db"].(string)
		job, _ := f.Evidence["job"].(string)
		return diagmodel.Recommendation{
			ID:           "routine_load_restart_stalled",
			Category:     "ingestion",
			Priority:     diagmodel.PriorityImmediate,
			Title:        fmt.Sprintf("Restart stalled routine load job %s.%s", db, job),
			Description:  "The job reports RUNNING with zero active tasks - a pause/resume cycle typically re-establishes task scheduling.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "execution",
				Steps: []diagmodel.Step{
					{
						Kind:         diagmodel.StepMutate,
						Body:         fmt.Sprintf("PAUSE ROUTINE LOAD FOR %s.%s", db, job),
						Purpose:      "force the scheduler to release and recreate tasks on resume",
						Verification: fmt.Sprintf("SHOW ROUTINE LOAD FROM %s WHERE Name = '%s'", db, job),
						Rollback:     "none - the job is already non-functional",
					},
					{
						Kind:         diagmodel.StepMutate,
						Body:         fmt.Sprintf("RESUME ROUTINE LOAD FOR %s.%s", db, job),
						Purpose:      "re-establish task scheduling",
						Verification: fmt.Sprintf("SHOW ROUTINE LOAD FROM %s WHERE Name = '%s'", db, job),
						Rollback:     fmt.Sprintf("PAUSE ROUTINE LOAD FOR %s.%s", db, job),
					},
				},
			}},
			Risk: "if the job stalls again after restart, escalate to checking broker/source connectivity directly",
		}, true

	case "load_failure_rate_elevated":
		return diagmodel.Recommendation{
			ID:           "investigate_load_failure_rate",
			Category:     "ingestion",
			Priority:     diagmodel.PriorityHigh,
			Title:        "Investigate elevated load failure rate",
			Description:  "A sustained share of cancelled loads suggests a systemic cause rather than isolated bad batches.",
			FindingTypes: []string{f.Type},
		}, true

	default:
		if strings.HasPrefix(f.Type, "ingestion_failure_category_") {
			category := strings.TrimPrefix(f.Type, "ingestion_failure_category_")
			return diagmodel.Recommendation{
				ID:           "address_" + category + "_failures",
				Category:     "ingestion",
				Priority:     diagmodel.PriorityMedium,
				Title:        fmt.Sprintf("Address %s-classified load failures", category),
				Description:  "Multiple cancelled jobs share this failure category; the underlying cause is likely common across them.",
				FindingTypes: []string{f.Type},
			}, true
		}
		return diagmodel.Recommendation{}, false
	}
}
