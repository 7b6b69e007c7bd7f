package queryperf

import (
	"fmt"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

// recommend is the recommendation factory for the query-performance
// domain.
func (e *Expert) recommend(f diagmodel.Finding) (diagmodel.Recommendation, bool) {
	switch f.Type {
	case "critical_query_latency":
		queryID, _ := f.Evidence["query_id"].(string)
		return diagmodel.Recommendation{
			ID:           "kill_runaway_query",
			Category:     "query_performance",
			Priority:     diagmodel.PriorityImmediate,
			Title:        fmt.Sprintf("Review and consider killing query %s", queryID),
			Description:  "A query running this long is consuming resources other queries are waiting on.",
			FindingTypes: []string{f.Type},
			Phases: []diagmodel.Phase{{
				Name: "investigation",
				Steps: []diagmodel.Step{
					{
						Kind:    diagmodel.StepInspect,
						Body:    fmt.Sprintf("SHOW PROC '/current_queries' WHERE QueryId = '%s'", queryID),
						Purpose: "confirm the query is still running and inspect its plan/resource usage",
					},
					{
						Kind:         diagmodel.StepMutate,
						Body:         fmt.Sprintf("KILL QUERY '%s'", queryID),
						Purpose:      "terminate the query if it is confirmed runaway",
						Verification: "SHOW PROC '/current_queries' no longer lists the query id",
						Rollback:     "none - the client must resubmit the query",
					},
				},
			}},
			Risk: "killing a legitimate long-running report query discards its in-progress work",
		}, true

	case "slow_query":
		queryID, _ := f.Evidence["query_id"].(string)
		return diagmodel.Recommendation{
			ID:           "investigate_slow_query",
			Category:     "query_performance",
			Priority:     diagmodel.PriorityMedium,
			Title:        fmt.Sprintf("Investigate slow query %s", queryID),
			Description:  "Review the query plan for missing partition pruning, unindexed joins, or excessive data scan.",
			FindingTypes: []string{f.Type},
		}, true

	case "query_spill_elevated":
		queryID, _ := f.Evidence["query_id"].(string)
		return diagmodel.Recommendation{
			ID:           "address_query_spill",
			Category:     "query_performance",
			Priority:     diagmodel.PriorityMedium,
			Title:        fmt.Sprintf("Reduce disk spill for query %s", queryID),
			Description:  "High spill ratio indicates the query's working set exceeds available memory for its session; consider increasing the session's memory limit or reducing its concurrency.",
			FindingTypes: []string{f.Type},
		}, true

	case "query_queue_pressure":
		return diagmodel.Recommendation{
			ID:           "relieve_query_queue_pressure",
			Category:     "query_performance",
			Priority:     diagmodel.PriorityHigh,
			Title:        "Relieve query admission queue pressure",
			Description:  "Queries are waiting for admission; investigate whether a small number of heavy queries are monopolizing execution slots.",
			FindingTypes: []string{f.Type},
		}, true

	default:
		return diagmodel.Recommendation{}, false
	}
}
