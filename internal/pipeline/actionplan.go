package pipeline

import "github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"

// defaultPhaseNames is the standard four-phase shape.
var defaultPhaseNames = []string{"preparation", "execution", "verification", "cleanup"}

// ExpandActionPlans fills in default phases for every immediate/high
// priority recommendation that didn't supply its own. Recommendations of
// those two priorities that already provide Phases keep them, except that
// any mutating step missing a verification or rollback note gets a
// generic placeholder. Other priorities are left untouched.
func ExpandActionPlans(recs []diagmodel.Recommendation) []diagmodel.Recommendation {
	for i := range recs {
		r := &recs[i]
		if r.Priority != diagmodel.PriorityImmediate && r.Priority != diagmodel.PriorityHigh {
			continue
		}
		if len(r.Phases) > 0 {
			ensureMutatingStepsHaveVerificationAndRollback(r)
			continue
		}
		r.Phases = defaultPhases(r)
	}
	return recs
}

func defaultPhases(r *diagmodel.Recommendation) []diagmodel.Phase {
	phases := make([]diagmodel.Phase, len(defaultPhaseNames))
	for i, name := range defaultPhaseNames {
		phases[i] = diagmodel.Phase{Name: name}
	}
	phases[0].Steps = []diagmodel.Step{{
		Kind:    diagmodel.StepInspect,
		Body:    "Review current state before applying: " + r.Title,
		Purpose: "confirm the recommendation still applies",
	}}
	phases[len(phases)-1].Steps = []diagmodel.Step{{
		Kind:    diagmodel.StepObserve,
		Body:    "Monitor affected metrics after applying: " + r.Title,
		Purpose: "confirm the remediation had the intended effect",
	}}
	return phases
}

// ensureMutatingStepsHaveVerificationAndRollback enforces that every
// mutating step carries a verification step and a rollback note. A
// factory that forgot either gets a generic placeholder rather than an
// invalid plan reaching the caller.
func ensureMutatingStepsHaveVerificationAndRollback(r *diagmodel.Recommendation) {
	for pi := range r.Phases {
		for si := range r.Phases[pi].Steps {
			step := &r.Phases[pi].Steps[si]
			if step.Kind != diagmodel.StepMutate {
				continue
			}
			if step.Verification == "" {
				step.Verification = "re-query the affected object and confirm the change took effect"
			}
			if step.Rollback == "" {
				step.Rollback = "revert the statement's effect manually if verification fails"
			}
		}
	}
}
