// Package pipeline implements the diagnostic pipeline: the single
// Collect→Diagnose→Recommend→Score→Plan→Assemble sequence every expert tool
// call runs through. Experts supply only rule passes, recommendation
// factories and query plans; every other phase lives in this package.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagerrors"
	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/expert"
	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
	"github.com/tracymacding/starrocks-diag-engine/internal/probe"
)

// Options configures per-call pipeline behavior: timeouts and parallelism.
type Options struct {
	CollectParallelism int
	QueryTimeout       time.Duration
	ToolCallTimeout    time.Duration
	IncludeDetails     bool
}

func (o Options) withDefaults() Options {
	if o.CollectParallelism <= 0 {
		o.CollectParallelism = 8
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
	if o.ToolCallTimeout <= 0 {
		o.ToolCallTimeout = 120 * time.Second
	}
	return o
}

// Response is the assembled result: {findings, recommendations, health,
// raw_dataset?}.
type Response struct {
	Findings        []diagmodel.Finding
	Recommendations []diagmodel.Recommendation
	Health          diagmodel.HealthScore
	RawDataset      *diagmodel.CollectedDataset // nil unless IncludeDetails
}

// ScorePenalties lets a domain contribute bounded additional penalties on
// top of the fixed per-severity penalties - declared in one place per
// domain, and bounded: their sum never exceeds maxDomainPenalty.
type ScorePenalties func(findings []diagmodel.Finding) int

const maxDomainPenalty = 50

// Run executes the full pipeline for one tool call.
func Run(ctx context.Context, p *probe.Probe, t expert.Tool, metadata expert.Metadata, args map[string]any, opts Options, penalties ScorePenalties) (*Response, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.ToolCallTimeout)
	defer cancel()

	// (a) Architecture gate.
	arch, err := expert.DetectArchitecture(ctx, p)
	if err != nil {
		return deadlineResponse(fmt.Sprintf("architecture detection failed: %v", err)), nil
	}
	if !metadata.Supports(arch) {
		f := expert.ArchitectureUnsupportedFinding(metadata.Name, arch, metadata.SupportedArchitectures)
		return singleFindingResponse(f), nil
	}

	var (
		findings *diagmodel.FindingSet
		dataset  *diagmodel.CollectedDataset
	)

	switch t.Mode {
	case expert.ModeDirect:
		findings, err = t.Direct(ctx, args, p)
		if err != nil {
			return nil, fmt.Errorf("direct-mode tool %q: %w", t.Spec.Name, err)
		}
	default:
		// (b) Plan.
		plan, err := t.Plan(args)
		if err != nil {
			return nil, fmt.Errorf("plan-mode tool %q: plan: %w", t.Spec.Name, err)
		}
		if err := validatePlan(plan); err != nil {
			return nil, fmt.Errorf("plan-mode tool %q: invalid plan: %w", t.Spec.Name, err)
		}

		// (c) Collect.
		var aborted *diagmodel.Finding
		dataset, aborted = collect(ctx, p, plan, opts)
		if aborted != nil {
			return singleFindingResponse(*aborted), nil
		}

		// (d) Diagnose.
		findings, err = t.Analyze(ctx, args, dataset)
		if err != nil {
			return nil, fmt.Errorf("plan-mode tool %q: analyze: %w", t.Spec.Name, err)
		}
	}

	if ctx.Err() != nil {
		return deadlineResponse(ctx.Err().Error()), nil
	}

	findings.Sort(t.PassOrder)
	return assembleAfterDiagnose(findings, t, penalties, opts, dataset), nil
}

func assembleAfterDiagnose(findings *diagmodel.FindingSet, t expert.Tool, penalties ScorePenalties, opts Options, dataset *diagmodel.CollectedDataset) *Response {
	// (e) Recommend.
	recs := recommend(findings.Findings, t.Recommend)

	// (f) Score.
	health := Score(findings.Findings, penalties)

	// (g) Action plan.
	recs = ExpandActionPlans(recs)

	resp := &Response{
		Findings:        findings.Findings,
		Recommendations: recs,
		Health:          health,
	}
	if opts.IncludeDetails {
		resp.RawDataset = dataset
	}
	return resp
}

// validatePlan enforces unique IDs, non-empty statements, and parameter
// counts matching bind placeholders (checked loosely - a descriptor with
// bind placeholders `?` must supply at least that many Params).
func validatePlan(plan diagmodel.Plan) error {
	seen := make(map[string]bool, len(plan))
	for _, d := range plan {
		if d.ID == "" {
			return fmt.Errorf("descriptor with empty ID")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate descriptor id %q", d.ID)
		}
		seen[d.ID] = true
		if d.StatementOrPath == "" {
			return fmt.Errorf("descriptor %q has an empty statement", d.ID)
		}
		wantParams := countPlaceholders(d.StatementOrPath)
		if len(d.Params) < wantParams {
			return fmt.Errorf("descriptor %q expects %d bind parameters, got %d", d.ID, wantParams, len(d.Params))
		}
	}
	return nil
}

func countPlaceholders(stmt string) int {
	n := 0
	for _, r := range stmt {
		if r == '?' {
			n++
		}
	}
	return n
}

// collect runs (c): bounded-parallelism execution of every descriptor,
// preserving plan order in the output regardless of completion order. It
// returns a non-nil abort finding only when a required descriptor fails
// with Unavailable or Syntax.
func collect(ctx context.Context, p *probe.Probe, plan diagmodel.Plan, opts Options) (*diagmodel.CollectedDataset, *diagmodel.Finding) {
	ids := make([]string, len(plan))
	for i, d := range plan {
		ids[i] = d.ID
	}
	dataset := diagmodel.NewCollectedDataset(ids)

	sem := semaphore.NewWeighted(int64(opts.CollectParallelism))
	var mu sync.Mutex
	var abort *diagmodel.Finding

	eg, egCtx := errgroup.WithContext(ctx)
	for _, descriptor := range plan {
		d := descriptor
		if d.Timeout <= 0 {
			d.Timeout = opts.QueryTimeout
		}
		eg.Go(func() error {
			if err := sem.Acquire(egCtx, 1); err != nil {
				return nil // context cancelled; deadline handling below
			}
			defer sem.Release(1)

			result := p.Run(egCtx, d)

			mu.Lock()
			dataset.Set(d.ID, result)
			if result.Failed() && d.Required && isAbortWorthy(result.Err) {
				if abort == nil {
					f := diagmodel.Finding{
						Severity: diagmodel.SeverityCritical,
						Priority: diagmodel.PriorityImmediate,
						Type:     "required_descriptor_failed",
						Message:  fmt.Sprintf("required descriptor %q failed: %v", d.ID, result.Err),
						Evidence: map[string]any{"descriptor_id": d.ID},
						Impact:   "diagnosis cannot proceed without this data",
						Pass:     "collect",
					}
					abort = &f
				}
			}
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()

	if ctx.Err() != nil {
		logging.PipelineWarn("collect: deadline exceeded before all descriptors completed")
	}
	return dataset, abort
}

func isAbortWorthy(err error) bool {
	return diagerrors.IsUnavailable(err) || diagerrors.IsSyntax(err)
}

func recommend(findings []diagmodel.Finding, factory expert.RecommendFunc) []diagmodel.Recommendation {
	if factory == nil {
		return nil
	}
	var recs []diagmodel.Recommendation
	for _, f := range findings {
		if rec, ok := factory(f); ok {
			recs = append(recs, rec)
		}
	}
	diagmodel.SortRecommendations(recs)
	return recs
}

func deadlineResponse(reason string) *Response {
	f := diagmodel.Finding{
		Severity: diagmodel.SeverityCritical,
		Priority: diagmodel.PriorityImmediate,
		Type:     "deadline_exceeded",
		Message:  fmt.Sprintf("tool call did not complete before its deadline: %s", reason),
		Pass:     "pipeline",
	}
	return singleFindingResponse(f)
}

func singleFindingResponse(f diagmodel.Finding) *Response {
	return &Response{
		Findings: []diagmodel.Finding{f},
		Health:   diagmodel.HealthScore{Score: 0, Level: diagmodel.LevelPoor, Status: diagmodel.StatusCritical},
	}
}
