// Package registry implements the tool registry: a name-keyed dispatch
// table mapping each expert's declared tools to the pipeline call that
// runs them, grouped by expert for aggregate discovery. It is the
// boundary the request/response transport (cmd/diag-server) sits behind -
// nothing outside this package knows about experts or the pipeline
// directly.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tracymacding/starrocks-diag-engine/internal/expert"
	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
	"github.com/tracymacding/starrocks-diag-engine/internal/pipeline"
	"github.com/tracymacding/starrocks-diag-engine/internal/probe"
	"github.com/tracymacding/starrocks-diag-engine/internal/report"
)

// ResponseShape selects which of the two tool-response shapes a tool's
// invocation renders: (a) a plain wrapped-text report, or (b) a structured
// object carrying the same data as typed fields. Fixed per tool at
// registration time.
type ResponseShape int

const (
	ShapeText ResponseShape = iota
	ShapeStructured
)

// Registration is one tool bound into the registry: the expert it belongs
// to, the tool implementation itself, and the response shape its callers
// receive.
type Registration struct {
	ExpertName string
	ExpertMeta expert.Metadata
	Tool       expert.Tool
	Shape      ResponseShape
}

// StructuredResponse is the shape-(b) tool response: the same finding
// set, recommendations and health score as the text report, carried as
// typed fields instead of pre-formatted prose.
type StructuredResponse struct {
	Status    string             `json:"status"`
	Expert    string             `json:"expert"`
	Version   string             `json:"version"`
	Timestamp time.Time          `json:"timestamp"`
	Report    string             `json:"report,omitempty"`
	Data      any                `json:"data,omitempty"`
	Analysis  *pipeline.Response `json:"analysis"`
}

// Registry is the process-wide tool table. Thread-safe; built once at
// startup via RegisterExpert/MustRegisterExpert and read for the lifetime
// of the process.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Registration
	byExpert map[string][]*Registration
	probe    *probe.Probe
	opts     pipeline.Options
}

// New creates an empty registry bound to p. opts supplies the pipeline
// defaults (timeouts, parallelism) every Execute call runs with.
func New(p *probe.Probe, opts pipeline.Options) *Registry {
	return &Registry{
		tools:    make(map[string]*Registration),
		byExpert: make(map[string][]*Registration),
		probe:    p,
		opts:     opts,
	}
}

// RegisterExpert registers every tool an expert declares, under the given
// response shape. It validates each tool's input schema and rejects
// duplicate tool names - two experts (or the same expert twice) declaring
// the same name is a startup configuration error, not a runtime one.
func (r *Registry) RegisterExpert(e expert.Expert, shape ResponseShape) error {
	md := e.Metadata()
	for _, t := range e.Tools() {
		if err := t.Spec.InputSchema.Validate(); err != nil {
			return fmt.Errorf("%w: tool %q: %v", ErrInvalidSchema, t.Spec.Name, err)
		}

		r.mu.Lock()
		if _, exists := r.tools[t.Spec.Name]; exists {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, t.Spec.Name)
		}
		reg := &Registration{ExpertName: md.Name, ExpertMeta: md, Tool: t, Shape: shape}
		r.tools[t.Spec.Name] = reg
		r.byExpert[md.Name] = append(r.byExpert[md.Name], reg)
		r.mu.Unlock()

		logging.RegistryDebug("registered tool %q (expert=%s, shape=%d)", t.Spec.Name, md.Name, shape)
	}
	return nil
}

// MustRegisterExpert registers an expert's tools and panics on error. Use
// at process startup, where a misconfigured expert should fail fast rather
// than surface as a runtime 404.
func (r *Registry) MustRegisterExpert(e expert.Expert, shape ResponseShape) {
	if err := r.RegisterExpert(e, shape); err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
}

// Get returns the registration for name, or nil if unregistered.
func (r *Registry) Get(name string) *Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ByExpert returns the tool names registered under expertName, sorted -
// the aggregate discovery view, grouped by expert.
func (r *Registry) ByExpert(expertName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := r.byExpert[expertName]
	names := make([]string, 0, len(regs))
	for _, reg := range regs {
		names = append(names, reg.Tool.Spec.Name)
	}
	sort.Strings(names)
	return names
}

// Experts returns every expert name with at least one registered tool,
// sorted.
func (r *Registry) Experts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byExpert))
	for name := range r.byExpert {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool through the pipeline and renders its result
// in the registration's fixed response shape.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	reg := r.Get(name)
	if reg == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if err := validateArgs(reg.Tool, args); err != nil {
		return nil, err
	}

	logging.RegistryDebug("executing tool %q (expert=%s)", name, reg.ExpertName)
	start := time.Now()

	resp, err := pipeline.Run(ctx, r.probe, reg.Tool, reg.ExpertMeta, args, r.opts, nil)
	if err != nil {
		logging.RegistryError("tool %q failed after %v: %v", name, time.Since(start), err)
		return nil, fmt.Errorf("execute tool %q: %w", name, err)
	}

	switch reg.Shape {
	case ShapeStructured:
		return &StructuredResponse{
			Status:    string(resp.Health.Status),
			Expert:    reg.ExpertName,
			Version:   reg.ExpertMeta.Version,
			Timestamp: time.Now().UTC(),
			Analysis:  resp,
		}, nil
	default:
		text := report.Render(report.Request{
			ExpertName: reg.ExpertName,
			Version:    reg.ExpertMeta.Version,
			Timestamp:  time.Now().UTC(),
		}, resp)
		return text, nil
	}
}

// validateArgs checks that every name the tool's input schema declares
// required is present in args.
func validateArgs(t expert.Tool, args map[string]any) error {
	for _, required := range t.Spec.InputSchema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}
