// Package memory implements the memory domain expert: backend
// memory-tracker pressure sourced from each backend's HTTP /mem_tracker
// endpoint. This is a direct-mode tool because the set of HTTP probes to
// run is only known after the frontend is asked which backends exist.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/expert"
	"github.com/tracymacding/starrocks-diag-engine/internal/probe"
	"github.com/tracymacding/starrocks-diag-engine/internal/rules"
)

var passOrder = []string{"memory_pressure", "tcmalloc_fragmentation", "correlation"}

// Expert implements expert.Expert for the memory domain.
type Expert struct {
	lib *rules.Library
}

func New(lib *rules.Library) *Expert {
	return &Expert{lib: lib}
}

func (e *Expert) Metadata() expert.Metadata {
	return expert.Metadata{
		Name:                   "memory",
		Version:                "1.0.0",
		Description:            "Checks backend memory-tracker pressure and allocator fragmentation across the cluster.",
		SupportedArchitectures: []expert.Architecture{expert.ArchSharedNothing, expert.ArchSharedData},
	}
}

func (e *Expert) Tools() []expert.Tool {
	return []expert.Tool{e.healthCheckTool()}
}

func (e *Expert) healthCheckTool() expert.Tool {
	return expert.Tool{
		Spec: expert.ToolSpec{
			Name:        "memory_health_check",
			Description: "Checks each backend's process memory usage against its limit and flags allocator fragmentation.",
			InputSchema: expert.InputSchema{
				Type:       "object",
				Properties: map[string]expert.SchemaField{},
			},
		},
		Mode:      expert.ModeDirect,
		Direct:    e.direct,
		Recommend: e.recommend,
		PassOrder: passOrder,
	}
}

// backendRef is the address/port pair needed to reach one backend's HTTP
// metrics endpoint, reduced from a SHOW BACKENDS row.
type backendRef struct {
	ID   string
	Host string
	Port int
}

// memTrackerDoc is the JSON shape GET /mem_tracker returns: process
// memory consumption plus the allocator's physically resident byte count,
// the gap between which signals tcmalloc fragmentation.
type memTrackerDoc struct {
	ProcessMemBytes       int64 `json:"process_mem_bytes"`
	ProcessLimitBytes     int64 `json:"process_limit_bytes"`
	PhysicalResidentBytes int64 `json:"physical_resident_bytes"`
}

const backendFanoutParallelism = 8

func (e *Expert) direct(ctx context.Context, args map[string]any, p *probe.Probe) (*diagmodel.FindingSet, error) {
	fs := &diagmodel.FindingSet{}

	backends, err := discoverBackends(ctx, p)
	if err != nil {
		addInsufficientData(fs, "memory_pressure", 0, "backends", err)
		return fs, nil
	}
	if len(backends) == 0 {
		addInsufficientData(fs, "memory_pressure", 0, "backends", nil)
		return fs, nil
	}

	docs := fetchMemTrackers(ctx, p, backends)

	band := e.lib.Memory()
	var underPressure int
	idx := 0
	for _, be := range backends {
		doc, ok := docs[be.ID]
		if !ok {
			continue
		}
		if doc.ProcessLimitBytes <= 0 {
			continue
		}
		usedPct := float64(doc.ProcessMemBytes) / float64(doc.ProcessLimitBytes) * 100

		switch {
		case usedPct >= band.CriticalUsedPct:
			underPressure++
			fs.Add(pressureFinding(diagmodel.SeverityCritical, diagmodel.PriorityImmediate, be, usedPct, idx))
			idx++
		case usedPct >= band.WarningUsedPct:
			underPressure++
			fs.Add(pressureFinding(diagmodel.SeverityWarning, diagmodel.PriorityHigh, be, usedPct, idx))
			idx++
		}

		if doc.ProcessMemBytes > 0 && doc.PhysicalResidentBytes > 0 && doc.PhysicalResidentBytes < doc.ProcessMemBytes {
			fragPct := float64(doc.ProcessMemBytes-doc.PhysicalResidentBytes) / float64(doc.ProcessMemBytes) * 100
			if fragPct >= band.TCMallocFragmentationWarnPct {
				fs.Add(diagmodel.Finding{
					Severity: diagmodel.SeverityWarning,
					Priority: diagmodel.PriorityMedium,
					Type:     "tcmalloc_fragmentation",
					Message:  fmt.Sprintf("backend %s shows %.1f%% gap between allocated and physically resident memory", be.ID, fragPct),
					Evidence: map[string]any{"be_id": be.ID, "fragmentation_pct": fragPct},
					Impact:   "fragmented allocator memory is not available for new allocations despite being \"free\"",
					Pass:     "tcmalloc_fragmentation",
				})
			}
		}
	}

	if underPressure > 0 && float64(underPressure) >= float64(len(backends))*0.5 {
		fs.Add(diagmodel.Finding{
			Severity: diagmodel.SeverityCritical,
			Priority: diagmodel.PriorityImmediate,
			Type:     "cluster_wide_memory_pressure",
			Message:  fmt.Sprintf("%d of %d backends are under memory pressure simultaneously", underPressure, len(backends)),
			Evidence: map[string]any{"backends_under_pressure": underPressure, "total_backends": len(backends)},
			Impact:   "a cluster-wide pattern suggests workload growth or a shared query rather than one node's problem",
			Pass:     "correlation",
		})
	}

	return fs, nil
}

func pressureFinding(sev diagmodel.Severity, prio diagmodel.Priority, be backendRef, usedPct float64, idx int) diagmodel.Finding {
	return diagmodel.Finding{
		Severity: sev,
		Priority: prio,
		Type:     "memory_pressure",
		Message:  fmt.Sprintf("backend %s is using %.1f%% of its process memory limit", be.ID, usedPct),
		Evidence: map[string]any{"be_id": be.ID, "used_pct": usedPct},
		Impact:   "sustained memory pressure risks OOM kills and query cancellation",
		Pass:     "memory_pressure", DiscoveryIndex: idx,
	}
}

// discoverBackends runs SHOW BACKENDS and reduces it to the host/port pairs
// needed for the HTTP fan-out.
func discoverBackends(ctx context.Context, p *probe.Probe) ([]backendRef, error) {
	res := p.Run(ctx, diagmodel.QueryDescriptor{
		ID: "backends", Kind: diagmodel.QueryAdmin, StatementOrPath: "SHOW BACKENDS", Required: true,
	})
	if res.Failed() {
		return nil, res.Err
	}

	out := make([]backendRef, 0, len(res.Rows))
	for _, row := range res.Rows {
		port, _ := row["HttpPort"].AsNumeric()
		out = append(out, backendRef{
			ID:   row["BackendId"].AsString(),
			Host: row["IP"].AsString(),
			Port: int(port),
		})
	}
	return out, nil
}

// fetchMemTrackers fans out one HTTP probe per backend, bounded by
// backendFanoutParallelism, mirroring the pipeline's bounded-parallelism
// collect stage for a direct-mode tool's own probe calls.
func fetchMemTrackers(ctx context.Context, p *probe.Probe, backends []backendRef) map[string]memTrackerDoc {
	docs := make(map[string]memTrackerDoc, len(backends))
	var mu sync.Mutex

	sem := semaphore.NewWeighted(backendFanoutParallelism)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, backend := range backends {
		be := backend
		eg.Go(func() error {
			if err := sem.Acquire(egCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			url := p.BackendURL(be.Host, be.Port, "/mem_tracker")
			res := p.Run(egCtx, diagmodel.QueryDescriptor{ID: "mem_tracker_" + be.ID, Kind: diagmodel.QueryHTTP, StatementOrPath: url})
			if res.Failed() {
				return nil
			}
			var doc memTrackerDoc
			if err := json.Unmarshal(res.JSONDoc, &doc); err != nil {
				return nil
			}
			mu.Lock()
			docs[be.ID] = doc
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()
	return docs
}

func addInsufficientData(fs *diagmodel.FindingSet, pass string, idx int, descriptor string, err error) {
	msg := fmt.Sprintf("insufficient data from %s to run the %s pass", descriptor, pass)
	if err != nil {
		msg += fmt.Sprintf(": %v", err)
	}
	fs.Add(diagmodel.Finding{
		Severity:       diagmodel.SeverityInsight,
		Priority:       diagmodel.PriorityLow,
		Type:           pass + "_insufficient_data",
		Message:        msg,
		Pass:           pass,
		DiscoveryIndex: idx,
	})
}
