package expert

import (
	"context"
	"fmt"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
	"github.com/tracymacding/starrocks-diag-engine/internal/probe"
)

// DetectArchitecture implements the shared routine the framework runs once
// per tool call: query the cluster's run-mode configuration, falling back
// to inspecting compute-node topology when that configuration is
// inaccessible.
func DetectArchitecture(ctx context.Context, p *probe.Probe) (Architecture, error) {
	cfgResult := p.Run(ctx, diagmodel.QueryDescriptor{
		ID:              "run_mode_config",
		Kind:            diagmodel.QueryAdmin,
		StatementOrPath: "ADMIN SHOW FRONTEND CONFIG LIKE 'run_mode'",
	})
	if !cfgResult.Failed() && len(cfgResult.Rows) > 0 {
		if v, ok := cfgResult.Rows[0]["Value"]; ok {
			switch v.AsString() {
			case "shared_data":
				return ArchSharedData, nil
			case "shared_nothing":
				return ArchSharedNothing, nil
			}
		}
	}
	logging.PipelineDebug("run_mode config unavailable (%v), falling back to compute-node topology", cfgResult.Err)

	cnResult := p.Run(ctx, diagmodel.QueryDescriptor{
		ID:              "compute_nodes",
		Kind:            diagmodel.QueryAdmin,
		StatementOrPath: "SHOW COMPUTE NODES",
	})
	if cnResult.Failed() {
		return "", fmt.Errorf("architecture detection: both run_mode config and compute-node topology unavailable: %w", cnResult.Err)
	}
	if len(cnResult.Rows) > 0 {
		return ArchSharedData, nil
	}
	return ArchSharedNothing, nil
}

// ArchitectureUnsupportedFinding builds the architecture-gate rejection
// finding.
func ArchitectureUnsupportedFinding(toolName string, detected Architecture, supported []Architecture) diagmodel.Finding {
	return diagmodel.Finding{
		Severity: diagmodel.SeverityCritical,
		Priority: diagmodel.PriorityImmediate,
		Type:     "architecture_unsupported",
		Message:  fmt.Sprintf("tool %q does not support the detected %q architecture", toolName, detected),
		Evidence: map[string]any{
			"detected_architecture":  string(detected),
			"supported_architectures": supported,
		},
		Impact: "this tool cannot run safely against this cluster's deployment topology",
		Pass:   "architecture_gate",
	}
}
