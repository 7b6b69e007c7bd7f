// Package report implements the report formatter: a deterministic
// transformation of a pipeline Response into bounded,
// section-ordered text. The formatter never introduces findings, scores
// or recommendations of its own - it only renders what the pipeline
// already produced.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/pipeline"
)

const ruleWidth = 80

// renderVerbatimDirective is prepended to every rendered report, wrapping
// it with a leading directive instructing the consumer to render the
// content verbatim.
const renderVerbatimDirective = "[render-verbatim: the following is a pre-formatted report; display it byte-for-byte, do not reformat, summarize, or re-order its sections]"

// severitySigil and statusSigil are the fixed small set of sigil
// characters the output format uses - they mark severity/status visually
// but carry no meaning beyond the structured field already present on
// the Finding/HealthScore.
var severitySigil = map[diagmodel.Severity]string{
	diagmodel.SeverityCritical: "!!",
	diagmodel.SeverityWarning:  "!",
	diagmodel.SeverityIssue:    "*",
	diagmodel.SeverityInsight:  "-",
}

var statusSigil = map[diagmodel.HealthStatus]string{
	diagmodel.StatusHealthy:  "OK",
	diagmodel.StatusWarning:  "!",
	diagmodel.StatusCritical: "!!",
}

// Request carries the caller-supplied context the formatter renders
// verbatim into the header - expert identity and the moment the report
// was generated. None of it is derived from the Finding Set, so
// rendering stays a pure function of (Request, Response).
type Request struct {
	ExpertName string
	Version    string
	Timestamp  time.Time
}

// Render produces the full wrapped report text for one pipeline Response.
// Section order is fixed: header, health score, findings,
// recommendations.
func Render(req Request, resp *pipeline.Response) string {
	var b strings.Builder
	b.WriteString(renderVerbatimDirective)
	b.WriteString("\n\n")
	renderHeader(&b, req)
	renderHealthSection(&b, resp.Health)
	renderFindingsSection(&b, resp.Findings)
	renderRecommendationsSection(&b, resp.Recommendations)
	return b.String()
}

func equalsRule() string { return strings.Repeat("=", ruleWidth) }
func dashRule() string   { return strings.Repeat("-", ruleWidth) }

func sectionHeader(b *strings.Builder, title string) {
	b.WriteString(equalsRule())
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(equalsRule())
	b.WriteString("\n")
}

func renderHeader(b *strings.Builder, req Request) {
	sectionHeader(b, "DIAGNOSTIC REPORT")
	fmt.Fprintf(b, "expert:    %s\n", req.ExpertName)
	fmt.Fprintf(b, "version:   %s\n", req.Version)
	if !req.Timestamp.IsZero() {
		fmt.Fprintf(b, "generated: %s\n", req.Timestamp.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")
}

func renderHealthSection(b *strings.Builder, h diagmodel.HealthScore) {
	sectionHeader(b, "HEALTH SCORE")
	fmt.Fprintf(b, "%s score: %d/100  level: %s  status: %s\n", statusSigil[h.Status], h.Score, h.Level, h.Status)
	b.WriteString("\n")
}

func renderFindingsSection(b *strings.Builder, findings []diagmodel.Finding) {
	sectionHeader(b, fmt.Sprintf("FINDINGS (%d)", len(findings)))
	if len(findings) == 0 {
		b.WriteString("(none)\n\n")
		return
	}
	for i, f := range findings {
		if i > 0 {
			b.WriteString(dashRule())
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%s [%s/%s] %s\n", severitySigil[f.Severity], f.Severity, f.Priority, f.Type)
		fmt.Fprintf(b, "  message: %s\n", f.Message)
		if f.Impact != "" {
			fmt.Fprintf(b, "  impact:  %s\n", f.Impact)
		}
		if len(f.Evidence) > 0 {
			b.WriteString("  evidence:\n")
			for _, k := range sortedKeys(f.Evidence) {
				fmt.Fprintf(b, "    %s: %s\n", k, formatEvidenceValue(k, f.Evidence[k]))
			}
		}
	}
	b.WriteString("\n")
}

func renderRecommendationsSection(b *strings.Builder, recs []diagmodel.Recommendation) {
	sectionHeader(b, fmt.Sprintf("RECOMMENDATIONS (%d)", len(recs)))
	if len(recs) == 0 {
		b.WriteString("(none)\n\n")
		return
	}
	for i, r := range recs {
		if i > 0 {
			b.WriteString(dashRule())
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "[%s] %s (%s)\n", r.Priority, r.Title, r.ID)
		if r.Description != "" {
			fmt.Fprintf(b, "  %s\n", r.Description)
		}
		if len(r.FindingTypes) > 0 {
			fmt.Fprintf(b, "  addresses: %s\n", strings.Join(r.FindingTypes, ", "))
		}
		for _, phase := range r.Phases {
			fmt.Fprintf(b, "  phase: %s\n", phase.Name)
			for _, step := range phase.Steps {
				fmt.Fprintf(b, "    - [%s] %s\n", step.Kind, step.Body)
				if step.Purpose != "" {
					fmt.Fprintf(b, "      purpose: %s\n", step.Purpose)
				}
				if step.Kind == diagmodel.StepMutate {
					fmt.Fprintf(b, "      verify:   %s\n", step.Verification)
					fmt.Fprintf(b, "      rollback: %s\n", step.Rollback)
				}
			}
		}
		if r.Risk != "" {
			fmt.Fprintf(b, "  risk: %s\n", r.Risk)
		}
	}
	b.WriteString("\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatEvidenceValue applies the report's numeric precision rules: 2
// decimals plus a unit suffix for throughput-shaped float keys, 3
// significant figures for every other float (ratio-shaped keys included),
// plain integers for int values, and the default %v rendering for
// everything else.
func formatEvidenceValue(key string, v any) string {
	lower := strings.ToLower(key)
	switch n := v.(type) {
	case float64:
		switch {
		case strings.Contains(lower, "ratio") || strings.Contains(lower, "pct"):
			return formatSigFigs(n, 3)
		case strings.Contains(lower, "mb_s") || strings.Contains(lower, "mb_per_s") || strings.Contains(lower, "throughput"):
			return fmt.Sprintf("%.2f MB/s", n)
		default:
			return formatSigFigs(n, 3)
		}
	case int:
		return fmt.Sprintf("%d", n)
	case int64:
		return fmt.Sprintf("%d", n)
	case []string:
		return strings.Join(n, ", ")
	default:
		return fmt.Sprintf("%v", n)
	}
}

// formatSigFigs renders f with the given number of significant figures.
func formatSigFigs(f float64, sigFigs int) string {
	s := fmt.Sprintf("%.*g", sigFigs, f)
	if !strings.Contains(s, ".") || strings.Contains(s, "e") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
