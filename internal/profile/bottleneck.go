package profile

import (
	"fmt"

	"github.com/tracymacding/starrocks-diag-engine/internal/config"
	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/rules"
)

// InferBottlenecks implements the bottleneck inference routine: for every
// "Index" node, compute wait_total = wait_flush + wait_writer +
// wait_replica and effective = add_chunk_time - wait_total (clamped at
// 0), emitting a finding per wait component whose ratio against
// add_chunk_time crosses the configured warn/high band. A "high" reading
// maps to SeverityWarning + PriorityHigh, the same pairing compaction's
// capacity pass uses - the model's Severity enum is the closed
// {critical,warning,issue,insight} set, and "high" is a priority, not a
// fifth severity.
func InferBottlenecks(root *diagmodel.ProfileNode, lib *rules.Library) []diagmodel.Finding {
	band := lib.ProfileWait()
	var findings []diagmodel.Finding
	idx := 0

	var walk func(n *diagmodel.ProfileNode)
	walk = func(n *diagmodel.ProfileNode) {
		if n.Label == "Index" {
			for _, f := range indexFindings(n, band, &idx) {
				findings = append(findings, f)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return findings
}

func indexFindings(n *diagmodel.ProfileNode, band config.ProfileWaitBand, idx *int) []diagmodel.Finding {
	addChunk, ok := n.NumericAttr("AddChunkTime")
	if !ok || addChunk <= 0 {
		return nil
	}
	flush, _ := n.NumericAttr("WaitFlushTime")
	writer, _ := n.NumericAttr("WaitWriterTime")
	replica, _ := n.NumericAttr("WaitReplicaTime")

	var findings []diagmodel.Finding
	add := func(f diagmodel.Finding, ok bool) {
		if ok {
			f.Pass = "bottleneck"
			f.DiscoveryIndex = *idx
			*idx++
			findings = append(findings, f)
		}
	}

	add(waitComponentFinding("bottleneck_memtable_flush", "memtable flush", addChunk, flush, band.FlushWarnRatio, band.FlushHighRatio))
	add(waitComponentFinding("bottleneck_writer_wait", "writer", addChunk, writer, band.WriterWarnRatio, band.WriterHighRatio))
	add(waitComponentFinding("bottleneck_replica_sync", "replica sync", addChunk, replica, band.ReplicaWarnRatio, band.ReplicaHighRatio))

	waitTotal := flush + writer + replica
	effective := addChunk - waitTotal
	if effective < 0 {
		effective = 0
	}
	for i := range findings {
		if findings[i].Evidence == nil {
			findings[i].Evidence = map[string]any{}
		}
		findings[i].Evidence["add_chunk_time_ms"] = addChunk
		findings[i].Evidence["wait_total_ms"] = waitTotal
		findings[i].Evidence["effective_ms"] = effective
	}
	return findings
}

func waitComponentFinding(findingType, componentName string, addChunk, wait, warnRatio, highRatio float64) (diagmodel.Finding, bool) {
	ratio := wait / addChunk
	switch {
	case ratio >= highRatio:
		return diagmodel.Finding{
			Severity: diagmodel.SeverityWarning,
			Priority: diagmodel.PriorityHigh,
			Type:     findingType,
			Message:  fmt.Sprintf("%s wait is %.0f%% of add-chunk time, above the %.0f%% high threshold", componentName, ratio*100, highRatio*100),
			Evidence: map[string]any{"ratio": ratio, "wait_ms": wait},
			Impact:   fmt.Sprintf("%s wait is the dominant cost in this index's write path", componentName),
		}, true
	case ratio >= warnRatio:
		return diagmodel.Finding{
			Severity: diagmodel.SeverityIssue,
			Priority: diagmodel.PriorityMedium,
			Type:     findingType,
			Message:  fmt.Sprintf("%s wait is %.0f%% of add-chunk time, above the %.0f%% warning threshold", componentName, ratio*100, warnRatio*100),
			Evidence: map[string]any{"ratio": ratio, "wait_ms": wait},
			Impact:   fmt.Sprintf("%s wait is a significant contributor to this index's write latency", componentName),
		}, true
	default:
		return diagmodel.Finding{}, false
	}
}
