// Package profile implements the profile parser: an indentation-based
// hierarchical text format emitted by the cluster for ingestion task
// execution profiles, decoded into a profile tree plus two analysis
// routines (bottleneck inference, time-accounting reconciliation).
package profile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

var headerPattern = regexp.MustCompile(`^([^(]+?)\s*(?:\(([^)]*)\))?$`)

const maxOfPrefix = "__MAX_OF_"
const minOfPrefix = "__MIN_OF_"

// Parse decodes an indentation-structured text profile into a profile
// tree. The returned node is a synthetic root whose children are the
// text's top-level node(s); it carries no label of its own and is never
// itself rendered.
func Parse(text string) *diagmodel.ProfileNode {
	root := diagmodel.NewProfileNode("")

	type frame struct {
		indent int
		node   *diagmodel.ProfileNode
	}
	stack := []frame{{indent: -1, node: root}}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := leadingIndent(line)
		trimmed := strings.TrimSpace(line)

		for len(stack) > 1 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		owner := stack[len(stack)-1].node

		if strings.HasPrefix(trimmed, "-") {
			applyAttributeLine(owner, strings.TrimSpace(strings.TrimPrefix(trimmed, "-")))
			continue
		}

		node := parseNodeHeader(trimmed)
		owner.Children = append(owner.Children, node)
		stack = append(stack, frame{indent: indent, node: node})
	}

	return root
}

func leadingIndent(line string) int {
	indent := 0
	for _, c := range line {
		switch c {
		case ' ':
			indent++
		case '\t':
			indent += 4
		default:
			return indent
		}
	}
	return indent
}

func parseNodeHeader(trimmed string) *diagmodel.ProfileNode {
	m := headerPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return diagmodel.NewProfileNode(trimmed)
	}
	node := diagmodel.NewProfileNode(strings.TrimSpace(m[1]))
	if m[2] == "" {
		return node
	}
	for _, part := range strings.Split(m[2], ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			node.Params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return node
}

// applyAttributeLine handles one "- <Name>: <Value>" line, routing
// __MAX_OF_/__MIN_OF_-prefixed names onto the base attribute's aggregated
// annotation rather than a separate map key. Unrecognized value shapes are
// retained verbatim as text - the parser is tolerant by design.
func applyAttributeLine(node *diagmodel.ProfileNode, attrLine string) {
	idx := strings.Index(attrLine, ":")
	if idx < 0 {
		node.SetAttr(attrLine, diagmodel.TextAttr(""))
		return
	}
	name := strings.TrimSpace(attrLine[:idx])
	value := strings.TrimSpace(attrLine[idx+1:])

	switch {
	case strings.HasPrefix(name, maxOfPrefix):
		base := strings.TrimPrefix(name, maxOfPrefix)
		if v, ok := parseAttrValue(value); ok && v.IsNumeric {
			node.SetMaxOf(base, v.Num)
		}
	case strings.HasPrefix(name, minOfPrefix):
		base := strings.TrimPrefix(name, minOfPrefix)
		if v, ok := parseAttrValue(value); ok && v.IsNumeric {
			node.SetMinOf(base, v.Num)
		}
	default:
		v, ok := parseAttrValue(value)
		if !ok {
			v = diagmodel.TextAttr(value)
		}
		node.SetAttr(name, v)
	}
}

// parseAttrValue tries the byte-unit parse before the time-unit parse.
// timeUnitPattern's bare "m" (minutes) alternative will otherwise
// partially match the "m" in a lowercase byte value like "1.5mb",
// mis-parsing it as 1.5 minutes instead of ~1.57MB.
func parseAttrValue(value string) (diagmodel.AttrValue, bool) {
	if b, ok := normalizeBytesToBytes(value); ok {
		return diagmodel.NumAttr(b), true
	}
	if ms, ok := normalizeTimeToMs(value); ok {
		return diagmodel.NumAttr(ms), true
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return diagmodel.NumAttr(f), true
	}
	return diagmodel.AttrValue{}, false
}
