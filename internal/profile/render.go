package profile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

// Render reconstructs indentation-form text from a profile tree:
// render(parse(p)) preserves the original sequence of (depth, label)
// pairs. It does not attempt to reproduce the exact
// original unit-suffixed attribute text, since the tree only retains
// normalized numeric values - only the header structure round-trips in
// sequence. Header parameters are written in map iteration order, so a
// header with more than one parameter may come back with them reordered.
func Render(root *diagmodel.ProfileNode) string {
	var b strings.Builder
	for _, child := range root.Children {
		renderNode(&b, child, 0)
	}
	return b.String()
}

func renderNode(b *strings.Builder, n *diagmodel.ProfileNode, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent)
	b.WriteString(n.Label)
	if len(n.Params) > 0 {
		b.WriteString(" (")
		first := true
		for k, v := range n.Params {
			if !first {
				b.WriteString(", ")
			}
			first = false
			fmt.Fprintf(b, "%s=%s", k, v)
		}
		b.WriteString(")")
	}
	b.WriteString("\n")

	attrIndent := strings.Repeat("  ", depth+1)
	for _, key := range n.AttrOrder {
		v := n.Attributes[key]
		fmt.Fprintf(b, "%s- %s: %s\n", attrIndent, key, formatAttrValue(v))
		if v.HasMax {
			fmt.Fprintf(b, "%s- %s%s: %s\n", attrIndent, maxOfPrefix, key, strconv.FormatFloat(v.Max, 'g', -1, 64))
		}
		if v.HasMin {
			fmt.Fprintf(b, "%s- %s%s: %s\n", attrIndent, minOfPrefix, key, strconv.FormatFloat(v.Min, 'g', -1, 64))
		}
	}

	for _, c := range n.Children {
		renderNode(b, c, depth+1)
	}
}

func formatAttrValue(v diagmodel.AttrValue) string {
	if v.IsNumeric {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return v.Text
}
