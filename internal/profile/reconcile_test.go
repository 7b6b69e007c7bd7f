package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileTimeFlagsMajorityUnaccounted(t *testing.T) {
	text := `Summary
  - TotalTime: 100s
  Phase A
    - TotalTime: 20s
  Phase B
    - TotalTime: 10s
`
	root := Parse(text)
	summary := root.Children[0]

	f, ok := ReconcileTime(summary, "TotalTime", testLib())
	require.True(t, ok)
	assert.Equal(t, "missing_time", f.Type)
	assert.InDelta(t, 0.7, f.Evidence["unaccounted_ratio"], 0.001)
	assert.Len(t, f.Evidence["probable_sources"], 4)
}

func TestReconcileTimeNoFindingWhenMostlyAccounted(t *testing.T) {
	text := `Summary
  - TotalTime: 100s
  Phase A
    - TotalTime: 60s
  Phase B
    - TotalTime: 35s
`
	root := Parse(text)
	summary := root.Children[0]

	_, ok := ReconcileTime(summary, "TotalTime", testLib())
	assert.False(t, ok)
}

func TestReconcileTimeNoFindingWithoutTotal(t *testing.T) {
	text := "Summary\n  Phase A\n    - TotalTime: 10s\n"
	root := Parse(text)
	summary := root.Children[0]

	_, ok := ReconcileTime(summary, "TotalTime", testLib())
	assert.False(t, ok)
}
