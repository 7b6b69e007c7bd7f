package diagmodel

import "sort"

// stableSortFindings orders findings by severity first, then analyzer
// pass order, then discovery order within the pass. sort.SliceStable
// preserves input order for any remaining ties, which is what makes
// FindingSet.Sort idempotent under re-sorting.
func stableSortFindings(findings []Finding, passOrder []string) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		ap, bp := PassOrder(passOrder, a.Pass), PassOrder(passOrder, b.Pass)
		if ap != bp {
			return ap < bp
		}
		return a.DiscoveryIndex < b.DiscoveryIndex
	})
}

// SortRecommendations orders by Priority only. sort.SliceStable leaves
// equal-priority recommendations in their original generation order for
// free - that original order is the tie-break, so there is no separate
// sequence counter to maintain.
func SortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.rank() < recs[j].Priority.rank()
	})
}
