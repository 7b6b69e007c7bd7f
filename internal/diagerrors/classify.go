package diagerrors

import "strings"

// matcher pairs a category with the substrings that identify it. Order in
// the matchers slice below IS the priority ladder: the classifier
// evaluates top to bottom and returns on the first match, so a message
// like "column" inside an out-of-memory text resolves to resource
// exhaustion rather than misfiring as data quality.
type matcher struct {
	category FailureCategory
	needles  []string
}

var matchers = []matcher{
	{CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded", "e1008"}},
	{CategoryResource, []string{"out of memory", "oom", "no available worker", "resource exhausted", "too many open files"}},
	{CategoryNetwork, []string{"connection refused", "connection reset", "no route to host", "broken pipe", "network unreachable"}},
	{CategoryFile, []string{"no such file", "object not found", "file not found", "404 not found", "access denied to object"}},
	{CategoryPermission, []string{"permission denied", "access denied", "authentication failed", "not authorized"}},
	{CategoryTransaction, []string{"transaction", "2pc", "commit failed", "publish failed"}},
	{CategoryConfiguration, []string{"invalid parameter", "invalid configuration", "unknown property", "unsupported option"}},
	{CategoryDataQuality, []string{"parse error", "column count mismatch", "type mismatch", "unqualified column", "malformed"}},
	{CategoryCancelled, []string{"cancelled", "canceled", "user cancel"}},
}

// ClassifyFailure applies the priority-ordered matcher chain to an
// ingestion job's terminal error text. Unmatched text classifies as
// CategoryOther, never an error - classification never fails, it just
// degrades to the catch-all bucket.
func ClassifyFailure(errorText string) FailureCategory {
	lower := strings.ToLower(errorText)
	for _, m := range matchers {
		for _, needle := range m.needles {
			if strings.Contains(lower, needle) {
				return m.category
			}
		}
	}
	return CategoryOther
}
