package diagerrors

import "testing"

func TestClassifyFailure_TimeoutBeatsDataQuality(t *testing.T) {
	// "reached" is irrelevant - "timeout" must win regardless of
	// surrounding words.
	got := ClassifyFailure("[E1008] Reached timeout")
	if got != CategoryTimeout {
		t.Fatalf("got %s, want %s", got, CategoryTimeout)
	}
}

func TestClassifyFailure_OOMNotDataQuality(t *testing.T) {
	// "column" inside an OOM message must not misfire as data_quality.
	got := ClassifyFailure("failed to allocate column chunk buffer: out of memory")
	if got != CategoryResource {
		t.Fatalf("got %s, want %s", got, CategoryResource)
	}
}

func TestClassifyFailure_PriorityLadder(t *testing.T) {
	cases := []struct {
		text string
		want FailureCategory
	}{
		{"connection refused while reading parquet column", CategoryNetwork},
		{"object not found in remote storage", CategoryFile},
		{"permission denied for table t", CategoryPermission},
		{"transaction publish failed after retries", CategoryTransaction},
		{"invalid parameter: batch_size", CategoryConfiguration},
		{"column count mismatch: expected 5 got 4", CategoryDataQuality},
		{"load job cancelled by user", CategoryCancelled},
		{"completely unrecognized failure string", CategoryOther},
	}
	for _, tc := range cases {
		if got := ClassifyFailure(tc.text); got != tc.want {
			t.Errorf("ClassifyFailure(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestIsValidCategory(t *testing.T) {
	if !IsValidCategory(CategoryTimeout) {
		t.Fatal("CategoryTimeout should be valid")
	}
	if IsValidCategory(FailureCategory("made_up")) {
		t.Fatal("unknown category should not validate")
	}
}
