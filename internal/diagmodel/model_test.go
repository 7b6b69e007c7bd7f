package diagmodel

import "testing"

func TestCollectedDatasetPreservesPlanOrder(t *testing.T) {
	d := NewCollectedDataset([]string{"c", "a", "b"})

	// Set out of plan order, simulating out-of-order completion.
	d.Set("a", CollectedResult{Rows: []Row{{"x": IntScalar(1)}}})
	d.Set("c", CollectedResult{Rows: []Row{{"x": IntScalar(3)}}})
	d.Set("b", CollectedResult{Rows: []Row{{"x": IntScalar(2)}}})

	got := d.Keys()
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", got, want)
		}
	}
}

func TestFindingSetSortSeverityThenPassThenDiscovery(t *testing.T) {
	fs := &FindingSet{Findings: []Finding{
		{Severity: SeverityInsight, Pass: "score_band", DiscoveryIndex: 0, Type: "a"},
		{Severity: SeverityCritical, Pass: "thread_undersizing", DiscoveryIndex: 0, Type: "b"},
		{Severity: SeverityCritical, Pass: "score_band", DiscoveryIndex: 1, Type: "c"},
		{Severity: SeverityCritical, Pass: "score_band", DiscoveryIndex: 0, Type: "d"},
		{Severity: SeverityWarning, Pass: "score_band", DiscoveryIndex: 0, Type: "e"},
	}}

	passOrder := []string{"score_band", "thread_undersizing", "queue_backlog"}
	fs.Sort(passOrder)

	gotTypes := make([]string, len(fs.Findings))
	for i, f := range fs.Findings {
		gotTypes[i] = f.Type
	}
	want := []string{"d", "c", "b", "e", "a"}
	for i := range want {
		if gotTypes[i] != want[i] {
			t.Fatalf("sorted types = %v, want %v", gotTypes, want)
		}
	}
}

func TestFindingSetSortIsIdempotent(t *testing.T) {
	// Sorting an already-sorted set must be a no-op.
	fs := &FindingSet{Findings: []Finding{
		{Severity: SeverityCritical, Pass: "score_band", DiscoveryIndex: 0, Type: "a"},
		{Severity: SeverityWarning, Pass: "score_band", DiscoveryIndex: 0, Type: "b"},
	}}
	passOrder := []string{"score_band"}
	fs.Sort(passOrder)
	first := append([]Finding(nil), fs.Findings...)
	fs.Sort(passOrder)
	for i := range first {
		if first[i].Type != fs.Findings[i].Type {
			t.Fatalf("re-sorting changed order: %v vs %v", first, fs.Findings)
		}
	}
}

func TestSortRecommendationsStableWithinPriority(t *testing.T) {
	recs := []Recommendation{
		{ID: "1", Priority: PriorityLow},
		{ID: "2", Priority: PriorityImmediate},
		{ID: "3", Priority: PriorityImmediate},
		{ID: "4", Priority: PriorityHigh},
	}
	SortRecommendations(recs)

	want := []string{"2", "3", "4", "1"}
	for i, r := range recs {
		if r.ID != want[i] {
			t.Fatalf("sorted IDs = %v, want %v", recs, want)
		}
	}
}

func TestScalarAsFloat(t *testing.T) {
	if f, ok := IntScalar(42).AsFloat(); !ok || f != 42 {
		t.Fatalf("IntScalar.AsFloat() = %v,%v want 42,true", f, ok)
	}
	if f, ok := FloatScalar(1.5).AsFloat(); !ok || f != 1.5 {
		t.Fatalf("FloatScalar.AsFloat() = %v,%v want 1.5,true", f, ok)
	}
	if _, ok := NullScalar().AsFloat(); ok {
		t.Fatal("NullScalar.AsFloat() should report not-ok")
	}
	if _, ok := TextScalar("x").AsFloat(); ok {
		t.Fatal("TextScalar.AsFloat() should report not-ok")
	}
}

func TestScalarAsNumericParsesTextFromAdminShow(t *testing.T) {
	// ADMIN SHOW / SHOW-style commands surface config values as text even
	// when the value is numeric (e.g. lake_compaction_max_tasks = "-1").
	if f, ok := TextScalar("-1").AsNumeric(); !ok || f != -1 {
		t.Fatalf("TextScalar(-1).AsNumeric() = %v,%v want -1,true", f, ok)
	}
	if f, ok := TextScalar("  42 ").AsNumeric(); !ok || f != 42 {
		t.Fatalf("TextScalar(42).AsNumeric() = %v,%v want 42,true", f, ok)
	}
	if _, ok := TextScalar("adaptive").AsNumeric(); ok {
		t.Fatal("TextScalar(adaptive).AsNumeric() should report not-ok")
	}
	if f, ok := IntScalar(7).AsNumeric(); !ok || f != 7 {
		t.Fatalf("IntScalar(7).AsNumeric() = %v,%v want 7,true", f, ok)
	}
	if _, ok := NullScalar().AsNumeric(); ok {
		t.Fatal("NullScalar.AsNumeric() should report not-ok")
	}
}
