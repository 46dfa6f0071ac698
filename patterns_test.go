package nero

import (
	"strings"
	"testing"
	"time"
)

// morningEntries logs levels on consecutive days at 9am.
func morningEntries(now time.Time, levels ...int) []EnergyEntry {
	var out []EnergyEntry
	for i, lvl := range levels {
		at := time.Date(now.Year(), now.Month(), now.Day()-len(levels)+i, 9, 0, 0, 0, now.Location())
		e, _ := NewEnergyEntry(lvl, "", at)
		out = append(out, e)
	}
	return out
}

func TestAnalyzeMorningHighEnergy(t *testing.T) {
	now := time.Date(2026, 4, 20, 18, 0, 0, 0, time.UTC)
	got := AnalyzePatterns(morningEntries(now, 4, 5, 4, 5, 4), nil, now)

	var found *Pattern
	for i := range got {
		if got[i].Type == PatternEnergy {
			found = &got[i]
		}
	}
	if found == nil {
		t.Fatalf("no energy pattern in %+v", got)
	}
	if !strings.Contains(found.Description, "higher energy") || !strings.Contains(found.Description, "morning") {
		t.Errorf("description = %q", found.Description)
	}
	if found.Confidence < 0.4 {
		t.Errorf("confidence = %.2f, want >= 0.4", found.Confidence)
	}
	if found.TimeOfDay != Morning || !found.Positive {
		t.Errorf("pattern = %+v", *found)
	}
}

func TestAnalyzeLowEnergy(t *testing.T) {
	now := time.Date(2026, 4, 20, 18, 0, 0, 0, time.UTC)
	got := AnalyzePatterns(morningEntries(now, 2, 1, 2), nil, now)
	if len(got) != 1 || !strings.Contains(got[0].Description, "lower in the morning") {
		t.Fatalf("patterns = %+v", got)
	}
	if got[0].Positive {
		t.Error("low-energy pattern should not be positive")
	}
}

func TestAnalyzeNeedsThreeSamples(t *testing.T) {
	now := time.Date(2026, 4, 20, 18, 0, 0, 0, time.UTC)
	got := AnalyzePatterns(morningEntries(now, 5, 5), nil, now)
	for _, p := range got {
		if p.Type == PatternEnergy {
			t.Errorf("two samples produced %q", p.Description)
		}
	}
}

func TestAnalyzeIgnoresOldEnergy(t *testing.T) {
	now := time.Date(2026, 4, 20, 18, 0, 0, 0, time.UTC)
	old := morningEntries(now.Add(-30*24*time.Hour), 5, 5, 5, 5)
	if got := AnalyzePatterns(old, nil, now); len(got) != 0 {
		t.Errorf("entries outside the window produced %+v", got)
	}
}

func TestAnalyzeBestDay(t *testing.T) {
	now := time.Date(2026, 4, 20, 18, 0, 0, 0, time.UTC) // Monday
	var entries []EnergyEntry
	for _, d := range []int{6, 13} { // the two previous Tuesdays
		at := now.Add(-time.Duration(d) * 24 * time.Hour)
		e, _ := NewEnergyEntry(5, "", at)
		entries = append(entries, e)
	}
	got := AnalyzePatterns(entries, nil, now)
	if len(got) != 1 || got[0].Type != PatternDay {
		t.Fatalf("patterns = %+v", got)
	}
	if got[0].Description != "Tuesday tends to be your best day" {
		t.Errorf("description = %q", got[0].Description)
	}
}

func TestAnalyzeProductiveTime(t *testing.T) {
	now := time.Date(2026, 4, 20, 18, 0, 0, 0, time.UTC)
	var done []Task
	for i := 1; i <= 3; i++ {
		task := NewTask("thing", 0, now.Add(-72*time.Hour))
		at := time.Date(2026, 4, 20-i, 14, 0, 0, 0, time.UTC)
		task.Complete(at, 0)
		done = append(done, task)
	}
	got := AnalyzePatterns(nil, done, now)
	if len(got) != 1 || got[0].Type != PatternCompletion || got[0].TimeOfDay != Afternoon {
		t.Fatalf("patterns = %+v", got)
	}
	if got[0].Confidence < 0.69 || got[0].Confidence > 0.71 {
		t.Errorf("confidence = %.2f, want 0.7", got[0].Confidence)
	}
}

func TestMergePatternsReinforces(t *testing.T) {
	now := time.Date(2026, 4, 20, 18, 0, 0, 0, time.UTC)
	cands := AnalyzePatterns(morningEntries(now, 4, 5, 4, 5, 4), nil, now)

	merged, changed := MergePatterns(nil, cands, now)
	if len(merged) != 1 || len(changed) != 1 {
		t.Fatalf("first merge: merged=%d changed=%d", len(merged), len(changed))
	}
	first := merged[0]
	if first.ID == "" || first.Evidence != 1 || !first.CreatedAt.Equal(now) {
		t.Errorf("inserted pattern = %+v", first)
	}

	merged, changed = MergePatterns(merged, cands, now.Add(time.Hour))
	if len(merged) != 1 {
		t.Fatalf("duplicate description inserted twice: %+v", merged)
	}
	if len(changed) != 1 || merged[0].ID != first.ID {
		t.Fatalf("reinforcement lost identity: %+v", merged)
	}
	if merged[0].Confidence <= first.Confidence || merged[0].Evidence != 2 {
		t.Errorf("not reinforced: %+v", merged[0])
	}
}

func TestMergePatternsCapsConfidence(t *testing.T) {
	now := time.Now()
	existing := []Pattern{{ID: "p1", Description: "x", Confidence: 0.9, Evidence: 5}}
	merged, _ := MergePatterns(existing, []Pattern{{Description: "x", Confidence: 0.5}}, now)
	if merged[0].Confidence != maxConfidence {
		t.Errorf("confidence = %v, want %v", merged[0].Confidence, maxConfidence)
	}
	merged, _ = MergePatterns(merged, []Pattern{{Description: "x", Confidence: 0.5}}, now)
	if merged[0].Confidence != maxConfidence {
		t.Errorf("confidence moved past cap: %v", merged[0].Confidence)
	}
	if existing[0].Confidence != 0.9 {
		t.Error("MergePatterns modified its input")
	}
}

func TestStrongPatterns(t *testing.T) {
	ps := []Pattern{
		{Description: "a", Confidence: 0.4},
		{Description: "b", Confidence: 0.9},
		{Description: "c", Confidence: 0.6},
		{Description: "d", Confidence: 0.7},
	}
	got := strongPatterns(ps, 0.5, 2)
	if len(got) != 2 || got[0].Description != "b" || got[1].Description != "d" {
		t.Errorf("strongPatterns = %+v", got)
	}
}
