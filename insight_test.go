package nero

import (
	"strings"
	"testing"
	"time"
)

func TestBuildInsights(t *testing.T) {
	now := time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)
	patterns := []Pattern{
		{ID: "p1", Description: "You tend to have higher energy in the morning", Confidence: 0.8},
		{ID: "p2", Description: "weak", Confidence: 0.3},
		{ID: "p3", Description: "already said", Confidence: 0.9, SurfacedToUser: true},
	}
	open := []Task{
		NewTask("newer", 0, now.Add(-8*24*time.Hour)),
		NewTask("oldest", 0, now.Add(-12*24*time.Hour)),
	}
	var done []Task
	for i := 0; i < 3; i++ {
		d := NewTask("x", 0, now.Add(-48*time.Hour))
		d.Complete(now.Add(-time.Duration(i+1)*time.Hour), 3)
		done = append(done, d)
	}

	got := BuildInsights(patterns, open, done, 2, now)
	kinds := map[InsightKind]Insight{}
	for _, in := range got {
		kinds[in.Kind] = in
	}
	if len(got) != 4 {
		t.Fatalf("got %d insights: %+v", len(got), got)
	}
	if p := kinds[InsightPattern]; p.PatternID != "p1" || p.Priority != 3 {
		t.Errorf("pattern insight = %+v", p)
	}
	if s := kinds[InsightStuck]; !strings.Contains(s.Text, `"oldest"`) || !strings.Contains(s.Text, "12 days") {
		t.Errorf("stuck insight = %q", s.Text)
	}
	if s := kinds[InsightStreak]; !strings.Contains(s.Text, "3 things") {
		t.Errorf("streak insight = %q", s.Text)
	}
	if _, ok := kinds[InsightEncouragement]; !ok {
		t.Error("missing encouragement for low energy")
	}
}

func TestInsightSelectorCooldown(t *testing.T) {
	now := time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)
	s := NewInsightSelector(10 * time.Minute)
	low := Insight{Kind: InsightEncouragement, Text: "keep going", Priority: 1}
	stuck := Insight{Kind: InsightStuck, Text: "stuck", Priority: 2}

	pick, ok := s.Select([]Insight{low, stuck}, now)
	if !ok || pick.Text != "stuck" {
		t.Fatalf("first pick = %+v, %v", pick, ok)
	}
	if _, ok := s.Select([]Insight{low}, now.Add(5*time.Minute)); ok {
		t.Error("selected during cooldown")
	}

	pattern := Insight{Kind: InsightPattern, Text: "pattern", Priority: 3}
	if pick, ok := s.Select([]Insight{low, pattern}, now.Add(6*time.Minute)); !ok || pick.Text != "pattern" {
		t.Errorf("pattern insight should break through cooldown, got %+v %v", pick, ok)
	}
	if !s.LastSurfaced().Equal(now.Add(6 * time.Minute)) {
		t.Errorf("LastSurfaced = %v", s.LastSurfaced())
	}

	if pick, ok := s.Select([]Insight{low}, now.Add(20*time.Minute)); !ok || pick.Text != "keep going" {
		t.Errorf("after cooldown got %+v %v", pick, ok)
	}
}

func TestInsightSelectorNoRepeatWithinDay(t *testing.T) {
	now := time.Now()
	s := NewInsightSelector(time.Minute)
	in := Insight{Kind: InsightStreak, Text: "streak", Priority: 2}
	if _, ok := s.Select([]Insight{in}, now); !ok {
		t.Fatal("first select failed")
	}
	if _, ok := s.Select([]Insight{in}, now.Add(2*time.Hour)); ok {
		t.Error("same insight repeated within 24h")
	}
	if _, ok := s.Select([]Insight{in}, now.Add(25*time.Hour)); !ok {
		t.Error("insight should be eligible again after a day")
	}
}
