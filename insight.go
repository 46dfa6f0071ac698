package nero

import (
	"fmt"
	"sort"
	"time"
)

// InsightKind is the source of an insight candidate.
type InsightKind string

const (
	InsightPattern       InsightKind = "pattern"
	InsightStreak        InsightKind = "streak"
	InsightStuck         InsightKind = "stuck"
	InsightEncouragement InsightKind = "encouragement"
)

// Insight is one observation that may be woven into a reply.
type Insight struct {
	Kind      InsightKind
	Text      string
	Priority  int
	PatternID string // set for pattern insights
}

const (
	insightPatternPriority = 3
	insightRepeatWindow    = 24 * time.Hour
)

// BuildInsights lists the insight candidates available right now.
func BuildInsights(patterns []Pattern, open, completed []Task, energy int, now time.Time) []Insight {
	var out []Insight

	for _, p := range strongPatterns(patterns, 0.5, len(patterns)) {
		if p.SurfacedToUser {
			continue
		}
		out = append(out, Insight{
			Kind:      InsightPattern,
			Text:      "I've noticed something: " + p.Description + ".",
			Priority:  insightPatternPriority,
			PatternID: p.ID,
		})
	}

	var stuck *Task
	for i := range open {
		t := open[i]
		if t.Status == TaskOpen && t.AgeDays(now) > 7 && (stuck == nil || t.CreatedAt.Before(stuck.CreatedAt)) {
			stuck = &open[i]
		}
	}
	if stuck != nil {
		out = append(out, Insight{
			Kind:     InsightStuck,
			Text:     fmt.Sprintf("%q has been on the list for %d days. Maybe it needs to be broken into something smaller.", stuck.Description, int(stuck.AgeDays(now))),
			Priority: 2,
		})
	}

	done := 0
	for _, t := range completed {
		if t.CompletedAt != nil && now.Sub(*t.CompletedAt) <= 24*time.Hour {
			done++
		}
	}
	if done >= 3 {
		out = append(out, Insight{
			Kind:     InsightStreak,
			Text:     fmt.Sprintf("You've finished %d things in the last day. That's a real streak.", done),
			Priority: 2,
		})
	}

	if energy > 0 && energy <= 2 {
		out = append(out, Insight{
			Kind:     InsightEncouragement,
			Text:     "Low energy days count too. Doing less today is still doing something.",
			Priority: 1,
		})
	}

	return out
}

// InsightSelector rate-limits insights: at most one per cooldown window,
// except that an unsurfaced pattern insight (priority ≥3) may break through.
type InsightSelector struct {
	cooldown time.Duration
	last     time.Time
	seen     map[string]time.Time
}

// NewInsightSelector creates a selector with the given cooldown.
func NewInsightSelector(cooldown time.Duration) *InsightSelector {
	return &InsightSelector{cooldown: cooldown, seen: make(map[string]time.Time)}
}

// Select picks the highest-priority eligible candidate and records it as
// surfaced. Returns false when nothing may be shown.
func (s *InsightSelector) Select(candidates []Insight, now time.Time) (Insight, bool) {
	inCooldown := !s.last.IsZero() && now.Sub(s.last) < s.cooldown

	var eligible []Insight
	for _, c := range candidates {
		if at, ok := s.seen[c.Text]; ok && now.Sub(at) < insightRepeatWindow {
			continue
		}
		if inCooldown && (c.Kind != InsightPattern || c.Priority < insightPatternPriority) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return Insight{}, false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Priority > eligible[j].Priority
	})
	pick := eligible[0]
	s.last = now
	s.seen[pick.Text] = now
	return pick, true
}

// LastSurfaced returns when an insight was last selected.
func (s *InsightSelector) LastSurfaced() time.Time {
	return s.last
}
