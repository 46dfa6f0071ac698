package nero

import (
	"time"
)

// ConfidenceLabel buckets a suggestion score.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// Suggestion is the answer to "what should I do now".
type Suggestion struct {
	Task       Task
	Reason     string
	Confidence ConfidenceLabel
	Score      int
}

const baseTaskScore = 50

type scoreReason struct {
	delta int
	text  string
}

// SuggestTask ranks open tasks for the current moment. energy is the current
// level (0 = unknown, which skips the energy rules). Scoring is deterministic;
// ties go to the earliest task in open. Returns nil when there are no open tasks.
func SuggestTask(open []Task, energy int, patterns []Pattern, completed []Task, now time.Time) *Suggestion {
	peakNow := false
	bucket := TimeOfDayFor(now)
	for _, p := range patterns {
		if p.Positive && p.TimeOfDay == bucket && (p.Type == PatternEnergy || p.Type == PatternCompletion) {
			peakNow = true
			break
		}
	}

	onRoll := false
	for _, t := range completed {
		if t.CompletedAt != nil && now.Sub(*t.CompletedAt) <= 2*time.Hour && !t.CompletedAt.After(now) {
			onRoll = true
			break
		}
	}

	var best *Suggestion
	for _, t := range open {
		if t.Status != TaskOpen {
			continue
		}
		score, reasons := scoreTask(t, energy, peakNow, onRoll, now)
		if best != nil && score <= best.Score {
			continue
		}
		best = &Suggestion{
			Task:       t,
			Reason:     topReason(reasons),
			Confidence: labelFor(score),
			Score:      score,
		}
	}
	return best
}

func scoreTask(t Task, energy int, peakNow, onRoll bool, now time.Time) (int, []scoreReason) {
	score := baseTaskScore
	var reasons []scoreReason
	add := func(delta int, text string) {
		score += delta
		reasons = append(reasons, scoreReason{delta, text})
	}

	age := t.AgeDays(now)
	switch {
	case age > 7:
		add(30, "it's been on your list for over a week")
	case age > 3:
		add(20, "it's been waiting a few days")
	case age > 1:
		add(10, "it's been sitting since yesterday")
	}

	if energy > 0 {
		switch {
		case energy >= 4 && age > 3:
			add(25, "your energy is good, a great time to tackle something hard")
		case energy >= 3 && energy < 4 && age >= 1 && age <= 3:
			add(15, "it seems manageable right now")
		case energy < 3 && age < 2:
			add(20, "it's something fresh and simple")
		case energy < 3 && age > 3:
			add(-15, "")
		}
	}

	if peakNow && energy >= 3 {
		add(15, "this is usually one of your better times of day")
	}
	if onRoll {
		add(10, "you're on a roll")
	}
	return score, reasons
}

func topReason(reasons []scoreReason) string {
	text, top := "one small step at a time", 0
	for _, r := range reasons {
		if r.delta > top && r.text != "" {
			text, top = r.text, r.delta
		}
	}
	return text
}

func labelFor(score int) ConfidenceLabel {
	switch {
	case score > 70:
		return ConfidenceHigh
	case score > 50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// IdleSuggestion is what to say when there is nothing on the list.
func IdleSuggestion(energy int) string {
	if energy > 0 && energy <= 2 {
		return "Nothing on your list, and your energy is low. Maybe this is a good moment to rest."
	}
	return "Your list is clear. What's one thing that would make today feel like a win?"
}
