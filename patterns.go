package nero

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	energyWindow     = 14 * 24 * time.Hour
	completionWindow = 30 * 24 * time.Hour

	reinforceStep = 0.1
	maxConfidence = 0.95

	highEnergyMean = 3.5
	lowEnergyMean  = 2.5
)

var timeBuckets = []TimeOfDay{Morning, Afternoon, Evening, Night}

// AnalyzePatterns mines energy and completion history for recurring signals.
// It returns candidate patterns only; MergePatterns folds them into the
// stored set. Output order is deterministic.
func AnalyzePatterns(energy []EnergyEntry, completed []Task, now time.Time) []Pattern {
	var out []Pattern

	// 1. Trailing windows
	var recentEnergy []EnergyEntry
	for _, e := range energy {
		if now.Sub(e.Timestamp) <= energyWindow {
			recentEnergy = append(recentEnergy, e)
		}
	}

	// 2. Energy by time of day (≥3 samples)
	byBucket := make(map[TimeOfDay][]int)
	for _, e := range recentEnergy {
		byBucket[e.TimeOfDay] = append(byBucket[e.TimeOfDay], e.Level)
	}
	for _, b := range timeBuckets {
		levels := byBucket[b]
		if len(levels) < 3 {
			continue
		}
		avg := mean(levels)
		conf := math.Min(0.3+0.1*float64(len(levels)), 0.8)
		switch {
		case avg >= highEnergyMean:
			out = append(out, Pattern{
				Type:        PatternEnergy,
				Description: fmt.Sprintf("You tend to have higher energy in the %s", b),
				Confidence:  conf,
				TimeOfDay:   b,
				Positive:    true,
			})
		case avg <= lowEnergyMean:
			out = append(out, Pattern{
				Type:        PatternEnergy,
				Description: fmt.Sprintf("Your energy tends to be lower in the %s", b),
				Confidence:  conf,
				TimeOfDay:   b,
			})
		}
	}

	// 3. Best day of week (≥2 samples)
	byDay := make(map[int][]int)
	for _, e := range recentEnergy {
		byDay[e.DayOfWeek] = append(byDay[e.DayOfWeek], e.Level)
	}
	bestDay, bestMean, bestCount := -1, 0.0, 0
	for d := 0; d < 7; d++ {
		levels := byDay[d]
		if len(levels) < 2 {
			continue
		}
		if avg := mean(levels); avg >= highEnergyMean && avg > bestMean {
			bestDay, bestMean, bestCount = d, avg, len(levels)
		}
	}
	if bestDay >= 0 {
		out = append(out, Pattern{
			Type:        PatternDay,
			Description: fmt.Sprintf("%s tends to be your best day", time.Weekday(bestDay)),
			Confidence:  math.Min(0.3+0.1*float64(bestCount), 0.7),
			Positive:    true,
		})
	}

	// 4. Most productive time of day (≥3 completions)
	counts := make(map[TimeOfDay]int)
	for _, t := range completed {
		if t.CompletedAt == nil || now.Sub(*t.CompletedAt) > completionWindow {
			continue
		}
		counts[TimeOfDayFor(*t.CompletedAt)]++
	}
	var topBucket TimeOfDay
	topCount := 0
	for _, b := range timeBuckets {
		if counts[b] > topCount {
			topBucket, topCount = b, counts[b]
		}
	}
	if topCount >= 3 {
		out = append(out, Pattern{
			Type:        PatternCompletion,
			Description: fmt.Sprintf("You're most productive in the %s", topBucket),
			Confidence:  math.Min(0.4+0.1*float64(topCount), 0.8),
			TimeOfDay:   topBucket,
			Positive:    true,
		})
	}

	return out
}

// MergePatterns folds candidates into existing. A candidate whose description
// matches a stored pattern exactly reinforces it (+0.1, capped at 0.95);
// otherwise it is inserted. Confidence never decreases. Returns the merged
// set and the patterns that changed, for persistence.
func MergePatterns(existing, candidates []Pattern, now time.Time) (merged, changed []Pattern) {
	merged = append([]Pattern(nil), existing...)
	for _, c := range candidates {
		found := false
		for i := range merged {
			if merged[i].Description != c.Description {
				continue
			}
			merged[i].Confidence = math.Min(merged[i].Confidence+reinforceStep, maxConfidence)
			merged[i].Evidence++
			changed = append(changed, merged[i])
			found = true
			break
		}
		if found {
			continue
		}
		c.ID = uuid.NewString()
		c.Evidence = 1
		c.CreatedAt = now
		c.Confidence = math.Min(c.Confidence, maxConfidence)
		merged = append(merged, c)
		changed = append(changed, c)
	}
	return merged, changed
}

// strongPatterns returns up to n patterns with confidence ≥ min, strongest first.
func strongPatterns(patterns []Pattern, min float64, n int) []Pattern {
	var out []Pattern
	for _, p := range patterns {
		if p.Confidence >= min {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func mean(levels []int) float64 {
	if len(levels) == 0 {
		return 0
	}
	sum := 0
	for _, l := range levels {
		sum += l
	}
	return float64(sum) / float64(len(levels))
}
