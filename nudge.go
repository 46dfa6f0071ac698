package nero

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Nudge types.
const (
	NudgeReminder = "reminder"
	NudgeCheckIn  = "check_in"
)

// NewNudge schedules message for at. recurrence is an optional standard
// five-field cron expression ("0 9 * * 1-5"); each time a recurring nudge
// is sent its next occurrence is scheduled.
func NewNudge(message string, at time.Time, kind, recurrence string) (Nudge, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Nudge{}, ErrEmptyMessage
	}
	recurrence = strings.TrimSpace(recurrence)
	if recurrence != "" {
		if _, err := cron.ParseStandard(recurrence); err != nil {
			return Nudge{}, fmt.Errorf("nero: recurrence %q: %w", recurrence, err)
		}
	}
	if kind == "" {
		kind = NudgeReminder
	}
	return Nudge{
		ID:           uuid.NewString(),
		Message:      message,
		ScheduledFor: at,
		Type:         kind,
		Recurrence:   recurrence,
	}, nil
}

// nextOccurrence returns the follow-up of a recurring nudge, strictly after
// after. ok is false for one-shot nudges.
func nextOccurrence(n Nudge, after time.Time) (Nudge, bool) {
	if n.Recurrence == "" {
		return Nudge{}, false
	}
	sched, err := cron.ParseStandard(n.Recurrence)
	if err != nil {
		return Nudge{}, false
	}
	next := sched.Next(after)
	if next.IsZero() {
		return Nudge{}, false
	}
	return Nudge{
		ID:           uuid.NewString(),
		Message:      n.Message,
		ScheduledFor: next,
		Type:         n.Type,
		Recurrence:   n.Recurrence,
	}, true
}

// sortNudges orders nudges by due time, earliest first.
func sortNudges(ns []Nudge) {
	sort.SliceStable(ns, func(i, j int) bool {
		return ns[i].ScheduledFor.Before(ns[j].ScheduledFor)
	})
}
