package nero

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// CheckInResponse is the user's answer to a focus-session check-in.
type CheckInResponse string

const (
	CheckInGood  CheckInResponse = "good"
	CheckInStuck CheckInResponse = "stuck"
	CheckInDone  CheckInResponse = "done"
	CheckInBreak CheckInResponse = "break"
)

// BodyDoubleSession is an in-memory focus session. It is never persisted.
type BodyDoubleSession struct {
	TaskID          string
	TaskDescription string
	StartedAt       time.Time
	LastCheckIn     time.Time
	NextCheckIn     time.Time
	CheckInCount    int
}

// checkInJitter draws the next check-in interval uniformly from [min, max].
func checkInJitter(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int64N(int64(max-min)+1))
}

func newBodyDoubleSession(task *Task, now time.Time, next time.Duration) *BodyDoubleSession {
	s := &BodyDoubleSession{
		StartedAt:   now,
		LastCheckIn: now,
		NextCheckIn: now.Add(next),
	}
	if task != nil {
		s.TaskID = task.ID
		s.TaskDescription = task.Description
	}
	return s
}

// CheckInDue reports whether the randomized check-in interval has elapsed.
func (s *BodyDoubleSession) CheckInDue(now time.Time) bool {
	return !now.Before(s.NextCheckIn)
}

// recordCheckIn resets the check-in clock with a fresh interval.
func (s *BodyDoubleSession) recordCheckIn(now time.Time, next time.Duration) {
	s.LastCheckIn = now
	s.NextCheckIn = now.Add(next)
	s.CheckInCount++
}

func (s *BodyDoubleSession) openingMessage() string {
	if s.TaskDescription != "" {
		return fmt.Sprintf("Okay, I'm here with you. We're working on %q. I'll check in every so often. You've got this.", s.TaskDescription)
	}
	return "Okay, I'm here with you. Work on whatever you need to. I'll check in every so often."
}

// CheckInPrompt is the text shown when a check-in comes due.
func (s *BodyDoubleSession) CheckInPrompt() string {
	if s.TaskDescription != "" {
		return fmt.Sprintf("Quick check-in. How's %q going?", s.TaskDescription)
	}
	return "Quick check-in. How's it going?"
}

var checkInReplies = map[CheckInResponse]string{
	CheckInGood:  "Nice. Keep going, I'm right here.",
	CheckInStuck: "That's okay. What's the very next tiny step? Just that one.",
	CheckInBreak: "Take five. Stretch, drink some water. I'll be here when you're back.",
}

// summary describes a finished session with a human-readable duration.
func (s *BodyDoubleSession) summary(now time.Time, completed bool) string {
	elapsed := formatElapsed(s.StartedAt, now)
	var b strings.Builder
	switch {
	case completed && s.TaskDescription != "":
		fmt.Fprintf(&b, "You did it! %q is done after %s of focus.", s.TaskDescription, elapsed)
	case completed:
		fmt.Fprintf(&b, "Done! That was %s of focus.", elapsed)
	default:
		fmt.Fprintf(&b, "Thanks for the %s of time together.", elapsed)
	}
	if s.CheckInCount > 0 {
		fmt.Fprintf(&b, " We checked in %d time%s.", s.CheckInCount, plural(s.CheckInCount))
	}
	return b.String()
}

// formatElapsed renders the span between start and end, e.g. "25 minutes".
func formatElapsed(start, end time.Time) string {
	if end.Sub(start) < time.Minute {
		return "less than a minute"
	}
	return strings.TrimSpace(humanize.RelTime(start, end, "", ""))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
