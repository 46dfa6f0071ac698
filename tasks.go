package nero

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FuzzyMatch reports whether either string contains the other, ignoring case.
// "Sarah about the budget" matches the task "email Sarah about the budget".
func FuzzyMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// NewTask creates an open task. energy is the current level, 0 when unknown.
func NewTask(description string, energy int, now time.Time) Task {
	return Task{
		ID:               uuid.NewString(),
		Description:      strings.TrimSpace(description),
		Status:           TaskOpen,
		CreatedAt:        now,
		EnergyAtCreation: energy,
	}
}

// Complete moves an open task to completed.
func (t *Task) Complete(now time.Time, energy int) error {
	if t.Status != TaskOpen {
		return ErrTaskClosed
	}
	t.Status = TaskCompleted
	t.CompletedAt = &now
	t.EnergyAtCompletion = energy
	return nil
}

// Abandon moves an open task to abandoned.
func (t *Task) Abandon() error {
	if t.Status != TaskOpen {
		return ErrTaskClosed
	}
	t.Status = TaskAbandoned
	return nil
}

// HasOpenTask reports whether description is already covered by an open task.
func HasOpenTask(open []Task, description string) bool {
	_, ok := MatchOpenTask(open, description)
	return ok
}

// MatchOpenTask returns the index of the first open task fuzzy-matching text.
func MatchOpenTask(open []Task, text string) (int, bool) {
	for i, t := range open {
		if t.Status == TaskOpen && FuzzyMatch(t.Description, text) {
			return i, true
		}
	}
	return -1, false
}

// findTask returns the index of the task with id.
func findTask(tasks []Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// removeTask returns tasks without the entry at i, preserving order.
func removeTask(tasks []Task, i int) []Task {
	out := make([]Task, 0, len(tasks)-1)
	out = append(out, tasks[:i]...)
	return append(out, tasks[i+1:]...)
}
