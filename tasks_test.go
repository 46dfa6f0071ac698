package nero

import (
	"errors"
	"testing"
	"time"
)

func TestFuzzyMatch(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"email Sarah about the budget", "Sarah about the budget", true},
		{"clean my desk", "CLEAN MY DESK", true},
		{"my desk", "clean my desk", true},
		{"clean my desk", "call mom", false},
		{"clean my desk", "  ", false},
	}
	for _, tc := range cases {
		if got := FuzzyMatch(tc.a, tc.b); got != tc.want {
			t.Errorf("FuzzyMatch(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTaskLifecycle(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	task := NewTask("  write the proposal ", 3, now)
	if task.Description != "write the proposal" || task.Status != TaskOpen || task.EnergyAtCreation != 3 {
		t.Fatalf("NewTask = %+v", task)
	}
	if task.ID == "" {
		t.Fatal("task has no ID")
	}

	done := now.Add(time.Hour)
	if err := task.Complete(done, 4); err != nil {
		t.Fatal(err)
	}
	if task.Status != TaskCompleted || task.CompletedAt == nil || !task.CompletedAt.Equal(done) || task.EnergyAtCompletion != 4 {
		t.Errorf("after Complete: %+v", task)
	}
	if err := task.Complete(done, 4); !errors.Is(err, ErrTaskClosed) {
		t.Errorf("second Complete = %v, want ErrTaskClosed", err)
	}
	if err := task.Abandon(); !errors.Is(err, ErrTaskClosed) {
		t.Errorf("Abandon after complete = %v, want ErrTaskClosed", err)
	}
}

func TestTaskAbandon(t *testing.T) {
	task := NewTask("learn guitar", 0, time.Now())
	if err := task.Abandon(); err != nil {
		t.Fatal(err)
	}
	if task.Status != TaskAbandoned || task.CompletedAt != nil {
		t.Errorf("after Abandon: %+v", task)
	}
}

func TestMatchOpenTaskFirstWins(t *testing.T) {
	now := time.Now()
	open := []Task{
		NewTask("call mom", 0, now),
		NewTask("clean my desk", 0, now),
		NewTask("clean my desk drawer", 0, now),
	}
	i, ok := MatchOpenTask(open, "my desk")
	if !ok || i != 1 {
		t.Errorf("MatchOpenTask = %d, %v; want 1, true", i, ok)
	}
	if !HasOpenTask(open, "Call Mom") {
		t.Error("HasOpenTask should match case-insensitively")
	}
	if HasOpenTask(open, "book flights") {
		t.Error("HasOpenTask matched an unrelated description")
	}
}

func TestRemoveTaskKeepsOrder(t *testing.T) {
	now := time.Now()
	tasks := []Task{NewTask("a task", 0, now), NewTask("b task", 0, now), NewTask("c task", 0, now)}
	out := removeTask(tasks, 1)
	if len(out) != 2 || out[0].Description != "a task" || out[1].Description != "c task" {
		t.Errorf("removeTask = %+v", out)
	}
	if tasks[1].Description != "b task" {
		t.Error("removeTask modified its input")
	}
	if findTask(out, tasks[1].ID) != -1 {
		t.Error("removed task still found")
	}
}

func TestTimeOfDayBuckets(t *testing.T) {
	cases := map[int]TimeOfDay{0: Morning, 11: Morning, 12: Afternoon, 16: Afternoon, 17: Evening, 20: Evening, 21: Night, 23: Night}
	for h, want := range cases {
		if got := TimeOfDayFor(time.Date(2026, 1, 1, h, 30, 0, 0, time.UTC)); got != want {
			t.Errorf("hour %d = %s, want %s", h, got, want)
		}
	}
}

func TestNewEnergyEntry(t *testing.T) {
	at := time.Date(2026, 6, 7, 8, 0, 0, 0, time.UTC) // a Sunday morning
	e, err := NewEnergyEntry(4, "calm", at)
	if err != nil {
		t.Fatal(err)
	}
	if e.TimeOfDay != Morning || e.DayOfWeek != 0 {
		t.Errorf("entry = %+v", e)
	}
	for _, lvl := range []int{0, 6, -1} {
		if _, err := NewEnergyEntry(lvl, "", at); !errors.Is(err, ErrInvalidEnergy) {
			t.Errorf("level %d: err = %v, want ErrInvalidEnergy", lvl, err)
		}
	}
}
