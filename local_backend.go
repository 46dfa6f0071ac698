package nero

import (
	"context"
	"sync"
	"time"
)

const localEnergyCap = 500

// localBackend serves the Store operations from the device's LocalStore.
// It holds a single identity, so userID arguments are ignored.
type localBackend struct {
	mu         sync.Mutex
	ls         *LocalStore
	messageCap int
}

// NewLocalBackend returns a Store kept entirely in ls. messageCap bounds the
// persisted conversation (oldest dropped).
func NewLocalBackend(ls *LocalStore, messageCap int) Store {
	return &localBackend{ls: ls, messageCap: messageCap}
}

func (b *localBackend) GetOrCreateUser(_ context.Context, deviceID string) (string, error) {
	return "local:" + deviceID, nil
}

func (b *localBackend) GetProfile(_ context.Context, _ string) (*UserProfile, error) {
	var p UserProfile
	if !b.ls.Get(keyProfile, &p) {
		return nil, nil
	}
	return &p, nil
}

func (b *localBackend) SaveProfile(_ context.Context, _ string, p UserProfile) error {
	return b.ls.Set(keyProfile, p)
}

func (b *localBackend) GetMessages(_ context.Context, _ string, limit int) ([]Message, error) {
	var msgs []Message
	b.ls.Get(keyMessages, &msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (b *localBackend) AppendMessage(_ context.Context, _ string, m Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var msgs []Message
	b.ls.Get(keyMessages, &msgs)
	msgs = append(msgs, m)
	if b.messageCap > 0 && len(msgs) > b.messageCap {
		msgs = msgs[len(msgs)-b.messageCap:]
	}
	return b.ls.Set(keyMessages, msgs)
}

func (b *localBackend) ClearMessages(_ context.Context, _ string) error {
	return b.ls.Delete(keyMessages)
}

func (b *localBackend) LogEnergy(_ context.Context, _ string, e EnergyEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var entries []EnergyEntry
	b.ls.Get(keyEnergy, &entries)
	entries = append(entries, e)
	if len(entries) > localEnergyCap {
		entries = entries[len(entries)-localEnergyCap:]
	}
	return b.ls.Set(keyEnergy, entries)
}

func (b *localBackend) GetRecentEnergy(_ context.Context, _ string, since time.Time) ([]EnergyEntry, error) {
	var entries, out []EnergyEntry
	b.ls.Get(keyEnergy, &entries)
	for _, e := range entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *localBackend) tasks() []Task {
	var tasks []Task
	b.ls.Get(keyTasks, &tasks)
	return tasks
}

func (b *localBackend) CreateTask(_ context.Context, _ string, t Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tasks := b.tasks()
	if findTask(tasks, t.ID) >= 0 {
		return nil
	}
	return b.ls.Set(keyTasks, append(tasks, t))
}

func (b *localBackend) CompleteTask(_ context.Context, _ string, taskID string, at time.Time, energy int) error {
	return b.updateTask(taskID, func(t *Task) error { return t.Complete(at, energy) })
}

func (b *localBackend) AbandonTask(_ context.Context, _ string, taskID string) error {
	return b.updateTask(taskID, (*Task).Abandon)
}

func (b *localBackend) updateTask(id string, fn func(*Task) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tasks := b.tasks()
	i := findTask(tasks, id)
	if i < 0 {
		return ErrTaskNotFound
	}
	if err := fn(&tasks[i]); err != nil {
		return err
	}
	return b.ls.Set(keyTasks, tasks)
}

func (b *localBackend) GetOpenTasks(_ context.Context, _ string) ([]Task, error) {
	var out []Task
	for _, t := range b.tasks() {
		if t.Status == TaskOpen {
			out = append(out, t)
		}
	}
	return out, nil
}

func (b *localBackend) GetCompletedTasks(_ context.Context, _ string, since time.Time) ([]Task, error) {
	var out []Task
	for _, t := range b.tasks() {
		if t.Status == TaskCompleted && t.CompletedAt != nil && !t.CompletedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (b *localBackend) patterns() []Pattern {
	var ps []Pattern
	b.ls.Get(keyPatterns, &ps)
	return ps
}

func (b *localBackend) UpsertPattern(_ context.Context, _ string, p Pattern) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps := b.patterns()
	for i := range ps {
		if ps[i].ID == p.ID {
			ps[i] = p
			return b.ls.Set(keyPatterns, ps)
		}
	}
	return b.ls.Set(keyPatterns, append(ps, p))
}

func (b *localBackend) GetPatterns(_ context.Context, _ string) ([]Pattern, error) {
	return b.patterns(), nil
}

func (b *localBackend) MarkPatternSurfaced(_ context.Context, _ string, patternID string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps := b.patterns()
	for i := range ps {
		if ps[i].ID == patternID {
			ps[i].SurfacedToUser = true
			ps[i].LastSurfaced = &at
			return b.ls.Set(keyPatterns, ps)
		}
	}
	return nil
}

func (b *localBackend) nudges() []Nudge {
	var ns []Nudge
	b.ls.Get(keyNudges, &ns)
	return ns
}

func (b *localBackend) CreateNudge(_ context.Context, _ string, n Nudge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns := b.nudges()
	for _, existing := range ns {
		if existing.ID == n.ID {
			return nil
		}
	}
	return b.ls.Set(keyNudges, append(ns, n))
}

func (b *localBackend) GetPendingNudges(_ context.Context, _ string, now time.Time) ([]Nudge, error) {
	var out []Nudge
	for _, n := range b.nudges() {
		if n.Pending(now) {
			out = append(out, n)
		}
	}
	sortNudges(out)
	return out, nil
}

func (b *localBackend) MarkNudgeSent(_ context.Context, _ string, nudgeID string, at time.Time) error {
	return b.updateNudge(nudgeID, func(n *Nudge) { n.SentAt = &at })
}

func (b *localBackend) DismissNudge(_ context.Context, _ string, nudgeID string, at time.Time) error {
	return b.updateNudge(nudgeID, func(n *Nudge) { n.DismissedAt = &at })
}

func (b *localBackend) updateNudge(id string, fn func(*Nudge)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns := b.nudges()
	for i := range ns {
		if ns[i].ID == id {
			fn(&ns[i])
			return b.ls.Set(keyNudges, ns)
		}
	}
	return ErrNudgeNotFound
}

func (b *localBackend) Close() error { return nil }
