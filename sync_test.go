package nero

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errRemoteDown = errors.New("connection refused")

// flakyStore fails a subset of calls while down is set.
type flakyStore struct {
	Store
	down atomic.Bool
}

func (f *flakyStore) GetOrCreateUser(ctx context.Context, deviceID string) (string, error) {
	if f.down.Load() {
		return "", errRemoteDown
	}
	return f.Store.GetOrCreateUser(ctx, deviceID)
}

func (f *flakyStore) AppendMessage(ctx context.Context, userID string, m Message) error {
	if f.down.Load() {
		return errRemoteDown
	}
	return f.Store.AppendMessage(ctx, userID, m)
}

func (f *flakyStore) GetMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	if f.down.Load() {
		return nil, errRemoteDown
	}
	return f.Store.GetMessages(ctx, userID, limit)
}

func (f *flakyStore) CreateTask(ctx context.Context, userID string, t Task) error {
	if f.down.Load() {
		return errRemoteDown
	}
	return f.Store.CreateTask(ctx, userID, t)
}

func (f *flakyStore) GetOpenTasks(ctx context.Context, userID string) ([]Task, error) {
	if f.down.Load() {
		return nil, errRemoteDown
	}
	return f.Store.GetOpenTasks(ctx, userID)
}

func TestSyncStoreOfflineThenRecover(t *testing.T) {
	ctx := context.Background()
	remote := &flakyStore{Store: testStore(t)}
	remote.down.Store(true)
	s := NewSyncStore(remote, NewLocalBackend(NewMemoryLocalStore(), 100))

	var (
		mu      sync.Mutex
		history []SyncStatus
	)
	s.OnStatus(func(st SyncStatus) {
		mu.Lock()
		history = append(history, st)
		mu.Unlock()
	})

	id, err := s.GetOrCreateUser(ctx, "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "local:dev-1" {
		t.Errorf("user id = %q", id)
	}
	if s.Status() != SyncOffline {
		t.Errorf("status = %s, want offline", s.Status())
	}

	msg := Message{ID: "m1", Role: RoleUser, Content: "hello", Timestamp: epoch}
	if err := s.AppendMessage(ctx, id, msg); err != nil {
		t.Fatalf("remote failure leaked to caller: %v", err)
	}
	got, err := s.GetMessages(ctx, id, 10)
	if err != nil || len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("offline read = %+v, %v", got, err)
	}

	offlineTask := NewTask("written offline", 0, epoch)
	if err := s.CreateTask(ctx, id, offlineTask); err != nil {
		t.Fatal(err)
	}

	remote.down.Store(false)
	task := NewTask("call mom", 0, epoch)
	if err := s.CreateTask(ctx, id, task); err != nil {
		t.Fatal(err)
	}
	if s.Status() != SyncSynced {
		t.Errorf("status after recovery = %s", s.Status())
	}

	if n := s.Pending(); n != 0 {
		t.Errorf("%d writes still queued after recovery", n)
	}
	open, err := s.GetOpenTasks(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 {
		t.Fatalf("remote open tasks = %+v, want the offline task replayed", open)
	}
	msgs, err := s.GetMessages(ctx, id, 10)
	if err != nil || len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("replayed messages = %+v, %v", msgs, err)
	}

	// A row only the local mirror has: the remote answers not-found and the
	// status stays synced.
	mirrorOnly := NewTask("mirror only", 0, epoch)
	if err := s.local.CreateTask(ctx, id, mirrorOnly); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteTask(ctx, id, mirrorOnly.ID, epoch.Add(time.Hour), 3); err != nil {
		t.Fatalf("out-of-step completion = %v", err)
	}
	if s.Status() != SyncSynced || s.Pending() != 0 {
		t.Errorf("missing remote row: status %s, %d queued", s.Status(), s.Pending())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(history) == 0 || history[len(history)-1] != SyncSynced {
		t.Errorf("status history = %v", history)
	}
	sawOffline := false
	for _, st := range history {
		if st == SyncOffline {
			sawOffline = true
		}
	}
	if !sawOffline {
		t.Errorf("offline never reported: %v", history)
	}
}

func TestSyncStoreLocalErrorsSurface(t *testing.T) {
	ctx := context.Background()
	s := NewSyncStore(&flakyStore{Store: testStore(t)}, NewLocalBackend(NewMemoryLocalStore(), 100))
	id, _ := s.GetOrCreateUser(ctx, "dev")
	if err := s.CompleteTask(ctx, id, "nope", epoch, 0); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("CompleteTask = %v, want ErrTaskNotFound from the local mirror", err)
	}
}

func TestSyncStoreReadsLocalUntilOutboxDrains(t *testing.T) {
	ctx := context.Background()
	remote := &flakyStore{Store: testStore(t)}
	s := NewSyncStore(remote, NewLocalBackend(NewMemoryLocalStore(), 100))
	id, _ := s.GetOrCreateUser(ctx, "dev")
	if s.Status() != SyncSynced {
		t.Fatalf("status = %s", s.Status())
	}

	remote.down.Store(true)
	task := NewTask("call the dentist", 0, epoch)
	if err := s.CreateTask(ctx, id, task); err != nil {
		t.Fatal(err)
	}
	if s.Status() != SyncOffline || s.Pending() != 1 {
		t.Fatalf("after failed write: status %s, %d queued", s.Status(), s.Pending())
	}
	open, _ := s.GetOpenTasks(ctx, id)
	if len(open) != 1 || open[0].ID != task.ID {
		t.Errorf("offline read = %+v", open)
	}

	remote.down.Store(false)
	open, err := s.GetOpenTasks(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != task.ID {
		t.Errorf("read after recovery = %+v", open)
	}
	if s.Status() != SyncSynced {
		t.Errorf("status = %s", s.Status())
	}
}

func TestSyncStoreOutboxSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	remote := &flakyStore{Store: testStore(t)}
	remote.down.Store(true)
	ls := NewMemoryLocalStore()

	first := NewSyncStore(remote, NewLocalBackend(ls, 100), WithOutbox(ls))
	id, _ := first.GetOrCreateUser(ctx, "dev")
	task := NewTask("renew the license", 0, epoch)
	if err := first.CreateTask(ctx, id, task); err != nil {
		t.Fatal(err)
	}
	p := NewProfile(epoch)
	p.Facts.Name = "Riley"
	if err := first.SaveProfile(ctx, id, p); err != nil {
		t.Fatal(err)
	}
	p.Facts.TotalConversations = 2
	if err := first.SaveProfile(ctx, id, p); err != nil {
		t.Fatal(err)
	}
	if n := first.Pending(); n != 2 {
		t.Errorf("queued = %d, want task plus one profile save", n)
	}

	remote.down.Store(false)
	second := NewSyncStore(remote, NewLocalBackend(ls, 100), WithOutbox(ls))
	id, _ = second.GetOrCreateUser(ctx, "dev")
	if n := second.Pending(); n != 2 {
		t.Fatalf("reloaded outbox has %d writes", n)
	}

	open, err := second.GetOpenTasks(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].Description != "renew the license" {
		t.Errorf("open tasks = %+v", open)
	}
	got, err := second.GetProfile(ctx, id)
	if err != nil || got == nil || got.Facts.Name != "Riley" || got.Facts.TotalConversations != 2 {
		t.Errorf("profile = %+v, %v", got, err)
	}
	if second.Pending() != 0 || len(ls.Keys(keyOutbox)) != 0 {
		t.Error("outbox not cleared after replay")
	}
}
