package nero

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLocalStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "local.json")
	ls, err := OpenLocalStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := ls.Set(keyAutoSpeak, true); err != nil {
		t.Fatal(err)
	}
	if err := ls.Set(keyDeviceID, "dev-123"); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenLocalStore(path)
	if err != nil {
		t.Fatal(err)
	}
	var speak bool
	var device string
	if !reopened.Get(keyAutoSpeak, &speak) || !speak {
		t.Error("autoSpeak not persisted")
	}
	if !reopened.Get(keyDeviceID, &device) || device != "dev-123" {
		t.Errorf("device = %q", device)
	}

	if diff := cmp.Diff([]string{keyAutoSpeak}, reopened.Keys("@nero/settings/")); diff != "" {
		t.Errorf("Keys (-want +got):\n%s", diff)
	}

	if err := reopened.Delete(keyAutoSpeak); err != nil {
		t.Fatal(err)
	}
	again, _ := OpenLocalStore(path)
	if again.Get(keyAutoSpeak, &speak) {
		t.Error("deleted key came back")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLocalStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	ls, err := OpenLocalStore(path)
	if err != nil {
		t.Fatalf("corrupt file should start empty, got %v", err)
	}
	if keys := ls.Keys(""); len(keys) != 0 {
		t.Errorf("keys = %v", keys)
	}
}

func TestLocalStoreCorruptValue(t *testing.T) {
	ls := NewMemoryLocalStore()
	ls.Set(keyTasks, "not a list")
	var tasks []Task
	if ls.Get(keyTasks, &tasks) {
		t.Error("mistyped value reported present")
	}
}

func TestLocalBackendMessageCap(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackend(NewMemoryLocalStore(), 3)
	for i := 0; i < 5; i++ {
		b.AppendMessage(ctx, "", Message{ID: string(rune('a' + i)), Role: RoleUser, Content: "x"})
	}
	msgs, _ := b.GetMessages(ctx, "", 0)
	if len(msgs) != 3 || msgs[0].ID != "c" {
		t.Errorf("messages = %+v", msgs)
	}
	msgs, _ = b.GetMessages(ctx, "", 2)
	if len(msgs) != 2 || msgs[1].ID != "e" {
		t.Errorf("limited messages = %+v", msgs)
	}
}

func TestLocalBackendTasksAndNudges(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackend(NewMemoryLocalStore(), 100)

	task := NewTask("clean my desk", 2, epoch)
	b.CreateTask(ctx, "", task)
	b.CreateTask(ctx, "", task)
	if open, _ := b.GetOpenTasks(ctx, ""); len(open) != 1 {
		t.Fatalf("duplicate create stored twice: %+v", open)
	}
	if err := b.CompleteTask(ctx, "", task.ID, epoch.Add(time.Hour), 4); err != nil {
		t.Fatal(err)
	}
	if err := b.CompleteTask(ctx, "", task.ID, epoch, 4); err == nil {
		t.Error("completed twice")
	}
	if done, _ := b.GetCompletedTasks(ctx, "", epoch); len(done) != 1 {
		t.Errorf("completed = %+v", done)
	}

	n, _ := NewNudge("stretch", epoch, "", "")
	b.CreateNudge(ctx, "", n)
	if pending, _ := b.GetPendingNudges(ctx, "", epoch.Add(-time.Minute)); len(pending) != 0 {
		t.Error("future nudge reported pending")
	}
	if pending, _ := b.GetPendingNudges(ctx, "", epoch); len(pending) != 1 {
		t.Error("due nudge not pending")
	}
	b.MarkNudgeSent(ctx, "", n.ID, epoch)
	if pending, _ := b.GetPendingNudges(ctx, "", epoch); len(pending) != 0 {
		t.Error("sent nudge still pending")
	}
	if err := b.DismissNudge(ctx, "", "missing", epoch); err != ErrNudgeNotFound {
		t.Errorf("dismiss missing = %v", err)
	}
}
