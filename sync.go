package nero

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SyncStore writes through to a remote Store and mirrors every write into a
// local Store. Any remote failure flips the status to offline and the local
// mirror answers reads; the next successful remote call flips it back.
// Remote errors never reach the caller.
//
// Writes the remote missed wait in an outbox and are replayed, in order,
// before the next remote call. Reads stay local until the outbox drains.
type SyncStore struct {
	remote Store
	local  Store
	box    *LocalStore // persists the outbox; nil keeps it in memory

	mu       sync.Mutex
	status   SyncStatus
	deviceID string
	remoteID string
	localID  string
	onStatus func(SyncStatus)

	qmu    sync.Mutex // serializes remote calls and guards outbox
	outbox []pendingWrite
}

// SyncOption configures a SyncStore.
type SyncOption func(*SyncStore)

// WithOutbox keeps unsent writes in ls so they survive a restart.
func WithOutbox(ls *LocalStore) SyncOption {
	return func(s *SyncStore) { s.box = ls }
}

// NewSyncStore pairs a remote store with a local mirror.
func NewSyncStore(remote, local Store, opts ...SyncOption) *SyncStore {
	s := &SyncStore{remote: remote, local: local, status: SyncOffline}
	for _, o := range opts {
		o(s)
	}
	if s.box != nil {
		s.box.Get(keyOutbox, &s.outbox)
	}
	return s
}

// Pending reports how many writes the remote has not seen yet.
func (s *SyncStore) Pending() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.outbox)
}

// OnStatus registers a callback invoked when the sync status changes.
func (s *SyncStore) OnStatus(fn func(SyncStatus)) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// Status reports synced, syncing or offline.
func (s *SyncStore) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SyncStore) setStatus(st SyncStatus) {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	fn := s.onStatus
	s.mu.Unlock()
	if changed && fn != nil {
		fn(st)
	}
}

// GetOrCreateUser resolves the identity on both sides. The returned ID is
// stable for the device even while offline.
func (s *SyncStore) GetOrCreateUser(ctx context.Context, deviceID string) (string, error) {
	localID, err := s.local.GetOrCreateUser(ctx, deviceID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.deviceID = deviceID
	s.localID = localID
	s.mu.Unlock()

	s.remoteUser(ctx)
	return localID, nil
}

// remoteUser lazily links the device on the remote side.
func (s *SyncStore) remoteUser(ctx context.Context) (string, bool) {
	s.mu.Lock()
	id, device := s.remoteID, s.deviceID
	s.mu.Unlock()
	if id != "" {
		return id, true
	}
	if device == "" {
		return "", false
	}

	s.setStatus(SyncSyncing)
	id, err := s.remote.GetOrCreateUser(ctx, device)
	if err != nil {
		s.fail("get user", err)
		return "", false
	}
	s.mu.Lock()
	s.remoteID = id
	s.mu.Unlock()
	s.setStatus(SyncSynced)
	return id, true
}

// tryRemote drains the outbox, then runs fn against the remote store and
// records the outcome.
func (s *SyncStore) tryRemote(ctx context.Context, op string, fn func(userID string) error) bool {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if !s.flushLocked(ctx) {
		return false
	}
	id, ok := s.remoteUser(ctx)
	if !ok {
		return false
	}
	s.setStatus(SyncSyncing)
	if err := fn(id); err != nil {
		s.fail(op, err)
		return false
	}
	s.setStatus(SyncSynced)
	return true
}

// outOfStep reports a remote that answered but lacks a row written before
// it was linked.
func outOfStep(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrNudgeNotFound) || errors.Is(err, ErrTaskClosed)
}

// flushLocked replays queued writes in order. It stops at the first remote
// failure and keeps the rest. Caller holds qmu.
func (s *SyncStore) flushLocked(ctx context.Context) bool {
	if len(s.outbox) == 0 {
		return true
	}
	id, ok := s.remoteUser(ctx)
	if !ok {
		return false
	}
	s.setStatus(SyncSyncing)
	sent := 0
	for _, w := range s.outbox {
		if err := w.apply(ctx, s.remote, id); err != nil {
			if !outOfStep(err) {
				s.fail(w.Op, err)
				break
			}
			log.Debug().Err(err).Str("op", w.Op).Msg("remote store out of step")
		}
		sent++
	}
	s.outbox = append([]pendingWrite(nil), s.outbox[sent:]...)
	s.saveOutboxLocked()
	if len(s.outbox) > 0 {
		return false
	}
	log.Debug().Int("writes", sent).Msg("outbox replayed")
	s.setStatus(SyncSynced)
	return true
}

// enqueueLocked adds w to the outbox. A profile save replaces any queued
// one. Caller holds qmu.
func (s *SyncStore) enqueueLocked(w pendingWrite) {
	if w.Op == opSaveProfile {
		kept := s.outbox[:0]
		for _, q := range s.outbox {
			if q.Op != opSaveProfile {
				kept = append(kept, q)
			}
		}
		s.outbox = kept
	}
	s.outbox = append(s.outbox, w)
}

func (s *SyncStore) saveOutboxLocked() {
	if s.box == nil {
		return
	}
	var err error
	if len(s.outbox) == 0 {
		err = s.box.Delete(keyOutbox)
	} else {
		err = s.box.Set(keyOutbox, s.outbox)
	}
	if err != nil {
		log.Warn().Err(err).Msg("could not persist outbox")
	}
}

func (s *SyncStore) fail(op string, err error) {
	log.Warn().Err(err).Str("op", op).Msg("remote store unavailable, working offline")
	s.setStatus(SyncOffline)
}

func (s *SyncStore) localUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// write applies a mutation locally, queues it for the remote and tries to
// send everything queued.
func (s *SyncStore) write(ctx context.Context, w pendingWrite) error {
	if err := w.apply(ctx, s.local, s.localUser()); err != nil {
		return err
	}
	s.qmu.Lock()
	defer s.qmu.Unlock()
	s.enqueueLocked(w)
	if !s.flushLocked(ctx) {
		s.saveOutboxLocked()
	}
	return nil
}

// Outbox operations.
const (
	opSaveProfile    = "save profile"
	opAppendMessage  = "append message"
	opClearMessages  = "clear messages"
	opLogEnergy      = "log energy"
	opCreateTask     = "create task"
	opCompleteTask   = "complete task"
	opAbandonTask    = "abandon task"
	opUpsertPattern  = "upsert pattern"
	opPatternSurface = "mark pattern surfaced"
	opCreateNudge    = "create nudge"
	opNudgeSent      = "mark nudge sent"
	opDismissNudge   = "dismiss nudge"
)

// pendingWrite is one Store mutation in a form that can be queued and
// persisted.
type pendingWrite struct {
	Op       string       `json:"op"`
	Profile  *UserProfile `json:"profile,omitempty"`
	Message  *Message     `json:"message,omitempty"`
	Energy   *EnergyEntry `json:"energy,omitempty"`
	Task     *Task        `json:"task,omitempty"`
	Pattern  *Pattern     `json:"pattern,omitempty"`
	Nudge    *Nudge       `json:"nudge,omitempty"`
	TargetID string       `json:"targetId,omitempty"`
	At       time.Time    `json:"at"`
	Level    int          `json:"level,omitempty"`
}

func (w pendingWrite) apply(ctx context.Context, st Store, userID string) error {
	switch w.Op {
	case opSaveProfile:
		return st.SaveProfile(ctx, userID, *w.Profile)
	case opAppendMessage:
		return st.AppendMessage(ctx, userID, *w.Message)
	case opClearMessages:
		return st.ClearMessages(ctx, userID)
	case opLogEnergy:
		return st.LogEnergy(ctx, userID, *w.Energy)
	case opCreateTask:
		return st.CreateTask(ctx, userID, *w.Task)
	case opCompleteTask:
		return st.CompleteTask(ctx, userID, w.TargetID, w.At, w.Level)
	case opAbandonTask:
		return st.AbandonTask(ctx, userID, w.TargetID)
	case opUpsertPattern:
		return st.UpsertPattern(ctx, userID, *w.Pattern)
	case opPatternSurface:
		return st.MarkPatternSurfaced(ctx, userID, w.TargetID, w.At)
	case opCreateNudge:
		return st.CreateNudge(ctx, userID, *w.Nudge)
	case opNudgeSent:
		return st.MarkNudgeSent(ctx, userID, w.TargetID, w.At)
	case opDismissNudge:
		return st.DismissNudge(ctx, userID, w.TargetID, w.At)
	}
	return fmt.Errorf("nero: unknown queued write %q", w.Op)
}

func (s *SyncStore) GetProfile(ctx context.Context, _ string) (*UserProfile, error) {
	var p *UserProfile
	if s.tryRemote(ctx, "get profile", func(id string) (err error) {
		p, err = s.remote.GetProfile(ctx, id)
		return err
	}) && p != nil {
		return p, nil
	}
	return s.local.GetProfile(ctx, s.localUser())
}

func (s *SyncStore) SaveProfile(ctx context.Context, _ string, p UserProfile) error {
	return s.write(ctx, pendingWrite{Op: opSaveProfile, Profile: &p})
}

func (s *SyncStore) GetMessages(ctx context.Context, _ string, limit int) ([]Message, error) {
	var msgs []Message
	if s.tryRemote(ctx, "get messages", func(id string) (err error) {
		msgs, err = s.remote.GetMessages(ctx, id, limit)
		return err
	}) && len(msgs) > 0 {
		return msgs, nil
	}
	return s.local.GetMessages(ctx, s.localUser(), limit)
}

func (s *SyncStore) AppendMessage(ctx context.Context, _ string, m Message) error {
	return s.write(ctx, pendingWrite{Op: opAppendMessage, Message: &m})
}

func (s *SyncStore) ClearMessages(ctx context.Context, _ string) error {
	return s.write(ctx, pendingWrite{Op: opClearMessages})
}

func (s *SyncStore) LogEnergy(ctx context.Context, _ string, e EnergyEntry) error {
	return s.write(ctx, pendingWrite{Op: opLogEnergy, Energy: &e})
}

func (s *SyncStore) GetRecentEnergy(ctx context.Context, _ string, since time.Time) ([]EnergyEntry, error) {
	var out []EnergyEntry
	if s.tryRemote(ctx, "get energy", func(id string) (err error) {
		out, err = s.remote.GetRecentEnergy(ctx, id, since)
		return err
	}) {
		return out, nil
	}
	return s.local.GetRecentEnergy(ctx, s.localUser(), since)
}

func (s *SyncStore) CreateTask(ctx context.Context, _ string, t Task) error {
	return s.write(ctx, pendingWrite{Op: opCreateTask, Task: &t})
}

func (s *SyncStore) CompleteTask(ctx context.Context, _ string, taskID string, at time.Time, energy int) error {
	return s.write(ctx, pendingWrite{Op: opCompleteTask, TargetID: taskID, At: at, Level: energy})
}

func (s *SyncStore) AbandonTask(ctx context.Context, _ string, taskID string) error {
	return s.write(ctx, pendingWrite{Op: opAbandonTask, TargetID: taskID})
}

func (s *SyncStore) GetOpenTasks(ctx context.Context, _ string) ([]Task, error) {
	var out []Task
	if s.tryRemote(ctx, "get open tasks", func(id string) (err error) {
		out, err = s.remote.GetOpenTasks(ctx, id)
		return err
	}) {
		return out, nil
	}
	return s.local.GetOpenTasks(ctx, s.localUser())
}

func (s *SyncStore) GetCompletedTasks(ctx context.Context, _ string, since time.Time) ([]Task, error) {
	var out []Task
	if s.tryRemote(ctx, "get completed tasks", func(id string) (err error) {
		out, err = s.remote.GetCompletedTasks(ctx, id, since)
		return err
	}) {
		return out, nil
	}
	return s.local.GetCompletedTasks(ctx, s.localUser(), since)
}

func (s *SyncStore) UpsertPattern(ctx context.Context, _ string, p Pattern) error {
	return s.write(ctx, pendingWrite{Op: opUpsertPattern, Pattern: &p})
}

func (s *SyncStore) GetPatterns(ctx context.Context, _ string) ([]Pattern, error) {
	var out []Pattern
	if s.tryRemote(ctx, "get patterns", func(id string) (err error) {
		out, err = s.remote.GetPatterns(ctx, id)
		return err
	}) {
		return out, nil
	}
	return s.local.GetPatterns(ctx, s.localUser())
}

func (s *SyncStore) MarkPatternSurfaced(ctx context.Context, _ string, patternID string, at time.Time) error {
	return s.write(ctx, pendingWrite{Op: opPatternSurface, TargetID: patternID, At: at})
}

func (s *SyncStore) CreateNudge(ctx context.Context, _ string, n Nudge) error {
	return s.write(ctx, pendingWrite{Op: opCreateNudge, Nudge: &n})
}

func (s *SyncStore) GetPendingNudges(ctx context.Context, _ string, now time.Time) ([]Nudge, error) {
	var out []Nudge
	if s.tryRemote(ctx, "get nudges", func(id string) (err error) {
		out, err = s.remote.GetPendingNudges(ctx, id, now)
		return err
	}) {
		return out, nil
	}
	return s.local.GetPendingNudges(ctx, s.localUser(), now)
}

func (s *SyncStore) MarkNudgeSent(ctx context.Context, _ string, nudgeID string, at time.Time) error {
	return s.write(ctx, pendingWrite{Op: opNudgeSent, TargetID: nudgeID, At: at})
}

func (s *SyncStore) DismissNudge(ctx context.Context, _ string, nudgeID string, at time.Time) error {
	return s.write(ctx, pendingWrite{Op: opDismissNudge, TargetID: nudgeID, At: at})
}

// Close closes both sides.
func (s *SyncStore) Close() error {
	rerr := s.remote.Close()
	lerr := s.local.Close()
	if rerr != nil {
		return rerr
	}
	return lerr
}
