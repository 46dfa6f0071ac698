package nero

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Companion is the conversation engine. It owns the in-memory view of one
// device's profile, conversation, tasks, energy log and patterns, and keeps
// the store in step with it.
type Companion struct {
	cfg       Config
	store     Store
	mirror    *SyncStore // nil when the store is not mirrored
	local     *LocalStore
	completer Completer
	speaker   Speaker
	fallback  *FallbackResponder
	scheduler *Scheduler
	insights  *InsightSelector
	clock     func() time.Time

	mu            sync.Mutex
	rng           *rand.Rand
	deviceID      string
	userID        string
	profile       UserProfile
	lastSeen      time.Time // previous session
	messages      []Message
	openTasks     []Task
	completed     []Task // trailing completion window
	energy        []EnergyEntry
	patterns      []Pattern
	session       *BodyDoubleSession
	settingsOpen  bool
	autoSpeak     bool
	speechNoticed bool
	turnCancel    context.CancelFunc
	abandoned     bool

	turn sync.Mutex // held for the length of one Send

	cancelPatterns context.CancelFunc
	cancelPoll     context.CancelFunc
	workers        sync.WaitGroup
}

// Init opens the stores, loads the device's state, starts a new session and
// launches the background workers.
func Init(ctx context.Context, cfg Config) (*Companion, error) {
	cfg.ApplyDefaults()

	local := cfg.Local
	if local == nil {
		var err error
		if local, err = OpenLocalStore(cfg.LocalPath); err != nil {
			return nil, err
		}
	}

	c := &Companion{
		cfg:       cfg,
		local:     local,
		speaker:   cfg.Speaker,
		scheduler: NewScheduler(cfg.EnergyCheckAfter),
		insights:  NewInsightSelector(cfg.InsightCooldown),
		clock:     cfg.Clock,
		autoSpeak: cfg.AutoSpeak,
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(cfg.Clock().UnixNano())
	}
	c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	c.fallback = NewFallbackResponder(c.rng)

	c.store, c.mirror = resolveStore(cfg, local)
	c.completer = resolveCompleter(cfg)

	if err := c.load(ctx); err != nil {
		c.store.Close()
		return nil, err
	}

	if !cfg.Features.DisablePatterns {
		c.runPatternAnalysis(ctx)
		c.startPatternWorker(cfg.PatternInterval)
	}
	c.startPollWorker(cfg.PollInterval)

	log.Info().
		Str("device", c.deviceID).
		Str("db", cfg.DBDriver).
		Bool("llm", c.completer != nil).
		Int("conversations", c.profile.Facts.TotalConversations).
		Msg("companion ready")

	return c, nil
}

// resolveStore builds the durable store. The local backend always mirrors
// writes; when the relational store cannot be opened the companion runs on
// the local backend alone.
func resolveStore(cfg Config, local *LocalStore) (Store, *SyncStore) {
	mirror := NewLocalBackend(local, cfg.LocalMessageCap)

	remote := cfg.Store
	if remote == nil {
		sqlStore, err := OpenStore(cfg.DBDriver, cfg.DBPath)
		if err != nil {
			log.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("durable store unavailable, using local store only")
			return mirror, nil
		}
		remote = sqlStore
	}
	s := NewSyncStore(remote, mirror, WithOutbox(local))
	return s, s
}

func resolveCompleter(cfg Config) Completer {
	if cfg.Completer != nil {
		return cfg.Completer
	}
	provider := cfg.Provider
	if provider == "" {
		switch {
		case cfg.GeminiAPIKey != "":
			provider = "gemini"
		case cfg.OpenAIAPIKey != "":
			provider = "openai"
		}
	}
	switch provider {
	case "gemini":
		if cfg.GeminiAPIKey != "" {
			return NewGeminiCompleter(cfg.GeminiAPIKey, cfg.Model)
		}
	case "openai":
		if cfg.OpenAIAPIKey != "" {
			return NewOpenAICompleter(cfg.OpenAIAPIKey, WithCompleterModel(cfg.Model), WithCompleterBaseURL(cfg.OpenAIURL))
		}
	}
	return nil
}

// load restores state from the stores and starts the session.
func (c *Companion) load(ctx context.Context) error {
	now := c.clock()

	if !c.local.Get(keyDeviceID, &c.deviceID) || c.deviceID == "" {
		c.deviceID = uuid.NewString()
		if err := c.local.Set(keyDeviceID, c.deviceID); err != nil {
			log.Warn().Err(err).Msg("could not persist device id")
		}
	}

	userID, err := c.store.GetOrCreateUser(ctx, c.deviceID)
	if err != nil {
		return fmt.Errorf("nero: resolve user: %w", err)
	}
	c.userID = userID

	first := false
	p, err := c.store.GetProfile(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("could not load profile, starting fresh")
	}
	if p == nil {
		c.profile = NewProfile(now)
		first = true
	} else {
		c.profile = *p
		c.lastSeen = p.Facts.LastSeen
		c.profile.StartSession(now)
	}
	c.profile.Facts.Timezone = now.Location().String()
	c.persistProfile(ctx)

	if c.messages, err = c.store.GetMessages(ctx, userID, c.cfg.LocalMessageCap); err != nil {
		log.Warn().Err(err).Msg("could not load messages")
	}
	c.reloadTasks(ctx, now)
	if c.energy, err = c.store.GetRecentEnergy(ctx, userID, now.Add(-energyWindow)); err != nil {
		log.Warn().Err(err).Msg("could not load energy log")
	}
	if c.patterns, err = c.store.GetPatterns(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("could not load patterns")
	}

	var autoSpeak bool
	if c.local.Get(keyAutoSpeak, &autoSpeak) {
		c.autoSpeak = autoSpeak
	}
	var lastPrompt time.Time
	if c.local.Get(keyLastEnergyPrompt, &lastPrompt) {
		c.scheduler.SetLastEnergyPrompt(lastPrompt)
	}

	if first && len(c.messages) == 0 {
		c.appendMessage(ctx, c.newMessage(RoleCompanion, introMessage, now))
	}
	return nil
}

func (c *Companion) reloadTasks(ctx context.Context, now time.Time) {
	var err error
	if c.openTasks, err = c.store.GetOpenTasks(ctx, c.userID); err != nil {
		log.Warn().Err(err).Msg("could not load open tasks")
	}
	if c.completed, err = c.store.GetCompletedTasks(ctx, c.userID, now.Add(-completionWindow)); err != nil {
		log.Warn().Err(err).Msg("could not load completed tasks")
	}
}

// Close stops the background workers and closes the store.
func (c *Companion) Close() error {
	if c.cancelPatterns != nil {
		c.cancelPatterns()
	}
	if c.cancelPoll != nil {
		c.cancelPoll()
	}
	c.workers.Wait()
	return c.store.Close()
}

// Reset forgets everything known about the user: a zero-state profile and an
// empty conversation. Tasks, energy history and patterns are kept.
func (c *Companion) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.profile = NewProfile(c.clock())
	c.lastSeen = time.Time{}
	c.messages = nil
	c.persistProfile(ctx)
	if err := c.store.ClearMessages(ctx, c.userID); err != nil {
		log.Warn().Err(err).Msg("could not clear messages")
	}
	log.Info().Msg("memory reset")
	return nil
}

// Status is a snapshot of the companion for display.
type Status struct {
	DeviceID     string
	Profile      UserProfile
	Energy       *EnergyEntry
	OpenTasks    []Task
	Patterns     []Pattern
	Session      *BodyDoubleSession
	Sync         SyncStatus
	Unsent       int // writes waiting for the remote store
	LLM          bool
	AutoSpeak    bool
	LastSeen     time.Time
	MessagesKept int
}

// Status returns a copy of the current state.
func (c *Companion) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		DeviceID:     c.deviceID,
		Profile:      c.profile,
		Energy:       c.currentEnergyLocked(c.clock()),
		OpenTasks:    append([]Task(nil), c.openTasks...),
		Patterns:     append([]Pattern(nil), c.patterns...),
		Sync:         SyncOffline,
		LLM:          c.completer != nil,
		AutoSpeak:    c.autoSpeak,
		LastSeen:     c.lastSeen,
		MessagesKept: len(c.messages),
	}
	if c.mirror != nil {
		st.Sync = c.mirror.Status()
		st.Unsent = c.mirror.Pending()
	}
	if c.session != nil {
		s := *c.session
		st.Session = &s
	}
	return st
}

// Messages returns the conversation held in memory, oldest first.
func (c *Companion) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// SetAutoSpeak toggles speaking replies to voice input, and persists it.
func (c *Companion) SetAutoSpeak(on bool) error {
	c.mu.Lock()
	c.autoSpeak = on
	c.mu.Unlock()
	return c.local.Set(keyAutoSpeak, on)
}

// SetSettingsOpen records whether the settings view is showing; energy
// checks are held back while it is.
func (c *Companion) SetSettingsOpen(open bool) {
	c.mu.Lock()
	c.settingsOpen = open
	c.mu.Unlock()
}

// --- helpers shared by the turn pipeline and actions ---

func (c *Companion) newMessage(role Role, content string, now time.Time) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content, Timestamp: now}
}

// appendMessage adds m to the in-memory log (capped) and persists it.
// Caller holds mu.
func (c *Companion) appendMessage(ctx context.Context, m Message) {
	c.messages = append(c.messages, m)
	if n := c.cfg.LocalMessageCap; len(c.messages) > n {
		c.messages = c.messages[len(c.messages)-n:]
	}
	if err := c.store.AppendMessage(ctx, c.userID, m); err != nil {
		log.Warn().Err(err).Msg("could not persist message")
	}
}

// persistProfile saves the profile. Caller holds mu.
func (c *Companion) persistProfile(ctx context.Context) {
	if err := c.store.SaveProfile(ctx, c.userID, c.profile); err != nil {
		log.Warn().Err(err).Msg("could not persist profile")
	}
}

// currentEnergyLocked returns the latest energy entry while it is still
// considered current, nil otherwise. Caller holds mu.
func (c *Companion) currentEnergyLocked(now time.Time) *EnergyEntry {
	if len(c.energy) == 0 {
		return nil
	}
	e := c.energy[len(c.energy)-1]
	if now.Sub(e.Timestamp) > c.cfg.EnergyCheckAfter {
		return nil
	}
	return &e
}

// energyLevelLocked is the current level, 0 when unknown. Caller holds mu.
func (c *Companion) energyLevelLocked(now time.Time) int {
	if e := c.currentEnergyLocked(now); e != nil {
		return e.Level
	}
	return 0
}

// lastEnergyLevelLocked is the most recent level ever logged in the window,
// 0 when none. Caller holds mu.
func (c *Companion) lastEnergyLevelLocked() int {
	if len(c.energy) == 0 {
		return 0
	}
	return c.energy[len(c.energy)-1].Level
}

// completeTaskLocked closes the open task at index i. Caller holds mu.
func (c *Companion) completeTaskLocked(ctx context.Context, i int, now time.Time, energy int) (Task, error) {
	t := c.openTasks[i]
	if err := t.Complete(now, energy); err != nil {
		return Task{}, err
	}
	c.openTasks = removeTask(c.openTasks, i)
	c.completed = append(c.completed, t)
	c.profile.RemoveCommitment(t.Description)
	if err := c.store.CompleteTask(ctx, c.userID, t.ID, now, energy); err != nil {
		log.Warn().Err(err).Str("task", t.ID).Msg("could not persist task completion")
	}
	log.Debug().Str("task", t.Description).Msg("task completed")
	return t, nil
}
