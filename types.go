package nero

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleCompanion Role = "companion"
)

// TaskStatus is the lifecycle state of a Task. Completed and abandoned are terminal.
type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskCompleted TaskStatus = "completed"
	TaskAbandoned TaskStatus = "abandoned"
)

// TimeOfDay is the coarse clock bucket an energy entry or completion falls into.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// TimeOfDayFor buckets a local clock hour.
func TimeOfDayFor(t time.Time) TimeOfDay {
	h := t.Hour()
	switch {
	case h < 12:
		return Morning
	case h < 17:
		return Afternoon
	case h < 21:
		return Evening
	default:
		return Night
	}
}

// Message is one entry of the append-only conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsVoice   bool      `json:"isVoice,omitempty"`
	IsInsight bool      `json:"isInsight,omitempty"`
}

// Task is a tracked commitment.
type Task struct {
	ID                 string     `json:"id"`
	Description        string     `json:"description"`
	Status             TaskStatus `json:"status"`
	CreatedAt          time.Time  `json:"createdAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	EnergyAtCreation   int        `json:"energyAtCreation,omitempty"` // 0 = unknown
	EnergyAtCompletion int        `json:"energyAtCompletion,omitempty"`
}

// AgeDays is the fractional number of days since the task was created.
func (t Task) AgeDays(now time.Time) float64 {
	return now.Sub(t.CreatedAt).Hours() / 24.0
}

// EnergyEntry is a single self-reported energy check-in.
type EnergyEntry struct {
	Level     int       `json:"level"` // 1–5
	Mood      string    `json:"mood"`
	TimeOfDay TimeOfDay `json:"timeOfDay"`
	DayOfWeek int       `json:"dayOfWeek"` // 0 = Sunday
	Timestamp time.Time `json:"timestamp"`
}

// NewEnergyEntry stamps an entry with the time-of-day bucket in effect at t.
// The bucket is never recomputed afterwards.
func NewEnergyEntry(level int, mood string, t time.Time) (EnergyEntry, error) {
	if level < 1 || level > 5 {
		return EnergyEntry{}, ErrInvalidEnergy
	}
	return EnergyEntry{
		Level:     level,
		Mood:      mood,
		TimeOfDay: TimeOfDayFor(t),
		DayOfWeek: int(t.Weekday()),
		Timestamp: t,
	}, nil
}

// PatternType groups inferred patterns by the evidence that produced them.
type PatternType string

const (
	PatternEnergy     PatternType = "energy"
	PatternDay        PatternType = "day"
	PatternCompletion PatternType = "completion"
)

// Pattern is an inferred, confidence-scored statement about the user.
type Pattern struct {
	ID             string      `json:"id"`
	Type           PatternType `json:"type"`
	Description    string      `json:"description"`
	Confidence     float64     `json:"confidence"` // 0.0 – 0.95
	Evidence       int         `json:"evidence"`
	TimeOfDay      TimeOfDay   `json:"timeOfDay,omitempty"`
	Positive       bool        `json:"positive,omitempty"` // higher energy / most productive
	SurfacedToUser bool        `json:"surfacedToUser"`
	LastSurfaced   *time.Time  `json:"lastSurfaced,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Nudge is a user-scheduled proactive message.
type Nudge struct {
	ID           string     `json:"id"`
	Message      string     `json:"message"`
	ScheduledFor time.Time  `json:"scheduledFor"`
	Type         string     `json:"type"`
	Recurrence   string     `json:"recurrence,omitempty"` // cron expression, optional
	SentAt       *time.Time `json:"sentAt,omitempty"`
	DismissedAt  *time.Time `json:"dismissedAt,omitempty"`
}

// Pending reports whether the nudge is due and has not been surfaced or dismissed.
func (n Nudge) Pending(now time.Time) bool {
	return !now.Before(n.ScheduledFor) && n.SentAt == nil && n.DismissedAt == nil
}

// SyncStatus is the tri-state durable sync indicator.
type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncSyncing SyncStatus = "syncing"
	SyncOffline SyncStatus = "offline"
)

// Features toggles optional subsystems. The zero value enables everything.
type Features struct {
	DisablePatterns     bool
	DisableInsights     bool
	DisableBodyDouble   bool
	DisableNudges       bool
	DisableEnergyChecks bool
}

// Config holds Companion initialization parameters.
type Config struct {
	DBDriver  string // "sqlite" (default) or "mysql"
	DBPath    string // SQLite file or MySQL DSN (default: ./data/nero.db)
	LocalPath string // Local JSON store (default: ./data/local.json)

	Provider     string // "gemini", "openai" or "" (auto from keys)
	GeminiAPIKey string
	OpenAIAPIKey string
	OpenAIURL    string
	Model        string

	Persona          string
	AutoSpeak        bool
	MaxMessageLength int           // Default 2000
	ContextWindow    int           // Messages sent to the LLM (default 20)
	LocalMessageCap  int           // Messages kept in the local store (default 100)
	PatternInterval  time.Duration // Default 10m
	PollInterval     time.Duration // Default 60s
	EnergyCheckAfter time.Duration // Default 4h
	InsightCooldown  time.Duration // Default 10m
	CheckInMin       time.Duration // Default 8m
	CheckInMax       time.Duration // Default 15m
	Seed             uint64        // 0 = seeded from the clock
	Features         Features

	// Collaborators. Nil values are resolved from the fields above.
	Completer Completer
	Speaker   Speaker
	Store     Store
	Local     *LocalStore
	Clock     func() time.Time
	OnPrompt  func(Prompt)
}

// ApplyDefaults fills zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.DBDriver == "" {
		c.DBDriver = "sqlite"
	}
	if c.DBPath == "" {
		c.DBPath = "./data/nero.db"
	}
	if c.LocalPath == "" {
		c.LocalPath = "./data/local.json"
	}
	if c.Persona == "" {
		c.Persona = DefaultPersona
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = 2000
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 20
	}
	if c.LocalMessageCap == 0 {
		c.LocalMessageCap = 100
	}
	if c.PatternInterval == 0 {
		c.PatternInterval = 10 * time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.EnergyCheckAfter == 0 {
		c.EnergyCheckAfter = 4 * time.Hour
	}
	if c.InsightCooldown == 0 {
		c.InsightCooldown = 10 * time.Minute
	}
	if c.CheckInMin == 0 {
		c.CheckInMin = 8 * time.Minute
	}
	if c.CheckInMax == 0 {
		c.CheckInMax = 15 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}
