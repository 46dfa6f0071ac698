package nero

import (
	"context"
	"time"
)

// ChatRole is the speaker of a message in a completion request.
type ChatRole string

const (
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of the bounded conversation window.
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// CompletionRequest is a single LLM call: persona plus memory context, and
// the most recent messages oldest first.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
}

// Completer generates a companion reply.
// Built-in: GeminiCompleter, OpenAICompleter. A nil Completer means the
// fallback responder answers every turn.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Speaker turns reply text into audio output.
// Built-in: OpenAISpeaker. Implementations return ErrSpeechUnavailable when
// the platform has no audio path.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Store is the durable relational store. Every method is keyed by the user
// ID returned from GetOrCreateUser.
// Built-in: SQLStore (sqlite, mysql), SyncStore (remote with local mirror).
type Store interface {
	GetOrCreateUser(ctx context.Context, deviceID string) (string, error)

	// GetProfile returns nil with no error when the user has no profile yet.
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	SaveProfile(ctx context.Context, userID string, p UserProfile) error

	// GetMessages returns up to limit of the newest messages, oldest first.
	GetMessages(ctx context.Context, userID string, limit int) ([]Message, error)
	AppendMessage(ctx context.Context, userID string, m Message) error
	ClearMessages(ctx context.Context, userID string) error

	LogEnergy(ctx context.Context, userID string, e EnergyEntry) error
	GetRecentEnergy(ctx context.Context, userID string, since time.Time) ([]EnergyEntry, error)

	CreateTask(ctx context.Context, userID string, t Task) error
	CompleteTask(ctx context.Context, userID, taskID string, at time.Time, energy int) error
	AbandonTask(ctx context.Context, userID, taskID string) error
	// GetOpenTasks returns open tasks oldest first.
	GetOpenTasks(ctx context.Context, userID string) ([]Task, error)
	GetCompletedTasks(ctx context.Context, userID string, since time.Time) ([]Task, error)

	UpsertPattern(ctx context.Context, userID string, p Pattern) error
	GetPatterns(ctx context.Context, userID string) ([]Pattern, error)
	MarkPatternSurfaced(ctx context.Context, userID, patternID string, at time.Time) error

	CreateNudge(ctx context.Context, userID string, n Nudge) error
	GetPendingNudges(ctx context.Context, userID string, now time.Time) ([]Nudge, error)
	MarkNudgeSent(ctx context.Context, userID, nudgeID string, at time.Time) error
	DismissNudge(ctx context.Context, userID, nudgeID string, at time.Time) error

	Close() error
}
