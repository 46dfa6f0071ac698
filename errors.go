package nero

import "errors"

var (
	ErrEmptyMessage      = errors.New("nero: empty message")
	ErrMessageTooLong    = errors.New("nero: message too long")
	ErrTurnInProgress    = errors.New("nero: a reply is still being generated")
	ErrTurnAbandoned     = errors.New("nero: turn abandoned")
	ErrInvalidEnergy     = errors.New("nero: energy level must be between 1 and 5")
	ErrTaskNotFound      = errors.New("nero: task not found")
	ErrTaskClosed        = errors.New("nero: task is already closed")
	ErrNoSession         = errors.New("nero: no focus session active")
	ErrSessionActive     = errors.New("nero: a focus session is already active")
	ErrSpeechUnavailable = errors.New("nero: speech output unavailable")
	ErrNoPrompt          = errors.New("nero: no proactive prompt is shown")
	ErrNudgeNotFound     = errors.New("nero: nudge not found")
	ErrFeatureDisabled   = errors.New("nero: feature disabled")
)
