package nero

import (
	"sync"
	"time"
)

// PromptKind is one of the four proactive interruptions, in precedence order.
type PromptKind string

const (
	PromptCheckIn     PromptKind = "body_double_checkin"
	PromptNudge       PromptKind = "nudge"
	PromptSuggestion  PromptKind = "task_suggestion"
	PromptEnergyCheck PromptKind = "energy_check"
)

// PromptState is the per-kind lifecycle: idle → pending → shown → dismissed|actioned.
type PromptState string

const (
	StateIdle      PromptState = "idle"
	StatePending   PromptState = "pending"
	StateShown     PromptState = "shown"
	StateDismissed PromptState = "dismissed"
	StateActioned  PromptState = "actioned"
)

// Prompt is a proactive interruption selected for display.
type Prompt struct {
	Kind       PromptKind
	Text       string
	Nudge      *Nudge
	Suggestion *Suggestion
	ShownAt    time.Time
}

// Snapshot is the companion state the scheduler evaluates on each poll.
type Snapshot struct {
	Now            time.Time
	Session        *BodyDoubleSession
	PendingNudges  []Nudge
	LastEnergyLog  time.Time // zero when never logged
	SettingsOpen   bool
	EnergyChecksOn bool
}

// Scheduler arbitrates proactive prompts. At most one prompt is shown at a
// time system-wide; a shown prompt blocks every other kind until it is
// resolved.
type Scheduler struct {
	mu               sync.Mutex
	energyCheckAfter time.Duration
	states           map[PromptKind]PromptState
	shown            *Prompt
	suggestion       *Suggestion
	suggestionFresh  bool // offered since the last evaluation
	lastEnergyPrompt time.Time
}

// NewScheduler creates a scheduler that asks for energy after energyCheckAfter.
func NewScheduler(energyCheckAfter time.Duration) *Scheduler {
	return &Scheduler{
		energyCheckAfter: energyCheckAfter,
		states: map[PromptKind]PromptState{
			PromptCheckIn:     StateIdle,
			PromptNudge:       StateIdle,
			PromptSuggestion:  StateIdle,
			PromptEnergyCheck: StateIdle,
		},
	}
}

// OfferSuggestion queues a task suggestion. Called only right after an
// energy check-in completes. The suggestion gets the next evaluation only;
// if another prompt wins that one, it is dropped.
func (s *Scheduler) OfferSuggestion(sg *Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestion = sg
	s.suggestionFresh = sg != nil
	if sg != nil && s.states[PromptSuggestion] != StateShown {
		s.states[PromptSuggestion] = StatePending
	}
}

// Evaluate re-checks all four kinds and returns the prompt that is shown, if
// any. When a prompt is already shown it is returned unchanged.
func (s *Scheduler) Evaluate(snap Snapshot) (Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suggestion != nil && s.states[PromptSuggestion] != StateShown {
		if !s.suggestionFresh {
			s.suggestion = nil
			s.states[PromptSuggestion] = StateIdle
		}
		s.suggestionFresh = false
	}

	if s.shown != nil {
		return *s.shown, true
	}

	s.markPending(snap)

	var p *Prompt
	switch {
	case s.states[PromptCheckIn] == StatePending:
		p = &Prompt{Kind: PromptCheckIn, Text: snap.Session.CheckInPrompt()}
	case s.states[PromptNudge] == StatePending:
		n := snap.PendingNudges[0]
		p = &Prompt{Kind: PromptNudge, Text: n.Message, Nudge: &n}
	case s.states[PromptSuggestion] == StatePending:
		p = &Prompt{Kind: PromptSuggestion, Text: suggestionText(s.suggestion), Suggestion: s.suggestion}
	case s.states[PromptEnergyCheck] == StatePending:
		p = &Prompt{Kind: PromptEnergyCheck, Text: "Quick check: how's your energy right now, 1 to 5?"}
		s.lastEnergyPrompt = snap.Now
	default:
		return Prompt{}, false
	}

	p.ShownAt = snap.Now
	s.states[p.Kind] = StateShown
	s.shown = p
	return *p, true
}

// markPending moves idle kinds whose condition holds to pending, and pending
// kinds whose condition lapsed back to idle.
func (s *Scheduler) markPending(snap Snapshot) {
	set := func(k PromptKind, cond bool) {
		switch {
		case cond:
			s.states[k] = StatePending
		case s.states[k] == StatePending:
			s.states[k] = StateIdle
		}
	}

	set(PromptCheckIn, snap.Session != nil && snap.Session.CheckInDue(snap.Now))
	set(PromptNudge, len(snap.PendingNudges) > 0)
	set(PromptSuggestion, s.suggestion != nil)

	energyDue := snap.EnergyChecksOn && !snap.SettingsOpen &&
		snap.Now.Sub(snap.LastEnergyLog) > s.energyCheckAfter &&
		snap.Now.Sub(s.lastEnergyPrompt) > s.energyCheckAfter
	set(PromptEnergyCheck, energyDue)
}

// Resolve closes the shown prompt as actioned or dismissed and returns it.
func (s *Scheduler) Resolve(actioned bool) (Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shown == nil {
		return Prompt{}, ErrNoPrompt
	}
	p := *s.shown
	if actioned {
		s.states[p.Kind] = StateActioned
	} else {
		s.states[p.Kind] = StateDismissed
	}
	if p.Kind == PromptSuggestion {
		s.suggestion = nil
	}
	// Terminal per occurrence: markPending moves the kind back to pending
	// the next time its condition holds.
	s.shown = nil
	return p, nil
}

// Shown returns the currently shown prompt, if any.
func (s *Scheduler) Shown() (Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shown == nil {
		return Prompt{}, false
	}
	return *s.shown, true
}

// State reports the lifecycle state of one prompt kind.
func (s *Scheduler) State(k PromptKind) PromptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[k]
}

// ShownCount is the number of kinds currently in the shown state. It is
// never more than one.
func (s *Scheduler) ShownCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if st == StateShown {
			n++
		}
	}
	return n
}

// SetLastEnergyPrompt restores the persisted energy-prompt timestamp.
func (s *Scheduler) SetLastEnergyPrompt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEnergyPrompt = t
}

// LastEnergyPrompt returns when the energy check was last shown.
func (s *Scheduler) LastEnergyPrompt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEnergyPrompt
}

// Reset drops any shown or pending prompt, e.g. when a focus session ends.
func (s *Scheduler) Reset(kind PromptKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shown != nil && s.shown.Kind == kind {
		s.shown = nil
	}
	s.states[kind] = StateIdle
	if kind == PromptSuggestion {
		s.suggestion = nil
	}
}

func suggestionText(sg *Suggestion) string {
	if sg == nil {
		return ""
	}
	return "How about " + quote(sg.Task.Description) + "? " + capitalize(sg.Reason) + "."
}
