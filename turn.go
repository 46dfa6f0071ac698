package nero

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// SendOptions describe how a message reached the companion.
type SendOptions struct {
	Voice bool // the message was spoken
}

// Reply is the outcome of one conversation turn.
type Reply struct {
	Message     Message
	Extraction  Extraction
	NewTasks    []Task
	Completed   []Task
	Nudges      []Nudge
	Insight     *Insight
	Fallback    bool   // produced by the rule-based responder
	SessionDone bool   // the turn finished the focus session
	Notice      string // one-time user-visible notice, e.g. speech unavailable
}

// Pronouns that stand for the focus-session task in "done with it".
var pronounRe = regexp.MustCompile(`(?i)^(?:it|this|that|this one|that one|the thing)$`)

// Send runs one conversation turn: record the message, apply what it says
// to tasks and memory, then answer from the LLM or the fallback responder.
// Only one turn runs at a time; a concurrent call gets ErrTurnInProgress.
func (c *Companion) Send(ctx context.Context, text string, opts SendOptions) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > c.cfg.MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	if !c.turn.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer c.turn.Unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.turnCancel = cancel
	c.abandoned = false
	now := c.clock()

	userMsg := c.newMessage(RoleUser, text, now)
	userMsg.IsVoice = opts.Voice
	c.appendMessage(ctx, userMsg)

	ex := Extract(text)
	reply := &Reply{Extraction: ex}
	sessionDone := c.applyExtractionLocked(ctx, ex, now, reply)
	c.persistProfile(ctx)

	if sessionDone {
		summary := c.session.summary(now, true)
		c.session = nil
		c.scheduler.Reset(PromptCheckIn)
		reply.Message = c.newMessage(RoleCompanion, summary, now)
		reply.SessionDone = true
		c.appendMessage(ctx, reply.Message)
		c.turnCancel = nil
		c.mu.Unlock()
		log.Info().Msg("focus session finished by message")
		return reply, nil
	}

	req, insight := c.assembleLocked(ctx, now)
	reply.Insight = insight
	completer := c.completer
	c.mu.Unlock()

	var (
		content string
		err     error
	)
	if completer != nil {
		content, err = completer.Complete(turnCtx, req)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.turnCancel = nil

	if c.abandoned || ctx.Err() != nil {
		log.Debug().Msg("turn abandoned")
		return nil, ErrTurnAbandoned
	}
	if completer == nil || err != nil {
		if err != nil {
			log.Warn().Err(err).Msg("completion failed, using fallback")
		}
		content = c.fallback.Respond(c.messages, c.profile, c.openTasks)
		reply.Fallback = true
	}

	now = c.clock()
	reply.Message = c.newMessage(RoleCompanion, content, now)
	reply.Message.IsInsight = insight != nil && !reply.Fallback
	c.appendMessage(ctx, reply.Message)

	if opts.Voice && c.autoSpeak {
		reply.Notice = c.speakLocked(ctx, content)
	}
	return reply, nil
}

// CancelTurn abandons the LLM request of the turn in flight, if any. The
// abandoned turn appends no reply and returns ErrTurnAbandoned.
func (c *Companion) CancelTurn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnCancel == nil {
		return false
	}
	c.abandoned = true
	c.turnCancel()
	return true
}

// applyExtractionLocked applies an extraction's mutations in order:
// memories, completions, new tasks, reminders. Returns true when the
// focus-session task was completed. Caller holds mu.
func (c *Companion) applyExtractionLocked(ctx context.Context, ex Extraction, now time.Time, reply *Reply) bool {
	c.profile.Apply(ex.Memories)

	energy := c.energyLevelLocked(now)
	sessionTask := ""
	if c.session != nil {
		sessionTask = c.session.TaskID
	}
	sessionDone, matchedOther, unmatched := false, false, false

	complete := func(i int) {
		t, err := c.completeTaskLocked(ctx, i, now, energy)
		if err != nil {
			return
		}
		reply.Completed = append(reply.Completed, t)
		if sessionTask != "" && t.ID == sessionTask {
			sessionDone = true
		} else {
			matchedOther = true
		}
	}

	for _, cand := range ex.Completions {
		c.profile.CloseOpenLoop(cand)
		if sessionTask != "" && pronounRe.MatchString(cand) {
			if i := findTask(c.openTasks, sessionTask); i >= 0 {
				complete(i)
			}
			continue
		}
		if i, ok := MatchOpenTask(c.openTasks, cand); ok {
			complete(i)
		} else {
			unmatched = true
		}
	}
	// A bare "done" refers to the session task unless the message named
	// something else.
	if ex.SaidDone && sessionTask != "" && !sessionDone && !matchedOther &&
		!unmatched && len(ex.NewTasks) == 0 {
		if i := findTask(c.openTasks, sessionTask); i >= 0 {
			complete(i)
		}
	}

	for _, desc := range ex.NewTasks {
		if HasOpenTask(c.openTasks, desc) {
			continue
		}
		t := NewTask(desc, energy, now)
		c.openTasks = append(c.openTasks, t)
		c.profile.AddCommitment(t.Description)
		if err := c.store.CreateTask(ctx, c.userID, t); err != nil {
			log.Warn().Err(err).Msg("could not persist task")
		}
		reply.NewTasks = append(reply.NewTasks, t)
		log.Debug().Str("task", t.Description).Msg("task created")
	}

	if !c.cfg.Features.DisableNudges {
		for _, r := range ex.Reminders {
			n, err := NewNudge(r.Message, now.Add(r.After), NudgeReminder, "")
			if err != nil {
				continue
			}
			if err := c.store.CreateNudge(ctx, c.userID, n); err != nil {
				log.Warn().Err(err).Msg("could not persist reminder")
				continue
			}
			reply.Nudges = append(reply.Nudges, n)
			c.profile.AddOpenLoop(r.Message)
		}
	}

	return sessionDone
}

// assembleLocked builds the completion request for the current state and
// consumes at most one insight. Caller holds mu.
func (c *Companion) assembleLocked(ctx context.Context, now time.Time) (CompletionRequest, *Insight) {
	var insight *Insight
	if c.completer != nil && !c.cfg.Features.DisableInsights {
		cands := BuildInsights(c.patterns, c.openTasks, c.completed, c.energyLevelLocked(now), now)
		if in, ok := c.insights.Select(cands, now); ok {
			insight = &in
			if in.PatternID != "" {
				c.markSurfacedLocked(ctx, in.PatternID, now)
			}
		}
	}

	var patterns []Pattern
	if !c.cfg.Features.DisablePatterns {
		patterns = c.patterns
	}
	digest := BuildDigest(DigestInput{
		Profile:  c.profile,
		LastSeen: c.lastSeen,
		Energy:   c.currentEnergyLocked(now),
		Patterns: patterns,
		Insight:  insight,
		Now:      now,
	})

	window := c.messages
	if n := c.cfg.ContextWindow; len(window) > n {
		window = window[len(window)-n:]
	}
	msgs := make([]ChatMessage, 0, len(window))
	for _, m := range window {
		role := ChatUser
		if m.Role == RoleCompanion {
			role = ChatAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: m.Content})
	}

	return CompletionRequest{
		SystemPrompt: BuildSystemPrompt(c.cfg.Persona, digest, c.openTasks),
		Messages:     msgs,
	}, insight
}

func (c *Companion) markSurfacedLocked(ctx context.Context, patternID string, now time.Time) {
	for i := range c.patterns {
		if c.patterns[i].ID == patternID {
			c.patterns[i].SurfacedToUser = true
			c.patterns[i].LastSurfaced = &now
		}
	}
	if err := c.store.MarkPatternSurfaced(ctx, c.userID, patternID, now); err != nil {
		log.Warn().Err(err).Msg("could not persist surfaced pattern")
	}
}

// speakLocked voices content. Returns a notice the first time speech turns
// out to be unavailable. Caller holds mu.
func (c *Companion) speakLocked(ctx context.Context, content string) string {
	err := ErrSpeechUnavailable
	if c.speaker != nil {
		err = c.speaker.Speak(ctx, content)
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSpeechUnavailable):
		if c.speechNoticed {
			return ""
		}
		c.speechNoticed = true
		return "Voice replies aren't available here, so I'll stick to text."
	default:
		log.Warn().Err(err).Msg("speech failed")
		return ""
	}
}
