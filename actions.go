package nero

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// LogEnergy records an energy check-in. It resolves a shown energy prompt
// and queues a task suggestion for the new level, which is also returned
// (nil when there is nothing to suggest).
func (c *Companion) LogEnergy(ctx context.Context, level int, mood string) (*Suggestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	e, err := NewEnergyEntry(level, mood, now)
	if err != nil {
		return nil, err
	}
	c.energy = append(c.energy, e)
	if err := c.store.LogEnergy(ctx, c.userID, e); err != nil {
		log.Warn().Err(err).Msg("could not persist energy")
	}

	if p, ok := c.scheduler.Shown(); ok && p.Kind == PromptEnergyCheck {
		c.scheduler.Resolve(true)
	}

	sg := SuggestTask(c.openTasks, level, c.patterns, c.completed, now)
	if sg != nil {
		c.scheduler.OfferSuggestion(sg)
	}
	log.Debug().Int("level", level).Str("mood", mood).Msg("energy logged")
	return sg, nil
}

// OpenTasks returns the open tasks, oldest first.
func (c *Companion) OpenTasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Task(nil), c.openTasks...)
}

// CompletedTasks returns tasks completed within the pattern window.
func (c *Companion) CompletedTasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Task(nil), c.completed...)
}

// CompleteTask marks an open task completed with the current energy level.
func (c *Companion) CompleteTask(ctx context.Context, taskID string) (Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := findTask(c.openTasks, taskID)
	if i < 0 {
		return Task{}, c.missingTaskErrLocked(taskID)
	}
	now := c.clock()
	t, err := c.completeTaskLocked(ctx, i, now, c.energyLevelLocked(now))
	if err != nil {
		return Task{}, err
	}
	c.persistProfile(ctx)
	return t, nil
}

// DeleteTask abandons an open task.
func (c *Companion) DeleteTask(ctx context.Context, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := findTask(c.openTasks, taskID)
	if i < 0 {
		return c.missingTaskErrLocked(taskID)
	}
	t := c.openTasks[i]
	if err := t.Abandon(); err != nil {
		return err
	}
	c.openTasks = removeTask(c.openTasks, i)
	c.profile.RemoveCommitment(t.Description)
	c.persistProfile(ctx)
	if err := c.store.AbandonTask(ctx, c.userID, taskID); err != nil {
		log.Warn().Err(err).Str("task", taskID).Msg("could not persist task removal")
	}
	return nil
}

func (c *Companion) missingTaskErrLocked(taskID string) error {
	if findTask(c.completed, taskID) >= 0 {
		return ErrTaskClosed
	}
	return ErrTaskNotFound
}

// Suggest answers "what should I do now". When no task is open it returns
// nil and an energy-appropriate prompt.
func (c *Companion) Suggest() (*Suggestion, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	energy := c.energyLevelLocked(now)
	if sg := SuggestTask(c.openTasks, energy, c.patterns, c.completed, now); sg != nil {
		return sg, suggestionText(sg)
	}
	return nil, IdleSuggestion(energy)
}

// AcceptSuggestion actions the shown task suggestion and returns its task.
func (c *Companion) AcceptSuggestion(ctx context.Context) (Task, error) {
	p, err := c.resolveKind(ctx, PromptSuggestion, true)
	if err != nil {
		return Task{}, err
	}
	return p.Suggestion.Task, nil
}

// RejectSuggestion dismisses the shown task suggestion.
func (c *Companion) RejectSuggestion(ctx context.Context) error {
	_, err := c.resolveKind(ctx, PromptSuggestion, false)
	return err
}

func (c *Companion) resolveKind(ctx context.Context, kind PromptKind, actioned bool) (Prompt, error) {
	if p, ok := c.scheduler.Shown(); !ok || p.Kind != kind {
		return Prompt{}, ErrNoPrompt
	}
	return c.ResolvePrompt(ctx, actioned)
}

// ScheduleNudge creates a nudge due at at. recurrence is an optional cron
// expression.
func (c *Companion) ScheduleNudge(ctx context.Context, message string, at time.Time, recurrence string) (Nudge, error) {
	if c.cfg.Features.DisableNudges {
		return Nudge{}, ErrFeatureDisabled
	}
	n, err := NewNudge(message, at, NudgeReminder, recurrence)
	if err != nil {
		return Nudge{}, err
	}
	if err := c.store.CreateNudge(ctx, c.userID, n); err != nil {
		return Nudge{}, err
	}
	log.Debug().Str("nudge", n.ID).Time("at", at).Msg("nudge scheduled")
	return n, nil
}

// Poll re-evaluates the proactive prompts and returns the one shown, if
// any. A prompt that becomes shown by this call is delivered to OnPrompt.
func (c *Companion) Poll(ctx context.Context) (Prompt, bool) {
	_, wasShown := c.scheduler.Shown()

	c.mu.Lock()
	now := c.clock()
	snap := Snapshot{
		Now:            now,
		SettingsOpen:   c.settingsOpen,
		EnergyChecksOn: !c.cfg.Features.DisableEnergyChecks,
	}
	if c.session != nil {
		s := *c.session
		snap.Session = &s
	}
	if len(c.energy) > 0 {
		snap.LastEnergyLog = c.energy[len(c.energy)-1].Timestamp
	}
	c.mu.Unlock()

	if !c.cfg.Features.DisableNudges && !wasShown {
		nudges, err := c.store.GetPendingNudges(ctx, c.userID, now)
		if err != nil {
			log.Warn().Err(err).Msg("could not load nudges")
		}
		snap.PendingNudges = nudges
	}

	p, ok := c.scheduler.Evaluate(snap)
	if !ok || wasShown {
		return p, ok
	}

	switch p.Kind {
	case PromptNudge:
		c.markNudgeSent(ctx, *p.Nudge, now)
	case PromptEnergyCheck:
		if err := c.local.Set(keyLastEnergyPrompt, now); err != nil {
			log.Warn().Err(err).Msg("could not persist energy prompt time")
		}
	}
	log.Debug().Str("kind", string(p.Kind)).Msg("prompt shown")
	if c.cfg.OnPrompt != nil {
		c.cfg.OnPrompt(p)
	}
	return p, true
}

// markNudgeSent records that n was surfaced and schedules its next
// occurrence when it recurs.
func (c *Companion) markNudgeSent(ctx context.Context, n Nudge, now time.Time) {
	if err := c.store.MarkNudgeSent(ctx, c.userID, n.ID, now); err != nil {
		log.Warn().Err(err).Str("nudge", n.ID).Msg("could not mark nudge sent")
	}
	if next, ok := nextOccurrence(n, now); ok {
		if err := c.store.CreateNudge(ctx, c.userID, next); err != nil {
			log.Warn().Err(err).Msg("could not schedule next occurrence")
		}
	}
}

// ResolvePrompt closes the shown prompt as actioned or dismissed.
func (c *Companion) ResolvePrompt(ctx context.Context, actioned bool) (Prompt, error) {
	p, err := c.scheduler.Resolve(actioned)
	if err != nil {
		return Prompt{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	switch p.Kind {
	case PromptNudge:
		if !actioned {
			if err := c.store.DismissNudge(ctx, c.userID, p.Nudge.ID, now); err != nil {
				log.Warn().Err(err).Msg("could not dismiss nudge")
			}
		}
	case PromptCheckIn:
		if c.session != nil {
			c.session.recordCheckIn(now, c.nextCheckInLocked())
		}
	}
	return p, nil
}

// ShownPrompt returns the prompt currently shown, if any.
func (c *Companion) ShownPrompt() (Prompt, bool) {
	return c.scheduler.Shown()
}

// --- body double ---

// StartBodyDouble begins a focus session, optionally linked to an open task.
func (c *Companion) StartBodyDouble(ctx context.Context, taskID string) (Message, error) {
	if c.cfg.Features.DisableBodyDouble {
		return Message{}, ErrFeatureDisabled
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return Message{}, ErrSessionActive
	}
	var task *Task
	if taskID != "" {
		i := findTask(c.openTasks, taskID)
		if i < 0 {
			return Message{}, c.missingTaskErrLocked(taskID)
		}
		task = &c.openTasks[i]
	}

	now := c.clock()
	c.session = newBodyDoubleSession(task, now, c.nextCheckInLocked())
	msg := c.newMessage(RoleCompanion, c.session.openingMessage(), now)
	c.appendMessage(ctx, msg)
	log.Info().Str("task", c.session.TaskDescription).Time("next_check_in", c.session.NextCheckIn).Msg("focus session started")
	return msg, nil
}

// Session returns a copy of the active focus session.
func (c *Companion) Session() (BodyDoubleSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return BodyDoubleSession{}, false
	}
	return *c.session, true
}

// RespondCheckIn answers a focus-session check-in. "done" ends the session
// as completed; the others reply and restart the check-in clock.
func (c *Companion) RespondCheckIn(ctx context.Context, resp CheckInResponse) (Message, error) {
	if resp == CheckInDone {
		if p, ok := c.scheduler.Shown(); ok && p.Kind == PromptCheckIn {
			c.scheduler.Resolve(true)
		}
		return c.EndBodyDouble(ctx, true)
	}

	text, ok := checkInReplies[resp]
	if !ok {
		text = checkInReplies[CheckInGood]
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return Message{}, ErrNoSession
	}
	now := c.clock()
	c.session.recordCheckIn(now, c.nextCheckInLocked())
	msg := c.newMessage(RoleCompanion, text, now)
	c.appendMessage(ctx, msg)
	c.mu.Unlock()

	if p, ok := c.scheduler.Shown(); ok && p.Kind == PromptCheckIn {
		c.scheduler.Resolve(true)
	}
	return msg, nil
}

// EndBodyDouble ends the focus session. completed marks the linked task
// done with the last known energy; otherwise no task changes.
func (c *Companion) EndBodyDouble(ctx context.Context, completed bool) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return Message{}, ErrNoSession
	}
	now := c.clock()
	if completed && c.session.TaskID != "" {
		if i := findTask(c.openTasks, c.session.TaskID); i >= 0 {
			if _, err := c.completeTaskLocked(ctx, i, now, c.lastEnergyLevelLocked()); err == nil {
				c.persistProfile(ctx)
			}
		}
	}

	msg := c.newMessage(RoleCompanion, c.session.summary(now, completed), now)
	c.appendMessage(ctx, msg)
	log.Info().Bool("completed", completed).Dur("elapsed", now.Sub(c.session.StartedAt)).Msg("focus session ended")
	c.session = nil
	c.scheduler.Reset(PromptCheckIn)
	return msg, nil
}

// nextCheckInLocked draws the next check-in interval. Caller holds mu.
func (c *Companion) nextCheckInLocked() time.Duration {
	return checkInJitter(c.rng, c.cfg.CheckInMin, c.cfg.CheckInMax)
}

// --- patterns ---

// Patterns returns the inferred patterns.
func (c *Companion) Patterns() []Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Pattern(nil), c.patterns...)
}

// RefreshPatterns runs pattern analysis now and returns the patterns that
// were created or reinforced.
func (c *Companion) RefreshPatterns(ctx context.Context) []Pattern {
	return c.runPatternAnalysis(ctx)
}

// runPatternAnalysis mines the trailing energy and completion windows and
// merges the result into the stored patterns.
func (c *Companion) runPatternAnalysis(ctx context.Context) []Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	c.energy = trimEnergy(c.energy, now.Add(-energyWindow))
	c.completed = trimCompleted(c.completed, now.Add(-completionWindow))

	cands := AnalyzePatterns(c.energy, c.completed, now)
	merged, changed := MergePatterns(c.patterns, cands, now)
	c.patterns = merged
	for _, p := range changed {
		if err := c.store.UpsertPattern(ctx, c.userID, p); err != nil {
			log.Warn().Err(err).Str("pattern", p.Description).Msg("could not persist pattern")
		}
	}
	if len(changed) > 0 {
		log.Debug().Int("changed", len(changed)).Int("total", len(merged)).Msg("patterns analyzed")
	}
	return changed
}

func trimEnergy(entries []EnergyEntry, since time.Time) []EnergyEntry {
	var out []EnergyEntry
	for _, e := range entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

func trimCompleted(tasks []Task, since time.Time) []Task {
	var out []Task
	for _, t := range tasks {
		if t.CompletedAt != nil && !t.CompletedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out
}
