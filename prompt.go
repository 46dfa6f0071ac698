package nero

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultPersona is the companion's standing instruction block.
const DefaultPersona = `You are Nero, a companion for someone with ADHD.

HOW YOU ARE:
- Warm and honest. Never fake cheerful.
- Direct and brief. No lectures.
- You remember what this person has told you and you use it.
- You push back gently when it helps.

RULES:
- At most one question per reply, often none.
- One to three sentences is usually enough.
- No bullet points or lists. Just talk.
- Never guilt or shame.
- Speak to this person specifically, not to people in general.`

const (
	digestCommitments = 5
	digestRemembered  = 8
	digestTopics      = 3
	digestStruggles   = 3
	digestPatterns    = 4
	promptOpenTasks   = 5
)

// DigestInput is everything the memory digest is assembled from.
type DigestInput struct {
	Profile  UserProfile
	LastSeen time.Time // previous session, zero on the first
	Energy   *EnergyEntry
	Patterns []Pattern
	Insight  *Insight
	Now      time.Time
}

// BuildDigest renders the memory digest. Sections always appear in the same
// order so identical state produces an identical prompt: identity, current
// energy, commitments and open loops, remembered facts and recent topics,
// struggles, inferred patterns, and finally the selected insight.
func BuildDigest(in DigestInput) string {
	var b strings.Builder
	p := in.Profile

	b.WriteString("ABOUT THIS PERSON:\n")
	if p.Facts.Name != "" {
		fmt.Fprintf(&b, "- Name: %s\n", p.Facts.Name)
	}
	fmt.Fprintf(&b, "- Conversations: %d\n", p.Facts.TotalConversations)
	if !in.LastSeen.IsZero() && in.Now.Sub(in.LastSeen) >= time.Minute {
		fmt.Fprintf(&b, "- Last talked: %s\n", humanize.RelTime(in.LastSeen, in.Now, "ago", "from now"))
	}

	if in.Energy != nil {
		b.WriteString("\nRIGHT NOW:\n")
		fmt.Fprintf(&b, "- Energy: %d/5", in.Energy.Level)
		if in.Energy.Mood != "" {
			fmt.Fprintf(&b, ", mood: %s", in.Energy.Mood)
		}
		fmt.Fprintf(&b, " (logged %s)\n", in.Energy.TimeOfDay)
	}

	section(&b, "THEY SAID THEY WOULD:", firstN(p.Threads.Commitments, digestCommitments))
	section(&b, "STILL OPEN:", p.Threads.OpenLoops)
	section(&b, "REMEMBER:", lastN(p.Remembered, digestRemembered))
	section(&b, "ON THEIR MIND LATELY:", lastN(p.Threads.RecentTopics, digestTopics))
	section(&b, "THEY STRUGGLE WITH:", lastN(p.Patterns.KnownStruggles, digestStruggles))
	section(&b, "WHAT HELPS THEM:", p.Patterns.WhatHelps)
	section(&b, "WHAT DOESN'T HELP:", p.Patterns.WhatDoesntHelp)

	var inferred []string
	for _, pt := range strongPatterns(in.Patterns, 0.5, digestPatterns) {
		inferred = append(inferred, fmt.Sprintf("%s (%.0f%% sure)", pt.Description, pt.Confidence*100))
	}
	section(&b, "PATTERNS YOU'VE NOTICED:", inferred)

	if in.Insight != nil {
		fmt.Fprintf(&b, "\nINSIGHT (weave in naturally, don't force it):\n- %s\n", in.Insight.Text)
	}

	return strings.TrimRight(b.String(), "\n")
}

// BuildSystemPrompt joins the persona, the digest and up to five open tasks.
func BuildSystemPrompt(persona, digest string, open []Task) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(digest)

	n := 0
	for _, t := range open {
		if t.Status != TaskOpen {
			continue
		}
		if n == 0 {
			b.WriteString("\n\nOPEN TASKS:")
		}
		b.WriteString("\n- ")
		b.WriteString(t.Description)
		if n++; n == promptOpenTasks {
			break
		}
	}
	return b.String()
}

func section(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString("\n")
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
