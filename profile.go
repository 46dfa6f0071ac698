package nero

import (
	"strings"
	"time"
)

// List caps. Enforced on write so persisted state never exceeds them.
const (
	threadCap     = 5
	patternCap    = 5
	rememberedCap = 20
)

// Facts are the stable identity fields of a profile.
type Facts struct {
	Name               string    `json:"name,omitempty"`
	Timezone           string    `json:"timezone,omitempty"`
	FirstSeen          time.Time `json:"firstSeen"`
	LastSeen           time.Time `json:"lastSeen"`
	TotalConversations int       `json:"totalConversations"`
}

// Threads hold what the user is in the middle of.
type Threads struct {
	RecentTopics []string `json:"recentTopics"`
	OpenLoops    []string `json:"openLoops"`
	Commitments  []string `json:"commitments"`
}

// ReportedPatterns are things the user told us about themselves,
// distinct from patterns the engine infers.
type ReportedPatterns struct {
	KnownStruggles []string `json:"knownStruggles"`
	WhatHelps      []string `json:"whatHelps"`
	WhatDoesntHelp []string `json:"whatDoesntHelp"`
}

// UserProfile is the layered long-term memory of one device identity.
type UserProfile struct {
	Facts      Facts            `json:"facts"`
	Threads    Threads          `json:"threads"`
	Patterns   ReportedPatterns `json:"patterns"`
	Remembered []string         `json:"remembered"`
}

// NewProfile returns a zero-state profile first seen at now.
func NewProfile(now time.Time) UserProfile {
	return UserProfile{
		Facts: Facts{FirstSeen: now, LastSeen: now},
	}
}

// StartSession records a new app session. Called once per session, not per message.
func (p *UserProfile) StartSession(now time.Time) {
	p.Facts.LastSeen = now
	p.Facts.TotalConversations++
}

func (p *UserProfile) AddCommitment(s string) {
	p.Threads.Commitments = appendCapped(p.Threads.Commitments, s, threadCap)
}

// RemoveCommitment drops a commitment matching s (bidirectional substring, case-insensitive).
func (p *UserProfile) RemoveCommitment(s string) {
	var out []string
	for _, c := range p.Threads.Commitments {
		if !FuzzyMatch(c, s) {
			out = append(out, c)
		}
	}
	p.Threads.Commitments = out
}

func (p *UserProfile) AddTopic(s string) {
	p.Threads.RecentTopics = appendCapped(p.Threads.RecentTopics, s, threadCap)
}

func (p *UserProfile) AddOpenLoop(s string) {
	p.Threads.OpenLoops = appendCapped(p.Threads.OpenLoops, s, threadCap)
}

// CloseOpenLoop drops open loops matching s.
func (p *UserProfile) CloseOpenLoop(s string) {
	var out []string
	for _, l := range p.Threads.OpenLoops {
		if !FuzzyMatch(l, s) {
			out = append(out, l)
		}
	}
	p.Threads.OpenLoops = out
}

func (p *UserProfile) AddStruggle(s string) {
	p.Patterns.KnownStruggles = appendCapped(p.Patterns.KnownStruggles, s, patternCap)
}

func (p *UserProfile) AddHelps(s string) {
	p.Patterns.WhatHelps = appendCapped(p.Patterns.WhatHelps, s, patternCap)
}

func (p *UserProfile) AddDoesntHelp(s string) {
	p.Patterns.WhatDoesntHelp = appendCapped(p.Patterns.WhatDoesntHelp, s, patternCap)
}

func (p *UserProfile) Remember(s string) {
	p.Remembered = appendCapped(p.Remembered, s, rememberedCap)
}

// Apply folds extracted memories into the profile.
func (p *UserProfile) Apply(mems []Memory) {
	for _, m := range mems {
		switch m.Kind {
		case MemoryName:
			p.Facts.Name = m.Text
		case MemoryStruggle:
			p.AddStruggle(m.Text)
		case MemoryHelps:
			p.AddHelps(m.Text)
		case MemoryDoesntHelp:
			p.AddDoesntHelp(m.Text)
		case MemoryFact:
			p.Remember(m.Text)
		case MemoryTopic:
			p.AddTopic(m.Text)
		}
	}
}

// appendCapped appends s, moving an existing case-insensitive duplicate to the
// newest position, then drops the oldest entries beyond limit.
func appendCapped(list []string, s string, limit int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return list
	}
	out := make([]string, 0, len(list)+1)
	for _, item := range list {
		if !strings.EqualFold(item, s) {
			out = append(out, item)
		}
	}
	out = append(out, s)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// lastN returns up to n trailing items of list.
func lastN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
