package nero

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBuildDigestSectionOrder(t *testing.T) {
	now := time.Date(2026, 4, 20, 15, 0, 0, 0, time.UTC)
	p := NewProfile(now.Add(-72 * time.Hour))
	p.Facts.Name = "Riley"
	p.Facts.TotalConversations = 4
	p.AddCommitment("call the dentist")
	p.AddOpenLoop("eat breakfast")
	p.Remember("works nights")
	p.AddTopic("the move")
	p.AddStruggle("I struggle with mornings")
	p.AddHelps("music")
	p.AddDoesntHelp("being rushed")

	energy, _ := NewEnergyEntry(2, "foggy", now.Add(-time.Hour))
	digest := BuildDigest(DigestInput{
		Profile:  p,
		LastSeen: now.Add(-26 * time.Hour),
		Energy:   &energy,
		Patterns: []Pattern{
			{Description: "You tend to have higher energy in the morning", Confidence: 0.8},
			{Description: "too weak", Confidence: 0.2},
		},
		Insight: &Insight{Text: "Low energy days count too."},
		Now:     now,
	})

	order := []string{
		"ABOUT THIS PERSON:",
		"- Name: Riley",
		"- Conversations: 4",
		"- Last talked: 1 day ago",
		"- Energy: 2/5, mood: foggy (logged afternoon)",
		"THEY SAID THEY WOULD:",
		"STILL OPEN:",
		"- eat breakfast",
		"REMEMBER:",
		"ON THEIR MIND LATELY:",
		"- the move",
		"THEY STRUGGLE WITH:",
		"WHAT HELPS THEM:",
		"WHAT DOESN'T HELP:",
		"PATTERNS YOU'VE NOTICED:",
		"- You tend to have higher energy in the morning (80% sure)",
		"INSIGHT",
		"- Low energy days count too.",
	}
	pos := 0
	for _, s := range order {
		i := strings.Index(digest[pos:], s)
		if i < 0 {
			t.Fatalf("%q missing or out of order in:\n%s", s, digest)
		}
		pos += i + len(s)
	}
	if strings.Contains(digest, "too weak") {
		t.Error("low-confidence pattern in digest")
	}
}

func TestBuildDigestDeterministic(t *testing.T) {
	now := time.Now()
	in := DigestInput{Profile: NewProfile(now), Now: now}
	if BuildDigest(in) != BuildDigest(in) {
		t.Error("identical input produced different digests")
	}
	if strings.Contains(BuildDigest(in), "RIGHT NOW") {
		t.Error("energy section rendered without an entry")
	}
}

func TestBuildSystemPromptCapsTasks(t *testing.T) {
	now := time.Now()
	var open []Task
	for i := 0; i < 7; i++ {
		open = append(open, NewTask(fmt.Sprintf("task %d", i), 0, now))
	}
	got := BuildSystemPrompt("PERSONA", "DIGEST", open)
	if !strings.HasPrefix(got, "PERSONA\n\nDIGEST\n\nOPEN TASKS:") {
		t.Errorf("prompt = %q", got)
	}
	if !strings.Contains(got, "- task 4") || strings.Contains(got, "- task 5") {
		t.Errorf("expected exactly five tasks:\n%s", got)
	}

	if got := BuildSystemPrompt("P", "D", nil); strings.Contains(got, "OPEN TASKS") {
		t.Errorf("empty task list rendered a header: %q", got)
	}
}
