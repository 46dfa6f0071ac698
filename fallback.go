package nero

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// fallbackCategory is a row of the offline decision table.
type fallbackCategory string

const (
	fallbackIntro      fallbackCategory = "intro"
	fallbackGreeting   fallbackCategory = "greeting"
	fallbackWhatNow    fallbackCategory = "what_now"
	fallbackCompletion fallbackCategory = "completion"
	fallbackStuck      fallbackCategory = "stuck"
	fallbackGeneric    fallbackCategory = "generic"
)

const introMessage = "Hey. I'm Nero. I'm here to help you actually do things, not just plan them. What's on your mind?"

// Checked in order; the first match wins.
var fallbackRules = []struct {
	category fallbackCategory
	re       *regexp.Regexp
}{
	{fallbackGreeting, regexp.MustCompile(`(?i)^\s*(?:hey|hi|hello|yo|hiya|good (?:morning|afternoon|evening))\b`)},
	{fallbackWhatNow, regexp.MustCompile(`(?i)what should|what do i do|where do i (?:start|begin)|what now`)},
	{fallbackStuck, regexp.MustCompile(`(?i)stuck|overwhelm|too much|can'?t focus|cannot focus|paraly[sz]ed|frozen`)},
	{fallbackCompletion, regexp.MustCompile(`(?i)\b(?:done|finished|completed|did it)\b`)},
}

// FallbackResponder produces canned replies when no LLM is available. Output
// is deterministic for a given random source.
type FallbackResponder struct {
	rng *rand.Rand
}

// NewFallbackResponder creates a responder drawing variants from rng.
func NewFallbackResponder(rng *rand.Rand) *FallbackResponder {
	return &FallbackResponder{rng: rng}
}

// Respond answers the last user message in messages.
func (f *FallbackResponder) Respond(messages []Message, profile UserProfile, open []Task) string {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}
	cat := classifyFallback(last, profile)
	options := fallbackVariants(cat, profile, open)
	return options[f.rng.IntN(len(options))]
}

func classifyFallback(last string, profile UserProfile) fallbackCategory {
	if profile.Facts.TotalConversations == 0 {
		return fallbackIntro
	}
	for _, r := range fallbackRules {
		if r.re.MatchString(last) {
			return r.category
		}
	}
	return fallbackGeneric
}

// fallbackVariants lists the allowed replies for a category.
func fallbackVariants(cat fallbackCategory, profile UserProfile, open []Task) []string {
	name := ""
	if profile.Facts.Name != "" {
		name = " " + profile.Facts.Name
	}

	switch cat {
	case fallbackIntro:
		return []string{introMessage}
	case fallbackGreeting:
		return []string{
			fmt.Sprintf("Hey%s. What's going on?", name),
			fmt.Sprintf("Hi%s. How are you doing right now?", name),
			fmt.Sprintf("Hey%s, good to see you. What's on your mind?", name),
		}
	case fallbackWhatNow:
		focus := ""
		if len(open) > 0 {
			focus = open[0].Description
		} else if len(profile.Threads.Commitments) > 0 {
			focus = profile.Threads.Commitments[0]
		}
		if focus != "" {
			return []string{
				fmt.Sprintf("You mentioned wanting to %s. Start there?", focus),
				fmt.Sprintf("How about %s? Just the first five minutes.", focus),
				fmt.Sprintf("What if you gave %s ten minutes and then checked back in?", focus),
			}
		}
		return []string{
			"What's the one thing that would make today feel like a win?",
			"What's been nagging at you the most? Start with that.",
		}
	case fallbackStuck:
		return []string{
			"That's a lot. What's the smallest possible next step? Like, embarrassingly small.",
			"Okay. Let's shrink it. What's one thing you could do in two minutes?",
			"Being stuck is not a character flaw. Want to just pick one thing and I'll stay with you?",
		}
	case fallbackCompletion:
		return []string{
			"Nice work! How does it feel to have that off your plate?",
			"You did it. Seriously, that counts.",
			"Done is done. Want to ride that momentum or take a breather?",
		}
	default:
		return []string{
			"I'm here. What do you need?",
			"I'm listening. What's going on?",
			"Tell me more. What's on your mind?",
		}
	}
}

// quote wraps s in straight double quotes.
func quote(s string) string {
	return `"` + s + `"`
}

// capitalize upper-cases the first letter of s.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
