package nero

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MemoryKind classifies a remembered signal pulled out of a message.
type MemoryKind string

const (
	MemoryName       MemoryKind = "name"
	MemoryStruggle   MemoryKind = "struggle"
	MemoryHelps      MemoryKind = "helps"
	MemoryDoesntHelp MemoryKind = "doesnt_help"
	MemoryFact       MemoryKind = "fact"
	MemoryTopic      MemoryKind = "topic"
)

// Memory is one extracted profile signal.
type Memory struct {
	Kind MemoryKind
	Text string
}

// Reminder is a "remind me in N minutes to X" request.
type Reminder struct {
	After   time.Duration
	Message string
}

// Extraction is the structured result of Extract. It carries no state and
// describes mutations for the caller to apply.
type Extraction struct {
	Name        string
	NewTasks    []string
	Completions []string
	Memories    []Memory
	Reminders   []Reminder
	SaidDone    bool // a bare "done"/"finished", used by focus sessions
}

// Empty reports whether nothing was extracted.
func (e Extraction) Empty() bool {
	return e.Name == "" && len(e.NewTasks) == 0 && len(e.Completions) == 0 &&
		len(e.Memories) == 0 && len(e.Reminders) == 0 && !e.SaidDone
}

var (
	nameRe = regexp.MustCompile(`\b(?i:i'm|i’m|i am|my name is|call me)\s+([A-Z][a-z]+)\b`)

	commitTriggerRe = regexp.MustCompile(`(?i)\b(?:i\s+(?:need|have|want|should|will|gotta)|i'll|i’ll|going\s+to|gonna|planning\s+to)\b(?:\s+to\b)?`)

	completeTriggerRe = regexp.MustCompile(`(?i)(?:\b(?:i|i'm|i’m|i am|i've|i’ve)\s+(?:just\s+|finally\s+)?(?:did|finished|completed|done\s+with)|\b(?:just|finally)\s+(?:did|finished|completed|done\s+with|([a-z]+ed))|^\s*(?:done\s+with|finished|completed))\b`)

	// The whole message must be the acknowledgement; "done" inside a longer
	// sentence is not one.
	doneRe    = regexp.MustCompile(`(?i)^\s*(?:(?:ok(?:ay)?|yes|yay)[,!.]*\s+)?(?:i'm\s+|i’m\s+|i am\s+|all\s+)?(?:done|finished|did it|completed it)(?:\s+with\s+(?:it|this|that|this one|that one))?\s*[.!]*\s*$`)
	notDoneRe = regexp.MustCompile(`(?i)\b(?:not|never|n't)\s+(?:yet\s+|quite\s+)?(?:done|finished|completed)\b`)

	struggleRe   = regexp.MustCompile(`(?i)(?:struggl|hard for me|difficult|can't seem to|can’t seem to|cannot seem to|always have trouble)`)
	rememberRe   = regexp.MustCompile(`(?i)(?:^|\b(?:please\s+)?)remember\s+that\s+([^.!?\n]{4,120})`)
	preferenceRe = regexp.MustCompile(`(?i)\bi\s+(?:really\s+)?(love|like|hate|enjoy)\s+([^.!?\n]{3,80})`)
	helpsRe      = regexp.MustCompile(`(?i)([^.!?\n]{3,80}?)\s+(?:really\s+)?(?:always\s+)?helps(?:\s+me)?\b`)
	doesntHelpRe = regexp.MustCompile(`(?i)([^.!?\n]{3,80}?)\s+(?:doesn't|doesn’t|does not|never)\s+helps?\b`)
	topicRe      = regexp.MustCompile(`(?i)\b(?:thinking|worried|worrying|stressed|stressing|excited|anxious|nervous|talk|talking)\s+about\s+([^.!?,\n]{3,60})`)
	reminderRe   = regexp.MustCompile(`(?i)\bremind me in\s+(\d+|an?|one)\s+(minutes?|mins?|hours?|hrs?)\s+(?:to\s+)?([^.!?\n]{2,120})`)
)

// Verbs that end in -ed after "just"/"finally" but do not report a finished task.
var notCompletionVerbs = map[string]bool{
	"needed": true, "wanted": true, "started": true, "tried": true,
	"decided": true, "realized": true, "noticed": true, "remembered": true,
	"wished": true, "hoped": true, "planned": true, "used": true,
	"learned": true, "checked": true, "opened": true, "added": true,
}

// Trailing words stripped from a captured clause.
var clauseTail = map[string]bool{
	"and": true, "but": true, "so": true, "then": true, "because": true,
	"cause": true, "i": true, "i'm": true, "i’m": true, "am": true, "or": true,
}

// Extract pulls structured signals out of a free-text message. It is pure:
// calling it twice on the same text yields identical output.
func Extract(text string) Extraction {
	var ex Extraction

	if m := nameRe.FindStringSubmatch(text); m != nil {
		ex.Name = m[1]
		ex.Memories = append(ex.Memories, Memory{Kind: MemoryName, Text: m[1]})
	}

	for _, c := range clauses(text, commitTriggerRe, 6, nil) {
		if !hasWordPrefix(c, "finished", "done", "completed", "already", "not") {
			ex.NewTasks = append(ex.NewTasks, c)
		}
	}
	for _, c := range clauses(text, completeTriggerRe, 4, func(groups []string) bool {
		return len(groups) > 1 && notCompletionVerbs[strings.ToLower(groups[1])]
	}) {
		if !hasWordPrefix(c, "not", "nothing") {
			ex.Completions = append(ex.Completions, c)
		}
	}

	if doneRe.MatchString(text) && !notDoneRe.MatchString(text) {
		ex.SaidDone = true
	}

	if struggleRe.MatchString(text) {
		ex.Memories = append(ex.Memories, Memory{Kind: MemoryStruggle, Text: truncateRunes(strings.TrimSpace(text), 100)})
	}
	if m := rememberRe.FindStringSubmatch(text); m != nil {
		ex.Memories = append(ex.Memories, Memory{Kind: MemoryFact, Text: tidyClause(m[1])})
	}
	if m := preferenceRe.FindStringSubmatch(text); m != nil {
		verb := strings.ToLower(m[1])
		ex.Memories = append(ex.Memories, Memory{Kind: MemoryFact, Text: verb + "s " + tidyClause(m[2])})
	}
	if m := doesntHelpRe.FindStringSubmatch(text); m != nil {
		if s := tidyClause(m[1]); utf8.RuneCountInString(s) >= 3 {
			ex.Memories = append(ex.Memories, Memory{Kind: MemoryDoesntHelp, Text: s})
		}
	} else if m := helpsRe.FindStringSubmatch(text); m != nil {
		if s := tidyClause(m[1]); utf8.RuneCountInString(s) >= 3 && !strings.EqualFold(s, "nothing") {
			ex.Memories = append(ex.Memories, Memory{Kind: MemoryHelps, Text: s})
		}
	}

	if m := topicRe.FindStringSubmatch(text); m != nil {
		if s := tidyClause(m[1]); utf8.RuneCountInString(s) >= 3 {
			ex.Memories = append(ex.Memories, Memory{Kind: MemoryTopic, Text: s})
		}
	}

	for _, m := range reminderRe.FindAllStringSubmatch(text, -1) {
		if r, ok := parseReminder(m[1], m[2], m[3]); ok {
			ex.Reminders = append(ex.Reminders, r)
		}
	}

	return ex
}

// clauses returns the text following each trigger match up to the sentence
// end or the next trigger, keeping those with a rune length in [minLen, 99].
// Clauses belonging to a question are dropped. skip, when non-nil, rejects a
// match by its submatch groups.
func clauses(text string, trigger *regexp.Regexp, minLen int, skip func([]string) bool) []string {
	locs := trigger.FindAllStringSubmatchIndex(text, -1)
	var out []string
	for i, loc := range locs {
		if skip != nil && skip(submatches(text, loc)) {
			continue
		}
		start := loc[1]
		end, term := sentenceEnd(text, start)
		if term == '?' {
			continue
		}
		if i+1 < len(locs) && locs[i+1][0] < end {
			end = locs[i+1][0]
		}
		clause := tidyClause(text[start:end])
		n := utf8.RuneCountInString(clause)
		if n < minLen || n > 99 {
			continue
		}
		out = append(out, clause)
	}
	return out
}

func submatches(text string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for g := range groups {
		if loc[2*g] >= 0 {
			groups[g] = text[loc[2*g]:loc[2*g+1]]
		}
	}
	return groups
}

// sentenceEnd finds the first terminator at or after start.
func sentenceEnd(text string, start int) (int, byte) {
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			return i, text[i]
		}
	}
	return len(text), 0
}

// tidyClause trims whitespace, punctuation and dangling connector words.
func tidyClause(s string) string {
	s = strings.Trim(strings.TrimSpace(s), " ,;:-")
	for {
		i := strings.LastIndexByte(s, ' ')
		if i < 0 {
			break
		}
		if !clauseTail[strings.ToLower(s[i+1:])] {
			break
		}
		s = strings.Trim(strings.TrimSpace(s[:i]), " ,;:-")
	}
	return s
}

func parseReminder(qty, unit, msg string) (Reminder, bool) {
	n := 1
	if v, err := strconv.Atoi(qty); err == nil {
		n = v
	}
	if n <= 0 {
		return Reminder{}, false
	}
	d := time.Minute
	if strings.HasPrefix(strings.ToLower(unit), "h") {
		d = time.Hour
	}
	msg = tidyClause(msg)
	if msg == "" {
		return Reminder{}, false
	}
	return Reminder{After: time.Duration(n) * d, Message: msg}, true
}

func hasWordPrefix(s string, words ...string) bool {
	first, _, _ := strings.Cut(strings.ToLower(s), " ")
	for _, w := range words {
		if first == w {
			return true
		}
	}
	return false
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
