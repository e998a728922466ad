// Package summarize condenses meeting transcripts into summaries, action
// items, and entities using deterministic heuristics. It deliberately
// involves no model inference: the output is a starting point that humans
// review through the agent event confirmation flow.
package summarize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Summary is the structured result of processing a transcript.
type Summary struct {
	// Text is the condensed summary, at most maxSummarySentences sentences
	// in transcript order.
	Text string

	// ActionItems are detected commitments, one proposal each.
	ActionItems []ActionItem

	// Entities extracted from the transcript.
	People []string
	Dates  []string
	Topics []string
}

// ActionItem is a detected commitment in a transcript.
type ActionItem struct {
	Title    string
	Assignee string // speaker or "X will ..." subject; empty when unattributed
}

const (
	maxSummarySentences = 3
	maxTopics           = 5
)

var (
	// speakerRe matches "Name:" transcript prefixes (one or two capitalized words).
	speakerRe = regexp.MustCompile(`^([A-Z][a-zA-Z]+(?: [A-Z][a-zA-Z]+)?):\s*(.*)$`)

	// actionCueRe matches explicit action-item markers.
	actionCueRe = regexp.MustCompile(`(?i)^\s*(?:-\s*)?(?:todo|action(?: item)?|ai)\s*[:\-]\s*(.+)$`)

	// willRe matches "X will <do something>" commitments.
	willRe = regexp.MustCompile(`\b([A-Z][a-zA-Z]+) will ([a-z][^.!?]*)`)

	// isoDateRe matches ISO dates like 2026-03-01.
	isoDateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

	// namedDateRe matches month-day references like "March 3" or "Mar 3rd".
	namedDateRe = regexp.MustCompile(`\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?) \d{1,2}(?:st|nd|rd|th)?\b`)

	// relativeDateRe matches weekday and relative references.
	relativeDateRe = regexp.MustCompile(`(?i)\b(?:tomorrow|next week|next month|end of (?:day|week|month)|Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\b`)

	sentenceSplitRe = regexp.MustCompile(`[.!?]+\s+`)
)

// stopwords excluded from topic extraction.
var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "would": true, "should": true, "could": true, "about": true,
	"there": true, "their": true, "they": true, "them": true, "then": true,
	"than": true, "what": true, "when": true, "where": true, "which": true,
	"going": true, "just": true, "like": true, "also": true, "been": true,
	"were": true, "does": true, "doing": true, "done": true, "need": true,
	"needs": true, "into": true, "over": true, "after": true, "before": true,
	"because": true, "really": true, "think": true, "want": true, "your": true,
	"yeah": true, "okay": true, "right": true, "sure": true, "well": true,
	"still": true, "today": true, "tomorrow": true, "next": true, "week": true,
	"meeting": true, "thanks": true, "everyone": true, "good": true, "here": true,
}

// Summarizer converts transcripts into summaries. Safe for concurrent use;
// it holds no mutable state.
type Summarizer struct{}

// New creates a Summarizer.
func New() *Summarizer {
	return &Summarizer{}
}

// Summarize processes a transcript.
//
// Heuristics:
//   - "Name:" line prefixes and "X will ..." subjects become People.
//   - Lines with action cues (TODO/Action/AI) and "X will ..." phrases
//     become ActionItems, with the speaker or subject as assignee.
//   - ISO dates, month-day references, and weekday/relative phrases
//     become Dates.
//   - The most frequent non-stopword terms become Topics.
//   - Text is the highest-scoring sentences (by topic-term density) in
//     transcript order.
func (s *Summarizer) Summarize(text string) Summary {
	var sum Summary

	peopleSet := map[string]bool{}
	dateSet := map[string]bool{}
	var utterances []string

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		speaker := ""
		if m := speakerRe.FindStringSubmatch(line); m != nil {
			speaker = m[1]
			line = m[2]
			if !peopleSet[speaker] {
				peopleSet[speaker] = true
				sum.People = append(sum.People, speaker)
			}
		}
		if line == "" {
			continue
		}
		utterances = append(utterances, line)

		if m := actionCueRe.FindStringSubmatch(line); m != nil {
			sum.ActionItems = append(sum.ActionItems, ActionItem{
				Title:    strings.TrimSpace(m[1]),
				Assignee: speaker,
			})
		} else {
			for _, m := range willRe.FindAllStringSubmatch(line, -1) {
				subject := m[1]
				sum.ActionItems = append(sum.ActionItems, ActionItem{
					Title:    strings.TrimSpace(subject + " will " + strings.TrimSpace(m[2])),
					Assignee: subject,
				})
				if !peopleSet[subject] {
					peopleSet[subject] = true
					sum.People = append(sum.People, subject)
				}
			}
		}

		for _, re := range []*regexp.Regexp{isoDateRe, namedDateRe, relativeDateRe} {
			for _, d := range re.FindAllString(line, -1) {
				key := strings.ToLower(d)
				if !dateSet[key] {
					dateSet[key] = true
					sum.Dates = append(sum.Dates, d)
				}
			}
		}
	}

	freq := termFrequencies(utterances, peopleSet)
	sum.Topics = topTerms(freq, maxTopics)
	sum.Text = condense(utterances, freq)
	return sum
}

// Extract returns the summary text and an entities payload for storing on
// a note. Used by the knowledge extraction executor.
func (s *Summarizer) Extract(text string) (summary string, entities map[string]any) {
	sum := s.Summarize(text)
	return sum.Text, map[string]any{
		"people": sum.People,
		"dates":  sum.Dates,
		"topics": sum.Topics,
	}
}

// SummaryMarkdown renders a summary as the body of a meeting note.
func SummaryMarkdown(title string, sum Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", title, sum.Text)
	if len(sum.ActionItems) > 0 {
		b.WriteString("\n## Action items\n\n")
		for _, ai := range sum.ActionItems {
			if ai.Assignee != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", ai.Title, ai.Assignee)
			} else {
				fmt.Fprintf(&b, "- %s\n", ai.Title)
			}
		}
	}
	if len(sum.Topics) > 0 {
		fmt.Fprintf(&b, "\n## Topics\n\n%s\n", strings.Join(sum.Topics, ", "))
	}
	return b.String()
}

func termFrequencies(utterances []string, people map[string]bool) map[string]int {
	freq := map[string]int{}
	for _, u := range utterances {
		for _, w := range strings.FieldsFunc(u, func(r rune) bool {
			return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
		}) {
			lw := strings.ToLower(w)
			if len(lw) < 4 || stopwords[lw] || people[w] {
				continue
			}
			freq[lw]++
		}
	}
	return freq
}

func topTerms(freq map[string]int, n int) []string {
	type tf struct {
		term  string
		count int
	}
	terms := make([]tf, 0, len(freq))
	for t, c := range freq {
		if c >= 2 {
			terms = append(terms, tf{t, c})
		}
	}
	// Alphabetical tiebreak keeps output deterministic.
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].count != terms[j].count {
			return terms[i].count > terms[j].count
		}
		return terms[i].term < terms[j].term
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.term
	}
	return out
}

// condense scores each sentence by the frequency of the terms it contains
// and returns the top sentences in their original order.
func condense(utterances []string, freq map[string]int) string {
	text := strings.Join(utterances, " ")
	sentences := sentenceSplitRe.Split(text, -1)

	type scored struct {
		idx   int
		score int
	}
	var ranked []scored
	for i, sent := range sentences {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		score := 0
		for _, w := range strings.Fields(sent) {
			score += freq[strings.ToLower(strings.Trim(w, ".,!?;:"))]
		}
		ranked = append(ranked, scored{i, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].idx < ranked[j].idx
	})
	if len(ranked) > maxSummarySentences {
		ranked = ranked[:maxSummarySentences]
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].idx < ranked[j].idx })

	parts := make([]string, 0, len(ranked))
	for _, r := range ranked {
		sent := strings.TrimSpace(sentences[r.idx])
		if !strings.HasSuffix(sent, ".") && !strings.HasSuffix(sent, "!") && !strings.HasSuffix(sent, "?") {
			sent += "."
		}
		parts = append(parts, sent)
	}
	return strings.Join(parts, " ")
}
