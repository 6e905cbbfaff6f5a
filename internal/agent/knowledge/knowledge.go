package knowledge

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

//go:embed data/faq.json
var faqJSON []byte

// Entry is one knowledge base article.
type Entry struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
	Text     string   `json:"text"`
}

// Base answers factual questions from a fixed set of articles.
type Base struct {
	entries []Entry
	index   []map[string]bool
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "what": true, "how": true,
	"do": true, "does": true, "i": true, "my": true, "you": true, "your": true, "for": true,
	"of": true, "to": true, "can": true, "me": true, "it": true, "in": true, "on": true, "and": true,
}

// Default loads the built-in articles.
func Default() (*Base, error) {
	var entries []Entry
	if err := json.Unmarshal(faqJSON, &entries); err != nil {
		return nil, fmt.Errorf("decode knowledge base: %w", err)
	}
	return New(entries), nil
}

// MustDefault is Default that panics on a broken embedded file.
func MustDefault() *Base {
	b, err := Default()
	if err != nil {
		panic(err)
	}
	return b
}

func New(entries []Entry) *Base {
	b := &Base{entries: entries, index: make([]map[string]bool, len(entries))}
	for i, e := range entries {
		idx := map[string]bool{}
		for _, k := range e.Keywords {
			idx[strings.ToLower(k)] = true
		}
		b.index[i] = idx
	}
	return b
}

// Search returns up to topK entries sharing the most keywords with query.
// Entries with no overlap are never returned.
func (b *Base) Search(query string, topK int) []Entry {
	terms := tokens(query)
	type hit struct {
		i     int
		score int
	}
	var hits []hit
	for i := range b.entries {
		score := 0
		for t := range terms {
			if b.index[i][t] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{i, score})
		}
	}
	sort.SliceStable(hits, func(x, y int) bool { return hits[x].score > hits[y].score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]Entry, len(hits))
	for j, h := range hits {
		out[j] = b.entries[h.i]
	}
	return out
}

func tokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if !stopWords[w] {
			out[w] = true
		}
	}
	return out
}

var objectionReplies = map[model.ObjectionKind]string{
	model.ObjectionCost:          "I hear you on cost. Rates start at 10.5%, and I can show you how a longer tenure brings the EMI down to something comfortable.",
	model.ObjectionUncertainty:   "Taking time to decide is completely fine. Ask me anything about the terms and I'll walk you through it.",
	model.ObjectionDelay:         "No rush. I can summarise the terms so you can review them whenever you're ready.",
	model.ObjectionNotInterested: "Understood. If something specific put you off, tell me and I'll see whether we can address it.",
	model.ObjectionCredit:        "A modest credit score doesn't rule you out. We work with many credit profiles and I can suggest ways to improve your eligibility.",
	model.ObjectionProcess:       "The process is short and I'll guide you through every step, so there's very little for you to do.",
	model.ObjectionAlternative:   "Comparing offers makes sense. I'm happy to lay out our rates and fees side by side so you can judge for yourself.",
}

// ObjectionReply returns the templated reassurance for kind.
func ObjectionReply(kind model.ObjectionKind) string {
	if r, ok := objectionReplies[kind]; ok {
		return r
	}
	return "I understand your concern. Could you tell me a bit more so I can help?"
}
