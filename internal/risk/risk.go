package risk

import (
	"fmt"
	"strings"
)

// Level represents the risk classification of an utterance
type Level string

const (
	Normal Level = "Normal"
	High   Level = "High"
)

// ParseLevel converts an exported level name back to a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.TrimSpace(s)) {
	case Normal:
		return Normal, nil
	case High:
		return High, nil
	default:
		return "", fmt.Errorf("unknown risk level: %q", s)
	}
}

// defaultKeywords are the phrases that escalate an utterance to High risk.
var defaultKeywords = []string{
	"suicide", "kill", "hurt", "harm", "die", "end my life",
	"self harm", "cut myself", "overdose", "pills",
}

// DefaultKeywords returns a copy of the built-in keyword set.
func DefaultKeywords() []string {
	out := make([]string, len(defaultKeywords))
	copy(out, defaultKeywords)
	return out
}

// Classifier classifies utterances by case-insensitive substring match
// against a fixed keyword set. It is safe for concurrent use and never
// changes after construction.
type Classifier struct {
	keywords []string
}

// NewClassifier builds a classifier from keywords. Keywords are lowercased,
// trimmed and deduplicated; blank entries are ignored. Order is preserved so
// Match reports the first configured keyword that hits.
func NewClassifier(keywords []string) *Classifier {
	seen := make(map[string]bool, len(keywords))
	clean := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true
		clean = append(clean, keyword)
	}
	return &Classifier{keywords: clean}
}

// NewDefaultClassifier returns a classifier over DefaultKeywords.
func NewDefaultClassifier() *Classifier {
	return NewClassifier(defaultKeywords)
}

// Classify returns High if text contains any keyword, Normal otherwise.
func (c *Classifier) Classify(text string) Level {
	if _, found := c.Match(text); found {
		return High
	}
	return Normal
}

// Match returns the first keyword contained in text.
func (c *Classifier) Match(text string) (string, bool) {
	text = strings.ToLower(text)
	for _, keyword := range c.keywords {
		if strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

// Keywords returns a copy of the keyword set.
func (c *Classifier) Keywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}
