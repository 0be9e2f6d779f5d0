package conversation

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ellentanhsuling/scribe-bot/internal/risk"
)

// UnassignedSpeaker labels entries recorded while no speaker was selected.
const UnassignedSpeaker = "unassigned"

// ErrEmptyText is returned when appending an entry without text.
var ErrEmptyText = errors.New("conversation: entry text is empty")

// Entry is one transcript record. Entries are values; the log hands out
// copies so nothing outside the log can alter what was recorded.
type Entry struct {
	Timestamp time.Time
	Speaker   string
	Text      string
	Risk      risk.Level
}

// NewEntry builds an entry, collapsing whitespace so the text fits on one
// line and defaulting the speaker to UnassignedSpeaker.
func NewEntry(at time.Time, speaker, text string, level risk.Level) Entry {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		speaker = UnassignedSpeaker
	}
	return Entry{
		Timestamp: at,
		Speaker:   speaker,
		Text:      NormalizeText(text),
		Risk:      level,
	}
}

// NormalizeText collapses runs of whitespace, including newlines, into
// single spaces.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Log is an append-only, ordered record of a conversation. Entries are kept
// in the order they were appended, which for a pipeline with several workers
// is the order transcriptions completed rather than the order audio was
// captured.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{entries: make([]Entry, 0, 64)}
}

// Append adds an entry to the end of the log.
func (l *Log) Append(e Entry) error {
	if strings.TrimSpace(e.Text) == "" {
		return ErrEmptyText
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// Snapshot returns a copy of every entry appended so far.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
