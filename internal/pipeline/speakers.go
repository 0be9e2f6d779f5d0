package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/ellentanhsuling/scribe-bot/internal/conversation"
)

var (
	ErrUnknownSpeaker   = errors.New("pipeline: unknown speaker")
	ErrInvalidSpeaker   = errors.New("pipeline: invalid speaker label")
	ErrDuplicateSpeaker = errors.New("pipeline: speaker already exists")
)

// Speakers holds the operator-managed speaker labels of a session and which
// one is currently selected. Selection changes only affect entries appended
// afterwards.
type Speakers struct {
	mu      sync.RWMutex
	labels  []string
	current string
}

// NewSpeakers creates an empty registry with nothing selected.
func NewSpeakers() *Speakers {
	return &Speakers{}
}

// Add registers the next numbered speaker (Person1, Person2, ...) and returns
// its label.
func (s *Speakers) Add() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := len(s.labels) + 1; ; n++ {
		label := fmt.Sprintf("Person%d", n)
		if !s.has(label) {
			s.labels = append(s.labels, label)
			return label
		}
	}
}

// AddNamed registers a custom label.
func (s *Speakers) AddNamed(label string) error {
	label = strings.TrimSpace(label)
	if label == "" || label == conversation.UnassignedSpeaker || strings.ContainsRune(label, ':') || strings.IndexFunc(label, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidSpeaker, label)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.has(label) {
		return fmt.Errorf("%w: %q", ErrDuplicateSpeaker, label)
	}
	s.labels = append(s.labels, label)
	return nil
}

// Select makes label the active speaker.
func (s *Speakers) Select(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has(label) {
		return fmt.Errorf("%w: %q", ErrUnknownSpeaker, label)
	}
	s.current = label
	return nil
}

// Clear deselects the active speaker.
func (s *Speakers) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
}

// Current returns the active speaker, or conversation.UnassignedSpeaker.
func (s *Speakers) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == "" {
		return conversation.UnassignedSpeaker
	}
	return s.current
}

// List returns the registered labels in the order they were added.
func (s *Speakers) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

func (s *Speakers) has(label string) bool {
	for _, l := range s.labels {
		if l == label {
			return true
		}
	}
	return false
}
