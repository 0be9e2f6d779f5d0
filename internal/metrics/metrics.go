package metrics

import (
	"fmt"
	"sync"
	"time"
)

// SessionMetrics counts what happened to the audio of one session.
type SessionMetrics struct {
	Provider        string
	SessionID       string
	StartTime       time.Time
	EndTime         time.Time
	Frames          int
	AudioBytes      int
	AudioDuration   time.Duration
	DroppedFrames   int
	RejectedFrames  int
	Segments        int
	Outcomes        map[string]int
	Retries         int
	Entries         int
	Escalations     int
	FirstResultTime *time.Time
	mu              sync.Mutex
}

func NewSessionMetrics(provider, sessionID string) *SessionMetrics {
	return &SessionMetrics{
		Provider:  provider,
		SessionID: sessionID,
		StartTime: time.Now(),
		Outcomes:  make(map[string]int),
	}
}

func (m *SessionMetrics) AddFrame(bytes int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames++
	m.AudioBytes += bytes
	m.AudioDuration += duration
}

func (m *SessionMetrics) AddDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DroppedFrames++
}

// AddRejected counts a frame refused at intake as malformed.
func (m *SessionMetrics) AddRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RejectedFrames++
}

// AddSegment records one segment sent for transcription, the outcome it
// finally got and how many attempts that took.
func (m *SessionMetrics) AddSegment(outcome string, attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Segments++
	m.Outcomes[outcome]++
	if attempts > 1 {
		m.Retries += attempts - 1
	}
}

func (m *SessionMetrics) AddEntry(escalated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstResultTime == nil {
		now := time.Now()
		m.FirstResultTime = &now
	}
	m.Entries++
	if escalated {
		m.Escalations++
	}
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

// Counts is a point-in-time copy of a session's counters.
type Counts struct {
	Frames         int
	AudioBytes     int
	AudioDuration  time.Duration
	DroppedFrames  int
	RejectedFrames int
	Segments       int
	Outcomes       map[string]int
	Retries        int
	Entries        int
	Escalations    int
	FirstResult    time.Duration // zero until the first entry
}

func (m *SessionMetrics) Snapshot() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Counts{
		Frames:         m.Frames,
		AudioBytes:     m.AudioBytes,
		AudioDuration:  m.AudioDuration,
		DroppedFrames:  m.DroppedFrames,
		RejectedFrames: m.RejectedFrames,
		Segments:       m.Segments,
		Outcomes:       make(map[string]int, len(m.Outcomes)),
		Retries:        m.Retries,
		Entries:        m.Entries,
		Escalations:    m.Escalations,
	}
	for k, v := range m.Outcomes {
		out.Outcomes[k] = v
	}
	if m.FirstResultTime != nil {
		out.FirstResult = m.FirstResultTime.Sub(m.StartTime)
	}
	return out
}

func (m *SessionMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	duration := end.Sub(m.StartTime)
	var latency time.Duration
	if m.FirstResultTime != nil {
		latency = m.FirstResultTime.Sub(m.StartTime)
	}

	return fmt.Sprintf(
		"Provider: %s\n"+
			"Session: %s\n"+
			"Duration: %v\n"+
			"Audio Duration: %.2f seconds\n"+
			"Frames: %d (%d bytes, %d dropped, %d rejected)\n"+
			"Segments: %d (recognized %d, no speech %d, unavailable %d, malformed %d)\n"+
			"Retries: %d\n"+
			"Entries: %d (%d escalated)\n"+
			"First Entry Latency: %v\n",
		m.Provider,
		m.SessionID,
		duration,
		m.AudioDuration.Seconds(),
		m.Frames,
		m.AudioBytes,
		m.DroppedFrames,
		m.RejectedFrames,
		m.Segments,
		m.Outcomes["recognized"],
		m.Outcomes["no_speech"],
		m.Outcomes["service_unavailable"],
		m.Outcomes["malformed"],
		m.Retries,
		m.Entries,
		m.Escalations,
		latency,
	)
}
