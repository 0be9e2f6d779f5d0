package journal

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ellentanhsuling/scribe-bot/internal/pipeline"
)

// SessionLogger writes structured JSONL session logs to a file
type SessionLogger struct {
	mu   sync.Mutex
	file *os.File
	err  error // first write failure
}

type logRecord struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	Seq       int               `json:"seq,omitempty"`
	Captured  string            `json:"captured,omitempty"`
	Speaker   string            `json:"speaker,omitempty"`
	Text      string            `json:"text,omitempty"`
	Risk      string            `json:"risk,omitempty"`
	Keyword   string            `json:"keyword,omitempty"`
	Action    string            `json:"action,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewSessionLogger creates a logger under outputDir. Filename is timestamp + session id.
func NewSessionLogger(outputDir, sessionID string, started time.Time) (*SessionLogger, error) {
	if outputDir == "" {
		outputDir = "." // default current dir if not provided
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	shortID := sessionID
	if len(sessionID) > 8 {
		shortID = sessionID[:8]
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_session_%s.jsonl", started.Format("20060102_150405"), shortID))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &SessionLogger{file: f}, nil
}

// Path returns the file being written, or "" once closed.
func (sl *SessionLogger) Path() string {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file == nil {
		return ""
	}
	return sl.file.Name()
}

func (sl *SessionLogger) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file != nil {
		err := sl.file.Close()
		sl.file = nil
		return err
	}
	return nil
}

func (sl *SessionLogger) write(rec logRecord) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file == nil {
		return
	}
	// sanitize text fields to keep lines compact
	rec.Text = strings.TrimSpace(rec.Text)
	enc := json.NewEncoder(sl.file)
	if err := enc.Encode(rec); err != nil && sl.err == nil {
		sl.err = err
		log.Printf("Session %s: journal write to %s failed: %v", rec.SessionID, sl.file.Name(), err)
	}
}

// Err returns the first write failure, if any.
func (sl *SessionLogger) Err() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.err
}

// Publish records pipeline events, making the logger a pipeline.Sink.
func (sl *SessionLogger) Publish(e pipeline.Event) {
	rec := logRecord{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		SessionID: e.SessionID,
	}
	switch e.Kind {
	case pipeline.EventEntryReady:
		rec.Event = "entry"
	case pipeline.EventEscalation:
		rec.Event = "escalation"
		rec.Keyword = e.Keyword
	case pipeline.EventSegmentDropped:
		rec.Event = "segment_dropped"
		rec.Details = map[string]string{"reason": e.Reason}
		sl.write(rec)
		return
	default:
		rec.Event = string(e.Kind)
	}
	rec.Seq = e.Seq
	rec.Captured = e.Entry.Timestamp.Format(time.RFC3339Nano)
	rec.Speaker = e.Entry.Speaker
	rec.Text = e.Entry.Text
	rec.Risk = string(e.Entry.Risk)
	rec.Action = e.Action
	sl.write(rec)
}

func (sl *SessionLogger) LogSessionStart(sessionID, provider string, started time.Time) {
	sl.write(logRecord{Timestamp: started.Format(time.RFC3339Nano), Event: "session_start", SessionID: sessionID, Details: map[string]string{"provider": provider}})
}

func (sl *SessionLogger) LogSessionEnd(sessionID string, ended time.Time, reason string) {
	sl.write(logRecord{Timestamp: ended.Format(time.RFC3339Nano), Event: "session_end", SessionID: sessionID, Details: map[string]string{"reason": reason}})
}

func (sl *SessionLogger) LogOperator(sessionID, action, detail string) {
	sl.write(logRecord{Timestamp: time.Now().Format(time.RFC3339Nano), Event: "operator", SessionID: sessionID, Details: map[string]string{"action": action, "detail": detail}})
}

func (sl *SessionLogger) LogExport(sessionID, path string, err error) {
	status := "ok"
	if err != nil {
		status = err.Error()
	}
	sl.write(logRecord{Timestamp: time.Now().Format(time.RFC3339Nano), Event: "export", SessionID: sessionID, Details: map[string]string{"path": path, "status": status}})
}
