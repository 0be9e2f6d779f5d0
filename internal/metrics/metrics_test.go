package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestSessionMetricsCounts(t *testing.T) {
	m := NewSessionMetrics("vosk", "abc")

	m.AddFrame(320, 20*time.Millisecond)
	m.AddFrame(320, 20*time.Millisecond)
	m.AddDropped()
	m.AddSegment("recognized", 3)
	m.AddSegment("no_speech", 1)
	time.Sleep(time.Millisecond)
	m.AddEntry(true)
	m.Finalize()

	snap := m.Snapshot()
	if snap.Frames != 2 || snap.AudioBytes != 640 || snap.AudioDuration != 40*time.Millisecond {
		t.Errorf("unexpected frame counters %+v", snap)
	}
	if snap.DroppedFrames != 1 {
		t.Errorf("expected 1 dropped frame, got %d", snap.DroppedFrames)
	}
	if snap.Segments != 2 || snap.Retries != 2 {
		t.Errorf("expected 2 segments and 2 retries, got %d and %d", snap.Segments, snap.Retries)
	}
	if snap.Entries != 1 || snap.Escalations != 1 || snap.FirstResult <= 0 {
		t.Errorf("unexpected entry counters %+v", snap)
	}

	snap.Outcomes["recognized"] = 99
	if m.Snapshot().Outcomes["recognized"] != 1 {
		t.Error("snapshot must copy outcome counts")
	}
}

func TestSummary(t *testing.T) {
	m := NewSessionMetrics("whisper", "session-1")
	m.AddSegment("malformed", 1)
	summary := m.Summary()

	for _, want := range []string{"Provider: whisper", "Session: session-1", "malformed 1"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}
