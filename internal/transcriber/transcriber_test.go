package transcriber

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/ellentanhsuling/scribe-bot/internal/audio"
)

// scriptedTranscriber returns queued results in order, repeating the last.
type scriptedTranscriber struct {
	mu      sync.Mutex
	results []Result
	calls   int
}

func (s *scriptedTranscriber) Name() string { return "scripted" }

func (s *scriptedTranscriber) Transcribe(ctx context.Context, seg audio.Segment) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i]
}

func testSegment() audio.Segment {
	return audio.Segment{
		Samples:    make([]byte, 3200),
		SampleRate: 16000,
		Channels:   1,
		Start:      time.Now(),
		Frames:     1,
	}
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetryRecoversAfterUnavailable(t *testing.T) {
	fake := &scriptedTranscriber{results: []Result{
		Unavailable("down"),
		Unavailable("still down"),
		Text("hello"),
	}}

	result, attempts := fastPolicy(3).Transcribe(context.Background(), fake, testSegment())
	if result.Outcome != Recognized || result.Text != "hello" {
		t.Fatalf("expected recognized hello, got %+v", result)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryGivesUp(t *testing.T) {
	fake := &scriptedTranscriber{results: []Result{Unavailable("down")}}

	result, attempts := fastPolicy(3).Transcribe(context.Background(), fake, testSegment())
	if result.Outcome != ServiceUnavailable {
		t.Fatalf("expected ServiceUnavailable, got %v", result.Outcome)
	}
	if attempts != 3 || fake.calls != 3 {
		t.Errorf("expected exactly 3 calls, got attempts=%d calls=%d", attempts, fake.calls)
	}
}

func TestRetrySkipsMalformed(t *testing.T) {
	fake := &scriptedTranscriber{results: []Result{Invalid("bad audio"), Text("never")}}

	result, attempts := fastPolicy(3).Transcribe(context.Background(), fake, testSegment())
	if result.Outcome != Malformed {
		t.Fatalf("expected Malformed, got %v", result.Outcome)
	}
	if attempts != 1 {
		t.Errorf("malformed segment should not be retried, got %d attempts", attempts)
	}
}

func TestRetryValidatesBeforeCalling(t *testing.T) {
	fake := &scriptedTranscriber{results: []Result{Text("never")}}

	bad := testSegment()
	bad.Samples = bad.Samples[:3]
	result, attempts := fastPolicy(3).Transcribe(context.Background(), fake, bad)
	if result.Outcome != Malformed || attempts != 0 || fake.calls != 0 {
		t.Errorf("odd-length segment should be rejected up front, got %+v attempts=%d calls=%d", result, attempts, fake.calls)
	}
}

func TestRetryTreatsBlankTextAsNoSpeech(t *testing.T) {
	fake := &scriptedTranscriber{results: []Result{Text("   ")}}
	result, _ := fastPolicy(1).Transcribe(context.Background(), fake, testSegment())
	if result.Outcome != NoSpeechDetected {
		t.Errorf("expected NoSpeechDetected, got %v", result.Outcome)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	fake := &scriptedTranscriber{results: []Result{Unavailable("down")}}
	policy := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, attempts := policy.Transcribe(ctx, fake, testSegment())
	if time.Since(start) > time.Second {
		t.Fatal("retry loop ignored cancellation")
	}
	if result.Outcome != ServiceUnavailable || attempts != 1 {
		t.Errorf("unexpected result %+v after %d attempts", result, attempts)
	}
}

func TestBackoff(t *testing.T) {
	policy := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, want := range expected {
		if got := policy.Backoff(i + 1); got != want {
			t.Errorf("backoff after %d failures: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		description string
		seg         audio.Segment
		valid       bool
	}{
		{"Valid mono", audio.Segment{Samples: make([]byte, 4), SampleRate: 8000, Channels: 1}, true},
		{"Valid stereo", audio.Segment{Samples: make([]byte, 8), SampleRate: 8000, Channels: 2}, true},
		{"Empty", audio.Segment{SampleRate: 8000, Channels: 1}, false},
		{"No sample rate", audio.Segment{Samples: make([]byte, 4), Channels: 1}, false},
		{"Too many channels", audio.Segment{Samples: make([]byte, 12), SampleRate: 8000, Channels: 3}, false},
		{"Partial stereo sample", audio.Segment{Samples: make([]byte, 6), SampleRate: 8000, Channels: 2}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			err := Validate(tc.seg)
			if (err == nil) != tc.valid {
				t.Errorf("expected valid=%v, got err=%v", tc.valid, err)
			}
		})
	}
}

func TestEncodeWAV(t *testing.T) {
	seg := audio.Segment{Samples: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}
	wav := encodeWAV(seg)

	if len(wav) != 48 {
		t.Fatalf("expected 48 bytes, got %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("missing RIFF markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if n := binary.LittleEndian.Uint32(wav[40:44]); n != 4 {
		t.Errorf("expected data length 4, got %d", n)
	}
}
