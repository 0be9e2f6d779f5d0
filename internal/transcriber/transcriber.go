package transcriber

import (
	"context"
	"fmt"

	"github.com/ellentanhsuling/scribe-bot/internal/audio"
)

// Transcriber is the common interface for all speech recognition providers.
// Transcribe may block for a network round trip and must honor ctx.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, seg audio.Segment) Result
}

// Outcome enumerates what a transcription attempt can produce.
type Outcome int

const (
	Recognized Outcome = iota
	NoSpeechDetected
	ServiceUnavailable
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Recognized:
		return "recognized"
	case NoSpeechDetected:
		return "no_speech"
	case ServiceUnavailable:
		return "service_unavailable"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one transcription attempt. Text is set only for
// Recognized; Reason explains the other outcomes.
type Result struct {
	Outcome Outcome
	Text    string
	Reason  string
}

// Text builds a Recognized result.
func Text(text string) Result {
	return Result{Outcome: Recognized, Text: text}
}

// NoSpeech builds a NoSpeechDetected result.
func NoSpeech() Result {
	return Result{Outcome: NoSpeechDetected}
}

// Unavailable builds a ServiceUnavailable result.
func Unavailable(format string, args ...interface{}) Result {
	return Result{Outcome: ServiceUnavailable, Reason: fmt.Sprintf(format, args...)}
}

// Invalid builds a Malformed result.
func Invalid(format string, args ...interface{}) Result {
	return Result{Outcome: Malformed, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that a segment can be sent to a recognizer at all.
func Validate(seg audio.Segment) error {
	if err := audio.CheckPCM(len(seg.Samples), seg.SampleRate, seg.Channels); err != nil {
		return fmt.Errorf("segment: %w", err)
	}
	return nil
}
