package transcriber

import (
	"context"
	"strings"
	"time"

	"github.com/ellentanhsuling/scribe-bot/internal/audio"
)

// RetryPolicy bounds how hard a segment is retried when the recognition
// service is unavailable.
type RetryPolicy struct {
	MaxAttempts    int // total attempts including the first
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration // per attempt; zero means no extra deadline
}

// DefaultRetryPolicy is three attempts with 250ms, 500ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Backoff returns the wait before attempt n+1, after n failed attempts.
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// Transcribe runs t against seg under the policy. Malformed segments are
// rejected before any call and never retried; ServiceUnavailable is retried
// until attempts run out or ctx ends. It returns the last result and the
// number of attempts made.
func (p RetryPolicy) Transcribe(ctx context.Context, t Transcriber, seg audio.Segment) (Result, int) {
	if err := Validate(seg); err != nil {
		return Invalid("%v", err), 0
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Unavailable("cancelled before attempt %d: %v", attempt, err), attempt - 1
		}
		result = p.attempt(ctx, t, seg)
		if result.Outcome != ServiceUnavailable || attempt == maxAttempts {
			return result, attempt
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Unavailable("cancelled after %d attempts: %v", attempt, ctx.Err()), attempt
		case <-timer.C:
		}
	}
	return result, maxAttempts
}

func (p RetryPolicy) attempt(ctx context.Context, t Transcriber, seg audio.Segment) Result {
	if p.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.RequestTimeout)
		defer cancel()
	}
	result := t.Transcribe(ctx, seg)
	if result.Outcome == Recognized && strings.TrimSpace(result.Text) == "" {
		return NoSpeech()
	}
	return result
}
