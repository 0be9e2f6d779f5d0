package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ellentanhsuling/scribe-bot/internal/audio"
	"github.com/ellentanhsuling/scribe-bot/internal/conversation"
	"github.com/ellentanhsuling/scribe-bot/internal/metrics"
	"github.com/ellentanhsuling/scribe-bot/internal/risk"
	"github.com/ellentanhsuling/scribe-bot/internal/transcriber"
)

// State is the lifecycle state of a Controller.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNotIdle    = errors.New("pipeline: controller already started")
	ErrNotRunning = errors.New("pipeline: controller is not running")
)

// Options configures a Controller. Zero values take the defaults noted.
type Options struct {
	SessionID        string        // default: random UUID
	BufferFrames     int           // default: 500 (10s of 20ms frames)
	SegmentDuration  time.Duration // default: 3s
	SilenceGap       time.Duration // flush a partial segment after this long without frames; default 500ms
	Workers          int           // default: 1
	Retry            transcriber.RetryPolicy
	StopGrace        time.Duration // default: 5s
	EscalationAction string        // default: "contact-responder"
	RoutineAction    string        // default: "contact-guardian"
	Classifier       *risk.Classifier
	Sinks            []Sink
	Metrics          *metrics.SessionMetrics
}

func (o Options) withDefaults() Options {
	if o.SessionID == "" {
		o.SessionID = uuid.NewString()
	}
	if o.BufferFrames <= 0 {
		o.BufferFrames = 500
	}
	if o.SegmentDuration <= 0 {
		o.SegmentDuration = 3 * time.Second
	}
	if o.SilenceGap <= 0 {
		o.SilenceGap = 500 * time.Millisecond
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = transcriber.DefaultRetryPolicy()
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
	if o.EscalationAction == "" {
		o.EscalationAction = "contact-responder"
	}
	if o.RoutineAction == "" {
		o.RoutineAction = "contact-guardian"
	}
	if o.Classifier == nil {
		o.Classifier = risk.NewDefaultClassifier()
	}
	return o
}

// Controller runs one session's pipeline: capture frames are buffered,
// grouped into segments, transcribed by a worker pool, classified, and
// appended to the conversation log by a single appender goroutine.
//
// With more than one worker, entries land in the log in the order their
// transcriptions complete, which need not match the order the audio was
// captured.
type Controller struct {
	opts        Options
	transcriber transcriber.Transcriber
	buffer      *audio.FrameBuffer
	log         *conversation.Log
	speakers    *Speakers
	metrics     *metrics.SessionMetrics
	rejected    atomic.Uint64

	mu         sync.Mutex
	state      State
	cancelWork context.CancelFunc
	appendDone chan struct{}
}

// recognition is what a worker hands the appender.
type recognition struct {
	seg     audio.Segment
	text    string
	level   risk.Level
	keyword string
	dropped string // non-empty when the segment was lost
}

// NewController creates an idle controller.
func NewController(t transcriber.Transcriber, opts Options) (*Controller, error) {
	if t == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	opts = opts.withDefaults()

	m := opts.Metrics
	if m == nil {
		m = metrics.NewSessionMetrics(t.Name(), opts.SessionID)
	}

	return &Controller{
		opts:        opts,
		transcriber: t,
		buffer:      audio.NewFrameBuffer(opts.BufferFrames),
		log:         conversation.NewLog(),
		speakers:    NewSpeakers(),
		metrics:     m,
		state:       Idle,
	}, nil
}

// SessionID returns the session this controller serves.
func (c *Controller) SessionID() string { return c.opts.SessionID }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the dispatcher, workers and appender.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrNotIdle
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelWork = cancel
	c.appendDone = make(chan struct{})

	jobs := make(chan audio.Segment)
	results := make(chan recognition, c.opts.Workers)

	go c.dispatch(ctx, jobs)

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx, jobs, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go c.appendLoop(results)

	c.state = Running
	log.Printf("Session %s: pipeline started (%s, %d workers)", c.opts.SessionID, c.transcriber.Name(), c.opts.Workers)
	return nil
}

// Stop closes intake, lets queued audio and in-flight transcriptions finish
// within the grace period, then cancels whatever is left and waits for the
// workers to return. Entries already appended are kept.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.state = Stopped
	c.mu.Unlock()

	c.buffer.Close()

	grace := time.NewTimer(c.opts.StopGrace)
	defer grace.Stop()

	var err error
	select {
	case <-c.appendDone:
	case <-grace.C:
		log.Printf("Session %s: stop grace period of %v expired, cancelling in-flight transcriptions", c.opts.SessionID, c.opts.StopGrace)
		c.cancelWork()
		<-c.appendDone
	case <-ctx.Done():
		c.cancelWork()
		<-c.appendDone
		err = ctx.Err()
	}
	c.cancelWork()
	c.metrics.Finalize()

	log.Printf("Session %s: pipeline stopped (%d entries, %d frames dropped, %d rejected)", c.opts.SessionID, c.log.Len(), c.buffer.Dropped(), c.rejected.Load())
	return err
}

// Push hands a captured frame to the pipeline. It never blocks. It returns
// false if the frame is malformed, the pipeline is stopped or an older frame
// had to be dropped. Malformed frames are counted and never buffered.
func (c *Controller) Push(f audio.Frame) bool {
	if err := f.Validate(); err != nil {
		c.metrics.AddRejected()
		if c.rejected.Add(1) == 1 {
			log.Printf("Session %s: rejecting malformed frame: %v", c.opts.SessionID, err)
		}
		return false
	}
	if f.Arrived.IsZero() {
		f.Arrived = time.Now()
	}
	if c.buffer.Push(f) {
		c.metrics.AddFrame(len(f.Samples), f.Duration())
		return true
	}
	if c.buffer.Drained() || c.State() == Stopped {
		return false
	}
	c.metrics.AddFrame(len(f.Samples), f.Duration())
	c.metrics.AddDropped()
	return false
}

// Dropped returns the number of frames lost to buffer overflow.
func (c *Controller) Dropped() uint64 {
	return c.buffer.Dropped()
}

// Rejected returns the number of malformed frames refused by Push.
func (c *Controller) Rejected() uint64 {
	return c.rejected.Load()
}

// Snapshot returns a copy of the conversation so far.
func (c *Controller) Snapshot() []conversation.Entry {
	return c.log.Snapshot()
}

// Export renders the conversation so far.
func (c *Controller) Export() []byte {
	return conversation.Export(c.log.Snapshot())
}

// Save writes the conversation so far into dir. A failure leaves the
// in-memory conversation untouched.
func (c *Controller) Save(dir string) (string, error) {
	return conversation.Save(dir, c.log.Snapshot(), time.Now())
}

// Speakers returns the session's speaker registry.
func (c *Controller) Speakers() *Speakers {
	return c.speakers
}

// Metrics returns the session counters.
func (c *Controller) Metrics() *metrics.SessionMetrics {
	return c.metrics
}

// dispatch pops frames, groups them into segments and feeds the workers.
// It returns once the buffer is closed and drained.
func (c *Controller) dispatch(ctx context.Context, jobs chan<- audio.Segment) {
	defer close(jobs)
	segmenter := audio.NewSegmenter(c.opts.SegmentDuration)

	submit := func(seg audio.Segment) {
		select {
		case jobs <- seg:
		case <-ctx.Done():
			log.Printf("Session %s: discarding %v segment, pipeline cancelled", c.opts.SessionID, seg.Duration())
		}
	}

	for {
		frame, ok := c.buffer.Pop(c.opts.SilenceGap)
		if !ok {
			if seg, ready := segmenter.Flush(); ready {
				submit(seg)
			}
			if c.buffer.Drained() {
				return
			}
			continue
		}
		if seg, ready := segmenter.Add(frame); ready {
			submit(seg)
		}
	}
}

// work transcribes and classifies segments. Failed segments are reported to
// the appender as drops so the diagnostic is published in order.
func (c *Controller) work(ctx context.Context, jobs <-chan audio.Segment, results chan<- recognition) {
	for seg := range jobs {
		result, attempts := c.opts.Retry.Transcribe(ctx, c.transcriber, seg)
		c.metrics.AddSegment(result.Outcome.String(), attempts)

		switch result.Outcome {
		case transcriber.Recognized:
			text := conversation.NormalizeText(result.Text)
			keyword, high := c.opts.Classifier.Match(text)
			level := risk.Normal
			if high {
				level = risk.High
			}
			results <- recognition{seg: seg, text: text, level: level, keyword: keyword}

		case transcriber.NoSpeechDetected:

		case transcriber.ServiceUnavailable:
			log.Printf("Session %s: dropping %v segment after %d attempts: %s", c.opts.SessionID, seg.Duration(), attempts, result.Reason)
			results <- recognition{seg: seg, dropped: result.Reason}

		case transcriber.Malformed:
			log.Printf("Session %s: discarding malformed segment: %s", c.opts.SessionID, result.Reason)
			results <- recognition{seg: seg, dropped: result.Reason}
		}
	}
}

// appendLoop is the only writer of the conversation log.
func (c *Controller) appendLoop(results <-chan recognition) {
	defer close(c.appendDone)

	for r := range results {
		if r.dropped != "" {
			c.publish(Event{Kind: EventSegmentDropped, SessionID: c.opts.SessionID, Reason: r.dropped})
			continue
		}

		entry := conversation.NewEntry(r.seg.Start, c.speakers.Current(), r.text, r.level)
		if err := c.log.Append(entry); err != nil {
			log.Printf("Session %s: failed to append entry: %v", c.opts.SessionID, err)
			continue
		}
		seq := c.log.Len()
		escalated := entry.Risk == risk.High
		c.metrics.AddEntry(escalated)

		if escalated {
			log.Printf("Session %s: HIGH RISK [%s] %s: %s (keyword %q)", c.opts.SessionID, entry.Timestamp.Format("15:04:05"), entry.Speaker, entry.Text, r.keyword)
		} else {
			log.Printf("Session %s: [%s] %s: %s", c.opts.SessionID, entry.Timestamp.Format("15:04:05"), entry.Speaker, entry.Text)
		}

		action := c.opts.RoutineAction
		if escalated {
			action = c.opts.EscalationAction
		}
		c.publish(Event{Kind: EventEntryReady, SessionID: c.opts.SessionID, Seq: seq, Entry: entry, Action: action})
		if escalated {
			c.publish(Event{Kind: EventEscalation, SessionID: c.opts.SessionID, Seq: seq, Entry: entry, Keyword: r.keyword, Action: c.opts.EscalationAction})
		}
	}
}

func (c *Controller) publish(e Event) {
	for _, sink := range c.opts.Sinks {
		sink.Publish(e)
	}
}
