package audio

import "time"

// Segmenter groups consecutive frames into segments of roughly maxDuration.
// AudioSocket delivers 20ms frames, far too short to recognize on their own.
type Segmenter struct {
	maxDuration time.Duration
	current     Segment
}

// NewSegmenter creates a segmenter that emits a segment once the buffered
// audio reaches maxDuration.
func NewSegmenter(maxDuration time.Duration) *Segmenter {
	return &Segmenter{maxDuration: maxDuration}
}

// Add appends a frame. When the frame completes a segment, or when its format
// differs from the audio already buffered, the finished segment is returned.
func (s *Segmenter) Add(f Frame) (Segment, bool) {
	var out Segment
	var ready bool

	if s.current.Frames > 0 && (f.SampleRate != s.current.SampleRate || f.Channels != s.current.Channels) {
		out, ready = s.Flush()
	}

	if s.current.Frames == 0 {
		s.current = Segment{
			SampleRate: f.SampleRate,
			Channels:   f.Channels,
			Start:      f.Arrived,
		}
	}
	s.current.Samples = append(s.current.Samples, f.Samples...)
	s.current.Frames++

	if !ready && s.current.Duration() >= s.maxDuration {
		return s.Flush()
	}
	return out, ready
}

// Flush returns whatever has been buffered, if anything.
func (s *Segmenter) Flush() (Segment, bool) {
	if s.current.Frames == 0 {
		return Segment{}, false
	}
	out := s.current
	s.current = Segment{}
	return out, true
}

// Pending returns the duration of audio not yet emitted.
func (s *Segmenter) Pending() time.Duration {
	return s.current.Duration()
}
