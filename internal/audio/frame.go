package audio

import (
	"fmt"
	"time"
)

// BytesPerSample is fixed: AudioSocket and the recognizers all speak 16-bit
// signed linear PCM.
const BytesPerSample = 2

// Frame is one block of raw PCM delivered by the capture source.
type Frame struct {
	Samples    []byte
	SampleRate int
	Channels   int
	Arrived    time.Time
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return pcmDuration(len(f.Samples), f.SampleRate, f.Channels)
}

// Validate reports why the frame cannot be treated as 16-bit PCM.
func (f Frame) Validate() error {
	return CheckPCM(len(f.Samples), f.SampleRate, f.Channels)
}

// CheckPCM reports why n bytes at sampleRate and channels are not whole
// 16-bit PCM samples.
func CheckPCM(n, sampleRate, channels int) error {
	switch {
	case n == 0:
		return fmt.Errorf("no audio")
	case sampleRate <= 0:
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	case channels < 1 || channels > 2:
		return fmt.Errorf("unsupported channel count %d", channels)
	case n%(BytesPerSample*channels) != 0:
		return fmt.Errorf("length %d is not a whole number of %d-channel 16-bit samples", n, channels)
	}
	return nil
}

// Segment is one or more frames grouped for a single transcription attempt.
type Segment struct {
	Samples    []byte
	SampleRate int
	Channels   int
	Start      time.Time // arrival time of the first frame
	Frames     int
}

// Duration returns the playback length of the segment.
func (s Segment) Duration() time.Duration {
	return pcmDuration(len(s.Samples), s.SampleRate, s.Channels)
}

func pcmDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (BytesPerSample * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
