package audio

import "encoding/binary"

// Upsample8To16 doubles the sample rate of 16-bit mono PCM using linear
// interpolation. Telephony audio arrives at 8kHz while most recognizers are
// tuned for 16kHz.
func Upsample8To16(input []byte) []byte {
	samples := make([]int16, len(input)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*2 : i*2+2]))
	}
	if len(samples) == 0 {
		return nil
	}

	upsampled := make([]int16, len(samples)*2)
	for i := 0; i < len(samples)-1; i++ {
		upsampled[i*2] = samples[i]
		upsampled[i*2+1] = int16((int32(samples[i]) + int32(samples[i+1])) / 2)
	}
	last := samples[len(samples)-1]
	upsampled[len(upsampled)-2] = last
	upsampled[len(upsampled)-1] = last

	output := make([]byte, len(upsampled)*2)
	for i, sample := range upsampled {
		binary.LittleEndian.PutUint16(output[i*2:i*2+2], uint16(sample))
	}
	return output
}

// Resample16k returns the segment converted to 16kHz when it is 8kHz mono,
// and unchanged otherwise.
func Resample16k(seg Segment) Segment {
	if seg.SampleRate != 8000 || seg.Channels != 1 {
		return seg
	}
	seg.Samples = Upsample8To16(seg.Samples)
	seg.SampleRate = 16000
	return seg
}
