package transcriber

import (
	"bytes"
	"encoding/binary"

	"github.com/ellentanhsuling/scribe-bot/internal/audio"
)

// encodeWAV wraps 16-bit PCM in a canonical 44-byte RIFF header so HTTP
// recognizers that sniff the container accept it.
func encodeWAV(seg audio.Segment) []byte {
	dataLen := uint32(len(seg.Samples))
	blockAlign := uint16(seg.Channels * audio.BytesPerSample)
	byteRate := uint32(seg.SampleRate) * uint32(blockAlign)

	var b bytes.Buffer
	b.Grow(44 + len(seg.Samples))
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, 36+dataLen)
	b.WriteString("WAVE")

	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(seg.Channels))
	binary.Write(&b, binary.LittleEndian, uint32(seg.SampleRate))
	binary.Write(&b, binary.LittleEndian, byteRate)
	binary.Write(&b, binary.LittleEndian, blockAlign)
	binary.Write(&b, binary.LittleEndian, uint16(audio.BytesPerSample*8))

	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, dataLen)
	b.Write(seg.Samples)
	return b.Bytes()
}
