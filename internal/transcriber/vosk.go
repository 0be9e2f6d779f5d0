package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ellentanhsuling/scribe-bot/internal/audio"
)

// VoskTranscriber recognizes each segment on its own WebSocket session with
// a Vosk server: audio in, EOF marker, then the final result.
type VoskTranscriber struct {
	serverURL string
	dialer    *websocket.Dialer
	chunkSize int
}

// VoskResult is a message from the Vosk server. Partial messages carry only
// "partial"; the final message carries "text", possibly empty.
type VoskResult struct {
	Text   *string `json:"text"`
	Result []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

// NewVoskTranscriber creates a transcriber for the Vosk server at serverURL
// (for example ws://localhost:2700).
func NewVoskTranscriber(serverURL string) (*VoskTranscriber, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("Vosk server URL is required")
	}
	return &VoskTranscriber{
		serverURL: strings.TrimRight(serverURL, "/"),
		dialer:    &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		chunkSize: 8000,
	}, nil
}

func (vt *VoskTranscriber) Name() string { return "vosk" }

func (vt *VoskTranscriber) Transcribe(ctx context.Context, seg audio.Segment) Result {
	// Connect to Vosk server WebSocket
	url := fmt.Sprintf("%s/ws?sample_rate=%d", vt.serverURL, seg.SampleRate)
	conn, _, err := vt.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return Unavailable("failed to connect to Vosk server: %v", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	config := fmt.Sprintf(`{"config" : {"sample_rate" : %d}}`, seg.SampleRate)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(config)); err != nil {
		return Unavailable("failed to configure Vosk: %v", err)
	}

	for off := 0; off < len(seg.Samples); off += vt.chunkSize {
		end := off + vt.chunkSize
		if end > len(seg.Samples) {
			end = len(seg.Samples)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, seg.Samples[off:end]); err != nil {
			return Unavailable("failed to send audio to Vosk: %v", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		return Unavailable("failed to send EOF to Vosk: %v", err)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Unavailable("Vosk request cancelled: %v", ctxErr)
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseUnsupportedData {
				return Invalid("Vosk rejected audio: %s", closeErr.Text)
			}
			return Unavailable("Vosk connection lost before final result: %v", err)
		}

		var result VoskResult
		if err := json.Unmarshal(message, &result); err != nil {
			log.Printf("Failed to parse Vosk result: %v", err)
			continue
		}
		if result.Text == nil {
			continue // partial
		}

		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		text := strings.TrimSpace(*result.Text)
		if text == "" {
			return NoSpeech()
		}
		return Text(text)
	}
}
