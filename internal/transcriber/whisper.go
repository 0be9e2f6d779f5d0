package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ellentanhsuling/scribe-bot/internal/audio"
)

// WhisperTranscriber sends each segment as a WAV upload to an
// OpenAI-compatible audio transcription endpoint.
type WhisperTranscriber struct {
	client   *openai.Client
	model    string
	language string
}

// WhisperConfig configures a WhisperTranscriber. BaseURL may point at any
// server implementing /audio/transcriptions.
type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// NewWhisperTranscriber creates a transcriber backed by go-openai.
func NewWhisperTranscriber(cfg WhisperConfig) (*WhisperTranscriber, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		language: cfg.Language,
	}, nil
}

func (wt *WhisperTranscriber) Name() string { return "whisper" }

func (wt *WhisperTranscriber) Transcribe(ctx context.Context, seg audio.Segment) Result {
	seg = audio.Resample16k(seg)

	resp, err := wt.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    wt.model,
		FilePath: "segment.wav",
		Reader:   bytes.NewReader(encodeWAV(seg)),
		Language: wt.language,
	})
	if err != nil {
		return classifyWhisperError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return NoSpeech()
	}
	return Text(text)
}

// classifyWhisperError maps request failures onto outcomes: the client's
// fault is Malformed, everything else is worth retrying.
func classifyWhisperError(err error) Result {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return Invalid("transcription rejected (%d): %v", status, err)
	default:
		return Unavailable("transcription request failed: %v", err)
	}
}
