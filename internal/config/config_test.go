package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks the overrides so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SCRIBE_PROVIDER", "VOSK_URL", "OPENAI_API_KEY", "OPENAI_BASE_URL", "REDIS_ADDR", "REDIS_PASSWORD"} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func missingEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", missingEnv(t))
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Transcription.Provider != "vosk" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Pipeline.StopGrace != 5*time.Second || cfg.Transcription.Attempts != 3 {
		t.Errorf("unexpected pipeline defaults %+v", cfg.Pipeline)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
server:
  host: 127.0.0.1
  port: 9092
transcription:
  provider: openai
  openai:
    api_key: sk-test
    language: fr
  timeout: 4s
pipeline:
  workers: 3
  segment_duration: 1500ms
risk:
  keywords_file: ./keywords.yaml
redis:
  addr: localhost:6379
`)
	cfg, err := Load(path, missingEnv(t))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9092 {
		t.Errorf("unexpected server %+v", cfg.Server)
	}
	if cfg.Transcription.OpenAI.APIKey != "sk-test" || cfg.Transcription.OpenAI.Language != "fr" {
		t.Errorf("unexpected openai %+v", cfg.Transcription.OpenAI)
	}
	if cfg.Transcription.OpenAI.Model != "whisper-1" {
		t.Errorf("unset fields should keep defaults, got model %q", cfg.Transcription.OpenAI.Model)
	}
	if cfg.Transcription.Timeout != 4*time.Second || cfg.Pipeline.SegmentDuration != 1500*time.Millisecond {
		t.Errorf("durations not parsed: %v %v", cfg.Transcription.Timeout, cfg.Pipeline.SegmentDuration)
	}
	if cfg.Pipeline.Workers != 3 || cfg.Risk.KeywordsFile != "./keywords.yaml" || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOSK_URL", "ws://vosk:2700")
	t.Setenv("REDIS_PASSWORD", "secret")

	cfg, err := Load("", missingEnv(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcription.VoskURL != "ws://vosk:2700" || cfg.Redis.Password != "secret" {
		t.Errorf("environment overrides not applied: %+v", cfg)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("SCRIBE_PROVIDER")
	envFile := writeFile(t, ".env", "OPENAI_API_KEY=sk-from-file\nSCRIBE_PROVIDER=openai\n")
	t.Cleanup(func() {
		os.Unsetenv("OPENAI_API_KEY")
		os.Unsetenv("SCRIBE_PROVIDER")
	})

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcription.Provider != "openai" || cfg.Transcription.OpenAI.APIKey != "sk-from-file" {
		t.Errorf(".env values not applied: %+v", cfg.Transcription)
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		errText string
	}{
		{"unknown provider", "transcription:\n  provider: deepgram\n", "unknown transcription provider"},
		{"openai without key", "transcription:\n  provider: openai\n", "OPENAI_API_KEY"},
		{"bad port", "server:\n  port: 70000\n", "out of range"},
		{"zero workers", "pipeline:\n  workers: 0\n", "workers"},
		{"unknown field", "server:\n  hostname: x\n", "failed to parse"},
		{"bad duration", "transcription:\n  timeout: soon\n", "failed to parse"},
		{"no output dir", "output:\n  dir: \"\"\n", "output.dir"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			path := writeFile(t, "config.yaml", tc.content)
			_, err := Load(path, missingEnv(t))
			if err == nil || !strings.Contains(err.Error(), tc.errText) {
				t.Errorf("expected error containing %q, got %v", tc.errText, err)
			}
		})
	}

	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), missingEnv(t)); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "")
	if _, err := Load(path, missingEnv(t)); err != nil {
		t.Errorf("empty config should fall back to defaults, got %v", err)
	}
}

func TestLoadMissingDefaultPath(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load(DefaultPath, missingEnv(t))
	if err != nil {
		t.Fatalf("missing %s should fall back to defaults, got %v", DefaultPath, err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}

	if err := os.WriteFile(DefaultPath, []byte("server:\n  port: 9999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(DefaultPath, missingEnv(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("existing %s should be read, got port %d", DefaultPath, cfg.Server.Port)
	}
}
