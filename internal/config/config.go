package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"` // AudioSocket slin is 8kHz mono
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type TranscriptionConfig struct {
	Provider       string        `yaml:"provider"` // "vosk" or "openai"
	VoskURL        string        `yaml:"vosk_url"`
	OpenAI         OpenAIConfig  `yaml:"openai"`
	Timeout        time.Duration `yaml:"timeout"`
	Attempts       int           `yaml:"attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type PipelineConfig struct {
	Workers          int           `yaml:"workers"`
	BufferFrames     int           `yaml:"buffer_frames"`
	SegmentDuration  time.Duration `yaml:"segment_duration"`
	SilenceGap       time.Duration `yaml:"silence_gap"`
	StopGrace        time.Duration `yaml:"stop_grace"`
	EscalationAction string        `yaml:"escalation_action"`
	RoutineAction    string        `yaml:"routine_action"`
}

type RiskConfig struct {
	KeywordsFile string `yaml:"keywords_file"`
}

type OutputConfig struct {
	Dir             string `yaml:"dir"`
	SaveTranscripts bool   `yaml:"save_transcripts"`
	SaveAudio       bool   `yaml:"save_audio"`
	Journal         bool   `yaml:"journal"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables publishing
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Config is the scribe server configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Risk          RiskConfig          `yaml:"risk"`
	Output        OutputConfig        `yaml:"output"`
	Redis         RedisConfig         `yaml:"redis"`
}

// DefaultPath is the config file read when none is named. Unlike an explicit
// path, it may be absent.
const DefaultPath = "config.yaml"

// Default returns a configuration with every tunable set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Audio:  AudioConfig{SampleRate: 8000},
		Transcription: TranscriptionConfig{
			Provider:       "vosk",
			VoskURL:        "ws://localhost:2700",
			OpenAI:         OpenAIConfig{Model: "whisper-1", Language: "en"},
			Timeout:        10 * time.Second,
			Attempts:       3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:          1,
			BufferFrames:     500,
			SegmentDuration:  3 * time.Second,
			SilenceGap:       500 * time.Millisecond,
			StopGrace:        5 * time.Second,
			EscalationAction: "contact-responder",
			RoutineAction:    "contact-guardian",
		},
		Output: OutputConfig{Dir: "./transcripts", SaveTranscripts: true, Journal: true},
		Redis:  RedisConfig{Prefix: "scribe:"},
	}
}

// Load reads the YAML file at path over the defaults, then applies .env and
// environment overrides. An empty path, or a missing DefaultPath, skips the file.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path == DefaultPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			log.Printf("No %s found, using default configuration", path)
			path = ""
		}
	}

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile loads .env style variables without overriding the environment.
// A missing file is not an error.
func loadEnvFile(envFile string) error {
	var err error
	if envFile == "" {
		err = godotenv.Load()
	} else {
		err = godotenv.Load(envFile)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

func (cfg *Config) applyEnv() {
	cfg.Transcription.Provider = getEnv("SCRIBE_PROVIDER", cfg.Transcription.Provider)
	cfg.Transcription.VoskURL = getEnv("VOSK_URL", cfg.Transcription.VoskURL)
	cfg.Transcription.OpenAI.APIKey = getEnv("OPENAI_API_KEY", cfg.Transcription.OpenAI.APIKey)
	cfg.Transcription.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", cfg.Transcription.OpenAI.BaseURL)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
}

// Validate reports the first invalid setting.
func (cfg *Config) Validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	switch cfg.Transcription.Provider {
	case "vosk":
		if cfg.Transcription.VoskURL == "" {
			return fmt.Errorf("transcription.vosk_url (or VOSK_URL) is required for the vosk provider")
		}
	case "openai":
		if cfg.Transcription.OpenAI.APIKey == "" && cfg.Transcription.OpenAI.BaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown transcription provider: %s", cfg.Transcription.Provider)
	}
	if cfg.Transcription.Attempts < 1 {
		return fmt.Errorf("transcription.attempts must be at least 1")
	}
	if cfg.Transcription.Timeout <= 0 {
		return fmt.Errorf("transcription.timeout must be positive")
	}
	if cfg.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	if cfg.Pipeline.BufferFrames < 1 {
		return fmt.Errorf("pipeline.buffer_frames must be at least 1")
	}
	if cfg.Pipeline.SegmentDuration <= 0 {
		return fmt.Errorf("pipeline.segment_duration must be positive")
	}
	if (cfg.Output.SaveTranscripts || cfg.Output.SaveAudio || cfg.Output.Journal) && cfg.Output.Dir == "" {
		return fmt.Errorf("output.dir is required when saving output")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
