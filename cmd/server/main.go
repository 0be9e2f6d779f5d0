package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ellentanhsuling/scribe-bot/internal/config"
	"github.com/ellentanhsuling/scribe-bot/internal/pipeline"
	"github.com/ellentanhsuling/scribe-bot/internal/publish"
	"github.com/ellentanhsuling/scribe-bot/internal/risk"
	"github.com/ellentanhsuling/scribe-bot/internal/server"
	"github.com/ellentanhsuling/scribe-bot/internal/transcriber"
)

func main() {
	var configFile, envFile string
	flag.StringVar(&configFile, "config", config.DefaultPath, "Configuration file path (empty for defaults)")
	flag.StringVar(&envFile, "env", "", "Optional .env file (defaults to ./.env)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	classifier, err := risk.LoadClassifier(cfg.Risk.KeywordsFile)
	if err != nil {
		log.Fatalf("Failed to load risk keywords: %v", err)
	}

	var sinks []pipeline.Sink
	var redisPub *publish.Redis
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		client, err := publish.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		redisPub = publish.NewRedis(client, cfg.Redis.Prefix, 0)
		sinks = append(sinks, redisPub)
		log.Printf("Publishing events to Redis %s (prefix %q)", cfg.Redis.Addr, cfg.Redis.Prefix)
	}

	// Create and start server
	srv, err := server.New(server.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		Provider:      cfg.Transcription.Provider,
		VoskServerURL: cfg.Transcription.VoskURL,
		Whisper: transcriber.WhisperConfig{
			APIKey:   cfg.Transcription.OpenAI.APIKey,
			BaseURL:  cfg.Transcription.OpenAI.BaseURL,
			Model:    cfg.Transcription.OpenAI.Model,
			Language: cfg.Transcription.OpenAI.Language,
		},
		SampleRate:      cfg.Audio.SampleRate,
		OutputDir:       cfg.Output.Dir,
		SaveTranscripts: cfg.Output.SaveTranscripts,
		SaveAudio:       cfg.Output.SaveAudio,
		Journal:         cfg.Output.Journal,
		Pipeline: pipeline.Options{
			BufferFrames:    cfg.Pipeline.BufferFrames,
			SegmentDuration: cfg.Pipeline.SegmentDuration,
			SilenceGap:      cfg.Pipeline.SilenceGap,
			Workers:         cfg.Pipeline.Workers,
			Retry: transcriber.RetryPolicy{
				MaxAttempts:    cfg.Transcription.Attempts,
				InitialBackoff: cfg.Transcription.InitialBackoff,
				MaxBackoff:     cfg.Transcription.MaxBackoff,
				RequestTimeout: cfg.Transcription.Timeout,
			},
			StopGrace:        cfg.Pipeline.StopGrace,
			EscalationAction: cfg.Pipeline.EscalationAction,
			RoutineAction:    cfg.Pipeline.RoutineAction,
			Classifier:       classifier,
		},
	}, sinks...)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	srv.Stop()
	if redisPub != nil {
		redisPub.Close()
		if n := redisPub.Dropped(); n > 0 {
			log.Printf("Redis publisher dropped %d events", n)
		}
	}
}
