package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/google/uuid"

	"github.com/ellentanhsuling/scribe-bot/internal/audio"
	"github.com/ellentanhsuling/scribe-bot/internal/journal"
	"github.com/ellentanhsuling/scribe-bot/internal/pipeline"
	"github.com/ellentanhsuling/scribe-bot/internal/transcriber"
)

type Config struct {
	Host            string
	Port            int
	Provider        string // "vosk" or "openai"
	VoskServerURL   string
	Whisper         transcriber.WhisperConfig
	SampleRate      int
	OutputDir       string
	SaveTranscripts bool
	SaveAudio       bool
	Journal         bool
	Pipeline        pipeline.Options // per-session template; SessionID and Sinks are filled in per call
}

type Server struct {
	config      Config
	transcriber transcriber.Transcriber
	sinks       []pipeline.Sink
	wg          sync.WaitGroup
	shutdown    chan struct{}
	stopOnce    sync.Once

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
}

type Session struct {
	id          uuid.UUID
	conn        net.Conn
	server      *Server
	controller  *pipeline.Controller
	journal     *journal.SessionLogger
	dir         string
	audioBuffer []byte
	startTime   time.Time
}

// NewTranscriber builds the recognizer named by config.Provider.
func NewTranscriber(config Config) (transcriber.Transcriber, error) {
	switch config.Provider {
	case "vosk":
		return transcriber.NewVoskTranscriber(config.VoskServerURL)
	case "openai":
		return transcriber.NewWhisperTranscriber(config.Whisper)
	default:
		return nil, fmt.Errorf("unknown provider: %s", config.Provider)
	}
}

// New creates a server using the configured provider. Extra sinks receive
// every session's pipeline events.
func New(config Config, sinks ...pipeline.Sink) (*Server, error) {
	t, err := NewTranscriber(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}
	return NewWithTranscriber(config, t, sinks...)
}

// NewWithTranscriber creates a server that shares t across sessions.
func NewWithTranscriber(config Config, t transcriber.Transcriber, sinks ...pipeline.Sink) (*Server, error) {
	if t == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 8000
	}

	// Create output directory if needed
	if (config.SaveTranscripts || config.SaveAudio || config.Journal) && config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	return &Server{
		config:      config,
		transcriber: t,
		sinks:       sinks,
		shutdown:    make(chan struct{}),
		conns:       make(map[net.Conn]struct{}),
	}, nil
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.Printf("AudioSocket server listening on %s", listener.Addr())
	log.Printf("Transcription provider: %s", s.transcriber.Name())

	for {
		select {
		case <-s.shutdown:
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return nil
				default:
					log.Printf("Accept error: %v", err)
					continue
				}
			}

			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}
}

// Addr returns the listening address, or nil before Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting calls, disconnects active ones and waits for their
// sessions to finalize. It may be called more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdown) })
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) track(conn net.Conn, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	s.track(conn, true)
	defer s.track(conn, false)

	s.serve(conn)
}

// serve runs one AudioSocket call to completion.
func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	log.Printf("New connection from %s", conn.RemoteAddr())

	// Read the initial ID message
	id, err := audiosocket.GetID(conn)
	if err != nil {
		log.Printf("Failed to get ID: %v", err)
		return
	}

	session, err := s.newSession(id, conn)
	if err != nil {
		log.Printf("Session %s: failed to start: %v", id, err)
		return
	}
	log.Printf("Session %s started with %s", id, s.transcriber.Name())

	reason := "hangup"
	for {
		msg, err := audiosocket.NextMessage(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("Session %s: Failed to read message: %v", id, err)
			}
			reason = "disconnected"
			break
		}

		if err := session.handleMessage(msg); err != nil {
			log.Printf("Session %s: Error handling message: %v", id, err)
			reason = "error"
			break
		}

		if msg.Kind() == audiosocket.KindHangup {
			log.Printf("Session %s: Received hangup", id)
			break
		}
	}

	session.finalize(reason)

	duration := time.Since(session.startTime)
	log.Printf("Session %s ended (Duration: %v, Provider: %s)", id, duration, s.transcriber.Name())
}

func (s *Server) newSession(id uuid.UUID, conn net.Conn) (*Session, error) {
	session := &Session{
		id:        id,
		conn:      conn,
		server:    s,
		startTime: time.Now(),
	}
	session.dir = filepath.Join(s.config.OutputDir, fmt.Sprintf("%s_%s", session.startTime.Format("20060102_150405"), id.String()[:8]))

	opts := s.config.Pipeline
	opts.SessionID = id.String()
	opts.Sinks = append([]pipeline.Sink(nil), s.sinks...)

	if s.config.Journal {
		jl, err := journal.NewSessionLogger(session.dir, opts.SessionID, session.startTime)
		if err != nil {
			log.Printf("Session %s: journal disabled: %v", id, err)
		} else {
			session.journal = jl
			opts.Sinks = append(opts.Sinks, jl)
			jl.LogSessionStart(opts.SessionID, s.transcriber.Name(), session.startTime)
		}
	}

	controller, err := pipeline.NewController(s.transcriber, opts)
	if err != nil {
		session.closeJournal()
		return nil, err
	}
	if err := controller.Start(); err != nil {
		session.closeJournal()
		return nil, err
	}
	session.controller = controller
	return session, nil
}

// ID returns the AudioSocket call identifier.
func (session *Session) ID() string {
	return session.id.String()
}

func (session *Session) handleMessage(msg audiosocket.Message) error {
	switch msg.Kind() {
	case audiosocket.KindSlin:
		audioData := msg.Payload()
		if len(audioData) > 0 {
			samples := make([]byte, len(audioData))
			copy(samples, audioData)
			frame := audio.Frame{
				Samples:    samples,
				SampleRate: session.server.config.SampleRate,
				Channels:   1,
				Arrived:    time.Now(),
			}
			session.controller.Push(frame)

			// Buffer audio for saving if configured
			if session.server.config.SaveAudio {
				session.audioBuffer = append(session.audioBuffer, samples...)
			}
		}

	case audiosocket.KindDTMF:
		if len(msg.Payload()) > 0 {
			digit := msg.Payload()[0]
			log.Printf("Session %s: DTMF digit: %c", session.id, digit)
			session.handleDTMF(digit)
		}

	case audiosocket.KindSilence:
		log.Printf("Session %s: Silence detected", session.id)

	case audiosocket.KindError:
		errCode := msg.ErrorCode()
		return fmt.Errorf("received error code: %d", errCode)
	}

	return nil
}

// handleDTMF maps keypad digits to operator actions: '*' adds a speaker,
// '1'-'9' selects PersonN, '0' clears the selection and '#' saves now.
func (session *Session) handleDTMF(digit byte) {
	speakers := session.controller.Speakers()
	switch {
	case digit == '*':
		label := speakers.Add()
		log.Printf("Session %s: added speaker %s", session.id, label)
		session.logOperator("add_speaker", label)

	case digit >= '1' && digit <= '9':
		label := fmt.Sprintf("Person%c", digit)
		if err := speakers.Select(label); err != nil {
			log.Printf("Session %s: cannot select %s: %v", session.id, label, err)
			return
		}
		log.Printf("Session %s: current speaker %s", session.id, label)
		session.logOperator("select_speaker", label)

	case digit == '0':
		speakers.Clear()
		log.Printf("Session %s: speaker selection cleared", session.id)
		session.logOperator("clear_speaker", "")

	case digit == '#':
		session.saveTranscript()

	default:
		log.Printf("Session %s: ignoring DTMF %c", session.id, digit)
	}
}

func (session *Session) logOperator(action, detail string) {
	if session.journal != nil {
		session.journal.LogOperator(session.ID(), action, detail)
	}
}

func (session *Session) saveTranscript() {
	path, err := session.controller.Save(session.dir)
	if session.journal != nil {
		session.journal.LogExport(session.ID(), path, err)
	}
	if err != nil {
		log.Printf("Session %s: Failed to save transcript: %v", session.id, err)
		return
	}
	log.Printf("Session %s: Transcript saved to %s", session.id, path)
}

func (session *Session) closeJournal() {
	if session.journal != nil {
		if err := session.journal.Close(); err != nil {
			log.Printf("Session %s: failed to close journal: %v", session.id, err)
		}
	}
}

func (session *Session) finalize(reason string) {
	config := session.server.config

	// Stop applies its own grace period before cancelling in-flight work.
	if err := session.controller.Stop(context.Background()); err != nil {
		log.Printf("Session %s: pipeline stop: %v", session.id, err)
	}

	if config.SaveTranscripts && len(session.controller.Snapshot()) > 0 {
		session.saveTranscript()
	}

	// Save raw audio if configured
	if config.SaveAudio && len(session.audioBuffer) > 0 {
		audioFilename := filepath.Join(session.dir, fmt.Sprintf("audio_%dhz.raw", config.SampleRate))
		err := os.MkdirAll(session.dir, 0755)
		if err == nil {
			err = os.WriteFile(audioFilename, session.audioBuffer, 0644)
		}
		if err != nil {
			log.Printf("Session %s: Failed to save audio: %v", session.id, err)
		} else {
			log.Printf("Session %s: Audio saved to %s (%.2f seconds)",
				session.id,
				audioFilename,
				float64(len(session.audioBuffer))/(float64(config.SampleRate)*audio.BytesPerSample))
		}
	}

	log.Print(session.controller.Metrics().Summary())

	if session.journal != nil {
		session.journal.LogSessionEnd(session.ID(), time.Now(), reason)
	}
	session.closeJournal()
}
