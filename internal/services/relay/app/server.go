package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/perriault/chatrelay/internal/platform/timeouts"
	"github.com/perriault/chatrelay/internal/services/assistant"
	"github.com/perriault/chatrelay/internal/services/assistant/openai"
)

// Config defines the inputs for the relay transport boundary.
//
// The assistant fields are optional: without an API key the relay runs as a
// plain room broadcaster and assistant commands report the bot as inactive.
type Config struct {
	HTTPAddr          string
	BotName           string
	BotWakeword       string
	BotModel          string
	PublicBotEnabled  bool
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the relay HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// NewServer builds the relay process from config: the room handler, and the
// assistant when an OpenAI API key is configured.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	var bot *assistant.Bot
	if strings.TrimSpace(config.OpenAIAPIKey) != "" {
		client, err := openai.New(openai.Config{
			APIKey:  config.OpenAIAPIKey,
			BaseURL: config.OpenAIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("build openai client: %w", err)
		}
		bot, err = assistant.New(assistant.Config{
			Name:              config.BotName,
			Wakeword:          config.BotWakeword,
			Model:             config.BotModel,
			PublicWakeEnabled: config.PublicBotEnabled,
			Completions:       client,
			Moderations:       client,
		})
		if err != nil {
			return nil, fmt.Errorf("build assistant: %w", err)
		}
	} else {
		log.Printf("relay: no OpenAI API key configured, assistant inactive")
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(bot, config.BotName, config.BotWakeword),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
	}, nil
}

// Run builds a relay server from config and serves until ctx is cancelled.
func Run(ctx context.Context, config Config) error {
	srv, err := NewServer(config)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("relay server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("relay server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
