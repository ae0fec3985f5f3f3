// Package relay parses relay command flags and composes transport entrypoints.
package relay

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/perriault/chatrelay/internal/platform/cmd"
	server "github.com/perriault/chatrelay/internal/services/relay/app"
)

// Config holds relay command configuration.
type Config struct {
	HTTPAddr         string `env:"CHATRELAY_HTTP_ADDR"          envDefault:":8080"`
	BotName          string `env:"CHATRELAY_BOT_NAME"           envDefault:"ChatBot"`
	BotWakeword      string `env:"CHATRELAY_BOT_WAKEWORD"       envDefault:"ChatBot"`
	BotModel         string `env:"CHATRELAY_BOT_MODEL"`
	PublicBotEnabled bool   `env:"CHATRELAY_PUBLIC_BOT_ENABLED" envDefault:"true"`
	OpenAIAPIKey     string `env:"CHATRELAY_OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"CHATRELAY_OPENAI_BASE_URL"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "relay HTTP listen address")
	fs.StringVar(&cfg.BotName, "bot-name", cfg.BotName, "assistant display name")
	fs.StringVar(&cfg.BotWakeword, "bot-wakeword", cfg.BotWakeword, "assistant public wake word")
	fs.StringVar(&cfg.BotModel, "bot-model", cfg.BotModel, "assistant completion model")
	fs.BoolVar(&cfg.PublicBotEnabled, "public-bot", cfg.PublicBotEnabled, "allow the wake word to trigger public assistant turns")
	fs.StringVar(&cfg.OpenAIAPIKey, "openai-api-key", cfg.OpenAIAPIKey, "OpenAI API key (empty disables the assistant)")
	fs.StringVar(&cfg.OpenAIBaseURL, "openai-base-url", cfg.OpenAIBaseURL, "OpenAI API base URL override")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the relay app and starts realtime transport behavior.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRelay, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:         cfg.HTTPAddr,
			BotName:          cfg.BotName,
			BotWakeword:      cfg.BotWakeword,
			BotModel:         cfg.BotModel,
			PublicBotEnabled: cfg.PublicBotEnabled,
			OpenAIAPIKey:     cfg.OpenAIAPIKey,
			OpenAIBaseURL:    cfg.OpenAIBaseURL,
		}); err != nil {
			return fmt.Errorf("serve relay: %w", err)
		}
		return nil
	})
}
