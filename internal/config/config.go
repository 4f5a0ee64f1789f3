package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is assembled from the environment. Every knob the deployment needs
// lives here; nothing is read from os.Getenv outside this package.
type Config struct {
	Discord DiscordConfig
	Gateway GatewayConfig
	Action  ActionConfig
	Media   MediaConfig
	Debate  DebateConfig
	Log     LogConfig
}

type DiscordConfig struct {
	Token         string `env:"DISCORD_TOKEN"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`
}

// GatewayConfig covers both sides of the claude run façade: the HTTP server
// that wraps the CLI, and the base URL the bot uses to reach it.
type GatewayConfig struct {
	BindAddress    string   `env:"GATEWAY_BIND" envDefault:"0.0.0.0"`
	Port           int      `env:"GATEWAY_PORT" envDefault:"8081"`
	BaseURL        string   `env:"CINDERELLA_URL" envDefault:"http://cc-api:8080"`
	ClaudeBin      string   `env:"CLAUDE_BIN" envDefault:"claude"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	SkipPerms      bool     `env:"CLAUDE_SKIP_PERMISSIONS"`
	Workspace      string   `env:"CLAUDE_WORKSPACE" envDefault:"/workspace"`
}

type ActionConfig struct {
	BindAddress string `env:"API_BIND" envDefault:"0.0.0.0"`
	Port        int    `env:"API_PORT" envDefault:"8080"`
	APIKey      string `env:"DISCORD_BOT_API_KEY"`
}

type MediaConfig struct {
	Dir string `env:"MEDIA_DIR" envDefault:"/app/media"`
	// DisplayRoot is how saved paths are shown to users; the agent sees the
	// media dir mounted at this location.
	DisplayRoot string `env:"MEDIA_DISPLAY_ROOT" envDefault:"/workspace/media"`
}

type DebateConfig struct {
	MaxTurns       int    `env:"DEBATE_MAX_TURNS" envDefault:"5"`
	TranscriptPath string `env:"DEBATE_TRANSCRIPT_DB" envDefault:".cinderella/debates.db"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	Audit string `env:"AUDIT_LOG" envDefault:".cinderella/audit.jsonl"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Discord.Token) == "" {
		return errors.New("config: DISCORD_TOKEN is required and cannot be empty")
	}
	if c.Action.Port <= 0 || c.Action.Port > 65535 {
		return fmt.Errorf("config: invalid API_PORT %d", c.Action.Port)
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("config: invalid GATEWAY_PORT %d", c.Gateway.Port)
	}
	if c.Debate.MaxTurns <= 0 {
		return fmt.Errorf("config: DEBATE_MAX_TURNS must be positive, got %d", c.Debate.MaxTurns)
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LOG_LEVEL %q", c.Log.Level)
	}
	return nil
}

// Origins returns the CORS allow-list with blanks removed. An empty result
// means no cross-origin access is permitted.
func (c GatewayConfig) Origins() []string {
	out := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
