package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// FlexibleID accepts both `"123"` and `123` in JSON, for guild/channel ids
// that some upstream config tooling emits as JSON numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

// Config is the root process configuration (§5, §7 ambient settings),
// loaded from a JSON file then overlaid with environment variables.
// Grounded on the teacher's internal/config.Config (root struct shape,
// file-then-env-overlay Load idiom) adapted from its many-channel/provider
// shape down to this single-platform bot's settings.
type Config struct {
	Discord    DiscordConfig    `json:"discord"`
	LLM        LLMConfig        `json:"llm"`
	DataDir    string           `json:"data_dir"`
	Restart    RestartConfig    `json:"restart"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
}

// DiscordConfig configures the gateway connection.
type DiscordConfig struct {
	Token string `json:"-"` // from env DISCORDCTX_DISCORD_TOKEN only, never persisted
}

// LLMConfig configures the registered providers.
type LLMConfig struct {
	DefaultModel string              `json:"default_model"`
	Providers    map[string]Provider `json:"providers,omitempty"`
}

// Provider is one entry in LLMConfig.Providers, keyed by the
// "<provider>/" model-id prefix it serves.
type Provider struct {
	APIKey  string `json:"-"` // from env DISCORDCTX_<PREFIX>_API_KEY only
	APIBase string `json:"api_base,omitempty"`
}

// RestartConfig configures the §5 auto-restart poller.
type RestartConfig struct {
	MaxUptimeHours int    `json:"max_uptime_hours"`
	CheckInterval  string `json:"check_interval"` // duration string, e.g. "10m"
}

// TelemetryConfig holds the tracing settings. Only ServiceName is passed to
// telemetry.Init; Endpoint is loaded but no exporter is attached to it.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		DataDir: "data",
		LLM: LLMConfig{
			DefaultModel: "openai/gpt-4o",
		},
		Restart: RestartConfig{
			MaxUptimeHours: 24,
			CheckInterval:  "10m",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "discordctx",
		},
	}
}

// Load reads config from a JSON file (missing file is not an error — the
// defaults plus env overrides are used instead), then overlays environment
// variables, which always take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("DISCORDCTX_DISCORD_TOKEN", &c.Discord.Token)
	envStr("DISCORDCTX_DATA_DIR", &c.DataDir)
	envStr("DISCORDCTX_DEFAULT_MODEL", &c.LLM.DefaultModel)
	envStr("DISCORDCTX_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)

	if v := os.Getenv("DISCORDCTX_MAX_UPTIME_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Restart.MaxUptimeHours = n
		}
	}

	if c.LLM.Providers == nil {
		c.LLM.Providers = make(map[string]Provider)
	}
	for _, prefix := range []string{"OPENAI", "ANTHROPIC", "OPENROUTER", "GROQ", "DEEPSEEK", "GEMINI", "LOCAL"} {
		key := os.Getenv("DISCORDCTX_" + prefix + "_API_KEY")
		base := os.Getenv("DISCORDCTX_" + prefix + "_API_BASE")
		if key == "" && base == "" {
			continue
		}
		lower := prefix
		switch prefix {
		case "OPENAI":
			lower = "openai"
		case "ANTHROPIC":
			lower = "anthropic"
		case "OPENROUTER":
			lower = "openrouter"
		case "GROQ":
			lower = "groq"
		case "DEEPSEEK":
			lower = "deepseek"
		case "GEMINI":
			lower = "gemini"
		case "LOCAL":
			lower = "local"
		}
		p := c.LLM.Providers[lower]
		if key != "" {
			p.APIKey = key
		}
		if base != "" {
			p.APIBase = base
		}
		c.LLM.Providers[lower] = p
	}
}
