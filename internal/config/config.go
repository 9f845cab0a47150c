package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceFile    string `yaml:"trace_file"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	ClientName  string            `yaml:"client_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	API         APIConfig         `yaml:"api"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Session     SessionConfig     `yaml:"session"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	STT         STTConfig         `yaml:"stt"`
	TTS         TTSConfig         `yaml:"tts"`
}

// APIConfig points at the remote health-assistant backend.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type PreferencesConfig struct {
	Backend       string `yaml:"backend"` // sqlite, redis, memory
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisKey      string `yaml:"redis_key"`
}

type GatewayConfig struct {
	Mode          string  `yaml:"mode"` // http, openai, mock
	OpenAIKey     string  `yaml:"openai_api_key"`
	OpenAIBaseURL string  `yaml:"openai_base_url"`
	OpenAIModel   string  `yaml:"openai_model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
}

type SessionConfig struct {
	AutoSpeak bool `yaml:"auto_speak"`
	MaxAlerts int  `yaml:"max_alerts"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	ModelPath  string `yaml:"model_path"`
	Input      string `yaml:"input"` // silence, wav, bus
	Source     string `yaml:"source"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	OutputDir  string `yaml:"output_dir"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

func Default() Config {
	return Config{
		ClientName:  "aacharya-client",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		API: APIConfig{
			BaseURL:   "http://localhost:8000",
			TimeoutMS: 30000,
		},
		Preferences: PreferencesConfig{
			Backend:  "sqlite",
			Path:     "./data/aacharya-prefs.db",
			RedisKey: "aacharya:prefs",
		},
		Gateway: GatewayConfig{
			Mode:        "http",
			OpenAIModel: "gpt-4o-mini",
			MaxTokens:   512,
			Temperature: 0.3,
		},
		Session: SessionConfig{
			AutoSpeak: false,
			MaxAlerts: 5,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/aacharya-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		STT: STTConfig{
			Enabled:    false,
			Mode:       "mock",
			Input:      "silence",
			SampleRate: 16000,
			Channels:   1,
			TimeoutMS:  45000,
		},
		TTS: TTSConfig{
			Enabled:    false,
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ClientName, "AACHARYA_CLIENT_NAME")
	overrideString(&cfg.Environment, "AACHARYA_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "AACHARYA_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "AACHARYA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "AACHARYA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "AACHARYA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFile, "AACHARYA_TELEMETRY_LOG_FILE")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "AACHARYA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "AACHARYA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.TraceFile, "AACHARYA_TELEMETRY_TRACE_FILE")
	overrideString(&cfg.API.BaseURL, "AACHARYA_API_BASE_URL")
	overrideInt(&cfg.API.TimeoutMS, "AACHARYA_API_TIMEOUT_MS")
	overrideString(&cfg.Preferences.Backend, "AACHARYA_PREFERENCES_BACKEND")
	overrideString(&cfg.Preferences.Path, "AACHARYA_PREFERENCES_PATH")
	overrideString(&cfg.Preferences.RedisAddr, "AACHARYA_PREFERENCES_REDIS_ADDR")
	overrideString(&cfg.Preferences.RedisPassword, "AACHARYA_PREFERENCES_REDIS_PASSWORD")
	overrideInt(&cfg.Preferences.RedisDB, "AACHARYA_PREFERENCES_REDIS_DB")
	overrideString(&cfg.Preferences.RedisKey, "AACHARYA_PREFERENCES_REDIS_KEY")
	overrideString(&cfg.Gateway.Mode, "AACHARYA_GATEWAY_MODE")
	overrideString(&cfg.Gateway.OpenAIKey, "OPENAI_API_KEY")
	overrideString(&cfg.Gateway.OpenAIBaseURL, "AACHARYA_GATEWAY_OPENAI_BASE_URL")
	overrideString(&cfg.Gateway.OpenAIModel, "AACHARYA_GATEWAY_OPENAI_MODEL")
	overrideInt(&cfg.Gateway.MaxTokens, "AACHARYA_GATEWAY_MAX_TOKENS")
	overrideFloat(&cfg.Gateway.Temperature, "AACHARYA_GATEWAY_TEMPERATURE")
	overrideBool(&cfg.Session.AutoSpeak, "AACHARYA_SESSION_AUTO_SPEAK")
	overrideInt(&cfg.Session.MaxAlerts, "AACHARYA_SESSION_MAX_ALERTS")
	overrideBool(&cfg.Bus.Enabled, "AACHARYA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "AACHARYA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "AACHARYA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "AACHARYA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "AACHARYA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "AACHARYA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "AACHARYA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "AACHARYA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "AACHARYA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "AACHARYA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "AACHARYA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "AACHARYA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "AACHARYA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "AACHARYA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "AACHARYA_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.STT.Enabled, "AACHARYA_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "AACHARYA_STT_MODE")
	overrideString(&cfg.STT.Command, "AACHARYA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "AACHARYA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Input, "AACHARYA_STT_INPUT")
	overrideString(&cfg.STT.Source, "AACHARYA_STT_SOURCE")
	overrideInt(&cfg.STT.SampleRate, "AACHARYA_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "AACHARYA_STT_CHANNELS")
	overrideInt(&cfg.STT.TimeoutMS, "AACHARYA_STT_TIMEOUT_MS")
	overrideBool(&cfg.TTS.Enabled, "AACHARYA_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "AACHARYA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "AACHARYA_TTS_COMMAND")
	overrideString(&cfg.TTS.OutputDir, "AACHARYA_TTS_OUTPUT_DIR")
	overrideInt(&cfg.TTS.SampleRate, "AACHARYA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "AACHARYA_TTS_CHANNELS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ClientName == "" {
		return errors.New("client_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return errors.New("api.base_url must not be empty")
	}
	if cfg.API.TimeoutMS <= 0 {
		return errors.New("api.timeout_ms must be positive")
	}
	switch cfg.Preferences.Backend {
	case "sqlite":
		if cfg.Preferences.Path == "" {
			return errors.New("preferences.path must be set when backend=sqlite")
		}
	case "redis":
		if cfg.Preferences.RedisAddr == "" {
			return errors.New("preferences.redis_addr must be set when backend=redis")
		}
	case "memory":
	default:
		return errors.New("preferences.backend must be one of sqlite|redis|memory")
	}
	switch cfg.Gateway.Mode {
	case "http", "mock":
	case "openai":
		if cfg.Gateway.OpenAIKey == "" {
			return errors.New("gateway.openai_api_key must be set when mode=openai")
		}
		if cfg.Gateway.OpenAIModel == "" {
			return errors.New("gateway.openai_model must be set when mode=openai")
		}
	default:
		return errors.New("gateway.mode must be one of http|openai|mock")
	}
	if cfg.Gateway.MaxTokens < 0 {
		return errors.New("gateway.max_tokens must be >= 0")
	}
	if cfg.Session.MaxAlerts <= 0 {
		return errors.New("session.max_alerts must be positive")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" && cfg.EventStore.RetentionMode != "ephemeral" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		switch cfg.STT.Input {
		case "silence":
		case "wav":
			if cfg.STT.Source == "" {
				return errors.New("stt.source must be set when input=wav")
			}
		case "bus":
			if !cfg.Bus.Enabled {
				return errors.New("bus.enabled must be true when stt.input=bus")
			}
		default:
			return errors.New("stt.input must be one of silence|wav|bus")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "mock", "exec":
		default:
			return errors.New("tts.mode must be one of mock|exec")
		}
		if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.Channels <= 0 {
			return errors.New("tts.channels must be positive")
		}
	}
	return nil
}
