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
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Transcript  TranscriptConfig `yaml:"transcript"`
	Gate        GateConfig       `yaml:"gate"`
	Followup    FollowupConfig   `yaml:"followup"`
	Generation  GenerationConfig `yaml:"generation"`
	Curator     CuratorConfig    `yaml:"curator"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Channels    ChannelsConfig   `yaml:"channels"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
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

type TranscriptConfig struct {
	Mode               string `yaml:"mode"` // gated, streaming
	FirstSlideMinChars int    `yaml:"first_slide_min_chars"`
	NextSlideMinChars  int    `yaml:"next_slide_min_chars"`
	StreamingMinChars  int    `yaml:"streaming_min_chars"`
}

type GateConfig struct {
	Mode     string `yaml:"mode"` // mock, http
	Endpoint string `yaml:"endpoint"`
}

type FollowupConfig struct {
	Mode     string `yaml:"mode"` // mock, http
	Endpoint string `yaml:"endpoint"`
}

type GenerationConfig struct {
	Mode            string `yaml:"mode"` // mock, http
	Endpoint        string `yaml:"endpoint"`
	FallbackOnEmpty bool   `yaml:"fallback_on_empty"`
}

type CuratorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Mode     string `yaml:"mode"` // mock, http
	Endpoint string `yaml:"endpoint"`
}

type SchedulerConfig struct {
	DispatchIntervalMS int `yaml:"dispatch_interval_ms"`
}

type ChannelsConfig struct {
	ExploratoryCapacity int `yaml:"exploratory_capacity"`
}

func Default() Config {
	return Config{
		RuntimeName: "podium-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/podium-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Transcript: TranscriptConfig{
			Mode:               "gated",
			FirstSlideMinChars: 20,
			NextSlideMinChars:  30,
			StreamingMinChars:  40,
		},
		Gate: GateConfig{
			Mode: "mock",
		},
		Followup: FollowupConfig{
			Mode: "mock",
		},
		Generation: GenerationConfig{
			Mode:            "mock",
			FallbackOnEmpty: true,
		},
		Curator: CuratorConfig{
			Enabled: false,
			Mode:    "mock",
		},
		Scheduler: SchedulerConfig{
			DispatchIntervalMS: 20000,
		},
		Channels: ChannelsConfig{
			ExploratoryCapacity: 10,
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
	overrideString(&cfg.RuntimeName, "PODIUM_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PODIUM_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PODIUM_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PODIUM_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PODIUM_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PODIUM_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PODIUM_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "PODIUM_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "PODIUM_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PODIUM_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PODIUM_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PODIUM_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PODIUM_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PODIUM_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PODIUM_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PODIUM_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "PODIUM_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "PODIUM_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "PODIUM_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "PODIUM_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "PODIUM_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Transcript.Mode, "PODIUM_TRANSCRIPT_MODE")
	overrideInt(&cfg.Transcript.FirstSlideMinChars, "PODIUM_TRANSCRIPT_FIRST_SLIDE_MIN_CHARS")
	overrideInt(&cfg.Transcript.NextSlideMinChars, "PODIUM_TRANSCRIPT_NEXT_SLIDE_MIN_CHARS")
	overrideInt(&cfg.Transcript.StreamingMinChars, "PODIUM_TRANSCRIPT_STREAMING_MIN_CHARS")
	overrideString(&cfg.Gate.Mode, "PODIUM_GATE_MODE")
	overrideString(&cfg.Gate.Endpoint, "PODIUM_GATE_ENDPOINT")
	overrideString(&cfg.Followup.Mode, "PODIUM_FOLLOWUP_MODE")
	overrideString(&cfg.Followup.Endpoint, "PODIUM_FOLLOWUP_ENDPOINT")
	overrideString(&cfg.Generation.Mode, "PODIUM_GENERATION_MODE")
	overrideString(&cfg.Generation.Endpoint, "PODIUM_GENERATION_ENDPOINT")
	overrideBool(&cfg.Generation.FallbackOnEmpty, "PODIUM_GENERATION_FALLBACK_ON_EMPTY")
	overrideBool(&cfg.Curator.Enabled, "PODIUM_CURATOR_ENABLED")
	overrideString(&cfg.Curator.Mode, "PODIUM_CURATOR_MODE")
	overrideString(&cfg.Curator.Endpoint, "PODIUM_CURATOR_ENDPOINT")
	overrideInt(&cfg.Scheduler.DispatchIntervalMS, "PODIUM_SCHEDULER_DISPATCH_INTERVAL_MS")
	overrideInt(&cfg.Channels.ExploratoryCapacity, "PODIUM_CHANNELS_EXPLORATORY_CAPACITY")
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
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
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Transcript.Mode {
	case "gated", "streaming":
	default:
		return errors.New("transcript.mode must be one of gated|streaming")
	}
	if cfg.Transcript.FirstSlideMinChars < 0 || cfg.Transcript.NextSlideMinChars < 0 {
		return errors.New("transcript thresholds must be >= 0")
	}
	switch cfg.Gate.Mode {
	case "mock", "http":
	default:
		return errors.New("gate.mode must be one of mock|http")
	}
	if cfg.Gate.Mode == "http" && cfg.Gate.Endpoint == "" {
		return errors.New("gate.endpoint must be set when mode=http")
	}
	switch cfg.Followup.Mode {
	case "mock", "http":
	default:
		return errors.New("followup.mode must be one of mock|http")
	}
	if cfg.Followup.Mode == "http" && cfg.Followup.Endpoint == "" {
		return errors.New("followup.endpoint must be set when mode=http")
	}
	switch cfg.Generation.Mode {
	case "mock", "http":
	default:
		return errors.New("generation.mode must be one of mock|http")
	}
	if cfg.Generation.Mode == "http" && cfg.Generation.Endpoint == "" {
		return errors.New("generation.endpoint must be set when mode=http")
	}
	if cfg.Curator.Enabled {
		switch cfg.Curator.Mode {
		case "mock", "http":
		default:
			return errors.New("curator.mode must be one of mock|http")
		}
		if cfg.Curator.Mode == "http" && cfg.Curator.Endpoint == "" {
			return errors.New("curator.endpoint must be set when mode=http")
		}
	}
	if cfg.Scheduler.DispatchIntervalMS <= 0 {
		return errors.New("scheduler.dispatch_interval_ms must be positive")
	}
	if cfg.Channels.ExploratoryCapacity <= 0 {
		return errors.New("channels.exploratory_capacity must be >= 1")
	}
	return nil
}
