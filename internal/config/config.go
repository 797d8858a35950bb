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
	Engine      EngineConfig     `yaml:"engine"`
	Profiles    ProfilesConfig   `yaml:"profiles"`
	Samples     SamplesConfig    `yaml:"samples"`
	Service     ServiceConfig    `yaml:"service"`
}

type BusConfig struct {
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
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// EngineConfig selects and parameterises the speaker-recognition engine.
// SampleRate, FrameLength and MinEnrollSamples only apply to the mock
// engine; the exec engine reports its own values.
type EngineConfig struct {
	Mode              string `yaml:"mode"` // mock, exec
	Command           string `yaml:"command"`
	AccessKey         string `yaml:"access_key"`
	SampleRate        int    `yaml:"sample_rate"`
	FrameLength       int    `yaml:"frame_length"`
	MinEnrollSamples  int    `yaml:"min_enroll_samples"`
	MockEnrollSamples int    `yaml:"mock_enroll_samples"`
}

type ProfilesConfig struct {
	Backend    string `yaml:"backend"` // dir, sqlite, nats
	Directory  string `yaml:"directory"`
	SQLitePath string `yaml:"sqlite_path"`
	Bucket     string `yaml:"bucket"`
}

type SamplesConfig struct {
	Directory string `yaml:"directory"`
}

type ServiceConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		RuntimeName: "voiceid-runtime",
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
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/voiceid-runs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Engine: EngineConfig{
			Mode:              "mock",
			SampleRate:        16000,
			FrameLength:       512,
			MinEnrollSamples:  8192,
			MockEnrollSamples: 80000,
		},
		Profiles: ProfilesConfig{
			Backend:    "dir",
			Directory:  "./profiles",
			SQLitePath: "./data/voiceid-profiles.db",
			Bucket:     "voiceid-profiles",
		},
		Samples: SamplesConfig{
			Directory: "./samples",
		},
		Service: ServiceConfig{
			Enabled: true,
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
	overrideString(&cfg.RuntimeName, "VOICEID_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOICEID_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOICEID_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICEID_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOICEID_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICEID_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICEID_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOICEID_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VOICEID_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOICEID_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOICEID_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOICEID_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICEID_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICEID_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICEID_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICEID_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICEID_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "VOICEID_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOICEID_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOICEID_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRuns, "VOICEID_EVENT_STORE_MAX_RUNS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOICEID_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Engine.Mode, "VOICEID_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "VOICEID_ENGINE_COMMAND")
	overrideString(&cfg.Engine.AccessKey, "VOICEID_ENGINE_ACCESS_KEY")
	overrideInt(&cfg.Engine.SampleRate, "VOICEID_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.FrameLength, "VOICEID_ENGINE_FRAME_LENGTH")
	overrideInt(&cfg.Engine.MinEnrollSamples, "VOICEID_ENGINE_MIN_ENROLL_SAMPLES")
	overrideInt(&cfg.Engine.MockEnrollSamples, "VOICEID_ENGINE_MOCK_ENROLL_SAMPLES")
	overrideString(&cfg.Profiles.Backend, "VOICEID_PROFILES_BACKEND")
	overrideString(&cfg.Profiles.Directory, "VOICEID_PROFILES_DIRECTORY")
	overrideString(&cfg.Profiles.SQLitePath, "VOICEID_PROFILES_SQLITE_PATH")
	overrideString(&cfg.Profiles.Bucket, "VOICEID_PROFILES_BUCKET")
	overrideString(&cfg.Samples.Directory, "VOICEID_SAMPLES_DIRECTORY")
	overrideBool(&cfg.Service.Enabled, "VOICEID_SERVICE_ENABLED")
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
		if cfg.Bus.StoreDir == "" {
			return errors.New("bus.store_dir must not be empty when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
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
	switch cfg.Engine.Mode {
	case "mock":
		if cfg.Engine.SampleRate <= 0 {
			return errors.New("engine.sample_rate must be positive")
		}
		if cfg.Engine.FrameLength <= 0 {
			return errors.New("engine.frame_length must be positive")
		}
		if cfg.Engine.MinEnrollSamples <= 0 {
			return errors.New("engine.min_enroll_samples must be positive")
		}
		if cfg.Engine.MockEnrollSamples <= 0 {
			return errors.New("engine.mock_enroll_samples must be positive")
		}
	case "exec":
		if cfg.Engine.Command == "" {
			return errors.New("engine.command must be set when mode=exec")
		}
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	switch cfg.Profiles.Backend {
	case "dir":
		if cfg.Profiles.Directory == "" {
			return errors.New("profiles.directory must be set when backend=dir")
		}
	case "sqlite":
		if cfg.Profiles.SQLitePath == "" {
			return errors.New("profiles.sqlite_path must be set when backend=sqlite")
		}
	case "nats":
		if cfg.Profiles.Bucket == "" {
			return errors.New("profiles.bucket must be set when backend=nats")
		}
	default:
		return errors.New("profiles.backend must be one of dir|sqlite|nats")
	}
	return nil
}
