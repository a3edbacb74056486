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
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Embedded         bool     `yaml:"embedded"`
	Port             int      `yaml:"port"`
	Servers          []string `yaml:"servers"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	Token            string   `yaml:"token"`
	TLSInsecure      bool     `yaml:"tls_insecure"`
	ConnectTimeoutMS int      `yaml:"connect_timeout_ms"`
}

type RunStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// EngineConfig selects and parameterizes the external TTS engine.
type EngineConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Device     string `yaml:"device"` // cpu, cuda
}

// PipelineConfig carries generation defaults; per-request values
// override them.
type PipelineConfig struct {
	OutputDir         string  `yaml:"output_dir"`
	VoicesDir         string  `yaml:"voices_dir"`
	SilenceMS         int     `yaml:"silence_ms"`
	Language          string  `yaml:"language"`
	Exaggeration      float64 `yaml:"exaggeration"`
	CFGWeight         float64 `yaml:"cfg_weight"`
	SaveIndividual    bool    `yaml:"save_individual"`
	ProcessAudio      bool    `yaml:"process_audio"`
	AllowDefaultVoice bool    `yaml:"allow_default_voice"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	RunStore    RunStoreConfig  `yaml:"run_store"`
	Engine      EngineConfig    `yaml:"engine"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxweave",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:          false,
			Embedded:         true,
			Port:             4222,
			Servers:          []string{"nats://localhost:4222"},
			ConnectTimeoutMS: 2000,
		},
		RunStore: RunStoreConfig{
			Path:          "./data/voxweave-runs.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		Engine: EngineConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Device:     "cpu",
		},
		Pipeline: PipelineConfig{
			OutputDir:      "./outputs",
			VoicesDir:      "./voices",
			SilenceMS:      500,
			Language:       "en",
			Exaggeration:   1.5,
			CFGWeight:      0.5,
			SaveIndividual: true,
			ProcessAudio:   true,
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
	overrideString(&cfg.RuntimeName, "VOX_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOX_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOX_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOX_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOX_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOX_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOX_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VOX_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOX_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOX_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOX_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOX_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOX_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOX_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOX_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeoutMS, "VOX_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.RunStore.Path, "VOX_RUN_STORE_PATH")
	overrideString(&cfg.RunStore.RetentionMode, "VOX_RUN_STORE_RETENTION_MODE")
	overrideInt(&cfg.RunStore.RetentionDays, "VOX_RUN_STORE_RETENTION_DAYS")
	overrideInt(&cfg.RunStore.MaxRuns, "VOX_RUN_STORE_MAX_RUNS")
	overrideBool(&cfg.RunStore.VacuumOnStart, "VOX_RUN_STORE_VACUUM_ON_START")
	overrideString(&cfg.Engine.Mode, "VOX_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "VOX_ENGINE_COMMAND")
	overrideInt(&cfg.Engine.SampleRate, "VOX_ENGINE_SAMPLE_RATE")
	overrideString(&cfg.Engine.Device, "VOX_ENGINE_DEVICE")
	overrideString(&cfg.Pipeline.OutputDir, "VOX_PIPELINE_OUTPUT_DIR")
	overrideString(&cfg.Pipeline.VoicesDir, "VOX_PIPELINE_VOICES_DIR")
	overrideInt(&cfg.Pipeline.SilenceMS, "VOX_PIPELINE_SILENCE_MS")
	overrideString(&cfg.Pipeline.Language, "VOX_PIPELINE_LANGUAGE")
	overrideFloat(&cfg.Pipeline.Exaggeration, "VOX_PIPELINE_EXAGGERATION")
	overrideFloat(&cfg.Pipeline.CFGWeight, "VOX_PIPELINE_CFG_WEIGHT")
	overrideBool(&cfg.Pipeline.SaveIndividual, "VOX_PIPELINE_SAVE_INDIVIDUAL")
	overrideBool(&cfg.Pipeline.ProcessAudio, "VOX_PIPELINE_PROCESS_AUDIO")
	overrideBool(&cfg.Pipeline.AllowDefaultVoice, "VOX_PIPELINE_ALLOW_DEFAULT_VOICE")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.RunStore.Path == "" {
		return errors.New("run_store.path must not be empty")
	}
	switch cfg.RunStore.RetentionMode {
	case "ephemeral", "persistent":
		// ok
	default:
		return errors.New("run_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.RunStore.RetentionDays < 0 {
		return errors.New("run_store.retention_days must be >= 0")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	switch cfg.Engine.Device {
	case "cpu", "cuda":
	default:
		return errors.New("engine.device must be one of cpu|cuda")
	}
	if cfg.Pipeline.SilenceMS < 0 {
		return errors.New("pipeline.silence_ms must be >= 0")
	}
	if cfg.Pipeline.OutputDir == "" {
		return errors.New("pipeline.output_dir must not be empty")
	}
	return nil
}
