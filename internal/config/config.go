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

type CaptureConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Mode         string `yaml:"mode"` // exec, none
	Command      string `yaml:"command"`
	SampleRate   int    `yaml:"sample_rate"`
	FrameSamples int    `yaml:"frame_samples"`
}

type RecognizerConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	PartialEveryMS int    `yaml:"partial_every_ms"`
}

type PitchConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ClarityThreshold float64 `yaml:"clarity_threshold"`
	MinPitchHz       float64 `yaml:"min_pitch_hz"`
	MaxPitchHz       float64 `yaml:"max_pitch_hz"`
	SampleIntervalMS int     `yaml:"sample_interval_ms"`
}

type RecordConfig struct {
	FinalizeTimeoutMS int `yaml:"finalize_timeout_ms"`
	BlobTimeoutMS     int `yaml:"blob_timeout_ms"`
	FlushGraceMS      int `yaml:"flush_grace_ms"`
	MaxDurationMS     int `yaml:"max_duration_ms"`
}

// ScoringConfig carries the empirical tuning values of the scorer. The
// weights and band thresholds are deliberate tuning constants, kept
// overridable rather than re-derived.
type ScoringConfig struct {
	WeightAccuracy   float64 `yaml:"weight_accuracy"`
	WeightConfidence float64 `yaml:"weight_confidence"`
	WeightIntonation float64 `yaml:"weight_intonation"`
	WeightFluency    float64 `yaml:"weight_fluency"`
	BandHigh         int     `yaml:"band_high"`
	BandMedium       int     `yaml:"band_medium"`
}

type ResultStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, session, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxAttempts   int    `yaml:"max_attempts"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type PracticeConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Capture     CaptureConfig     `yaml:"capture"`
	Recognizer  RecognizerConfig  `yaml:"recognizer"`
	Pitch       PitchConfig       `yaml:"pitch"`
	Record      RecordConfig      `yaml:"record"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	ResultStore ResultStoreConfig `yaml:"result_store"`
	Practice    PracticeConfig    `yaml:"practice"`
}

func Default() Config {
	return Config{
		RuntimeName: "parlo-runtime",
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
		Capture: CaptureConfig{
			Enabled:      false,
			Mode:         "exec",
			Command:      "arecord -q -f S16_LE -r 16000 -c 1 -t raw",
			SampleRate:   16000,
			FrameSamples: 2048,
		},
		Recognizer: RecognizerConfig{
			Mode:           "mock",
			Language:       "fr",
			PartialEveryMS: 800,
		},
		Pitch: PitchConfig{
			Enabled:          true,
			ClarityThreshold: 0.8,
			MinPitchHz:       50,
			MaxPitchHz:       600,
			SampleIntervalMS: 16,
		},
		Record: RecordConfig{
			FinalizeTimeoutMS: 4000,
			BlobTimeoutMS:     2000,
			FlushGraceMS:      300,
			MaxDurationMS:     30000,
		},
		Scoring: ScoringConfig{
			WeightAccuracy:   0.40,
			WeightConfidence: 0.30,
			WeightIntonation: 0.20,
			WeightFluency:    0.10,
			BandHigh:         85,
			BandMedium:       70,
		},
		ResultStore: ResultStoreConfig{
			Path:          "./data/parlo-attempts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxAttempts:   10000,
		},
		Practice: PracticeConfig{
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
	overrideString(&cfg.RuntimeName, "PARLO_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PARLO_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PARLO_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PARLO_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PARLO_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PARLO_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PARLO_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "PARLO_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "PARLO_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PARLO_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PARLO_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PARLO_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PARLO_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PARLO_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PARLO_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PARLO_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Capture.Enabled, "PARLO_CAPTURE_ENABLED")
	overrideString(&cfg.Capture.Mode, "PARLO_CAPTURE_MODE")
	overrideString(&cfg.Capture.Command, "PARLO_CAPTURE_COMMAND")
	overrideInt(&cfg.Capture.SampleRate, "PARLO_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.FrameSamples, "PARLO_CAPTURE_FRAME_SAMPLES")
	overrideString(&cfg.Recognizer.Mode, "PARLO_RECOGNIZER_MODE")
	overrideString(&cfg.Recognizer.Command, "PARLO_RECOGNIZER_COMMAND")
	overrideString(&cfg.Recognizer.ModelPath, "PARLO_RECOGNIZER_MODEL_PATH")
	overrideString(&cfg.Recognizer.Language, "PARLO_RECOGNIZER_LANGUAGE")
	overrideInt(&cfg.Recognizer.PartialEveryMS, "PARLO_RECOGNIZER_PARTIAL_EVERY_MS")
	overrideBool(&cfg.Pitch.Enabled, "PARLO_PITCH_ENABLED")
	overrideFloat(&cfg.Pitch.ClarityThreshold, "PARLO_PITCH_CLARITY_THRESHOLD")
	overrideFloat(&cfg.Pitch.MinPitchHz, "PARLO_PITCH_MIN_HZ")
	overrideFloat(&cfg.Pitch.MaxPitchHz, "PARLO_PITCH_MAX_HZ")
	overrideInt(&cfg.Pitch.SampleIntervalMS, "PARLO_PITCH_SAMPLE_INTERVAL_MS")
	overrideInt(&cfg.Record.FinalizeTimeoutMS, "PARLO_RECORD_FINALIZE_TIMEOUT_MS")
	overrideInt(&cfg.Record.BlobTimeoutMS, "PARLO_RECORD_BLOB_TIMEOUT_MS")
	overrideInt(&cfg.Record.FlushGraceMS, "PARLO_RECORD_FLUSH_GRACE_MS")
	overrideInt(&cfg.Record.MaxDurationMS, "PARLO_RECORD_MAX_DURATION_MS")
	overrideFloat(&cfg.Scoring.WeightAccuracy, "PARLO_SCORING_WEIGHT_ACCURACY")
	overrideFloat(&cfg.Scoring.WeightConfidence, "PARLO_SCORING_WEIGHT_CONFIDENCE")
	overrideFloat(&cfg.Scoring.WeightIntonation, "PARLO_SCORING_WEIGHT_INTONATION")
	overrideFloat(&cfg.Scoring.WeightFluency, "PARLO_SCORING_WEIGHT_FLUENCY")
	overrideInt(&cfg.Scoring.BandHigh, "PARLO_SCORING_BAND_HIGH")
	overrideInt(&cfg.Scoring.BandMedium, "PARLO_SCORING_BAND_MEDIUM")
	overrideString(&cfg.ResultStore.Path, "PARLO_RESULT_STORE_PATH")
	overrideString(&cfg.ResultStore.RetentionMode, "PARLO_RESULT_STORE_RETENTION_MODE")
	overrideInt(&cfg.ResultStore.RetentionDays, "PARLO_RESULT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.ResultStore.MaxAttempts, "PARLO_RESULT_STORE_MAX_ATTEMPTS")
	overrideBool(&cfg.ResultStore.VacuumOnStart, "PARLO_RESULT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Practice.Enabled, "PARLO_PRACTICE_ENABLED")
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
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Capture.Enabled {
		switch cfg.Capture.Mode {
		case "exec", "none":
		default:
			return errors.New("capture.mode must be one of exec|none")
		}
		if cfg.Capture.Mode == "exec" && cfg.Capture.Command == "" {
			return errors.New("capture.command must be set when mode=exec")
		}
		if cfg.Capture.SampleRate <= 0 {
			return errors.New("capture.sample_rate must be positive")
		}
		if cfg.Capture.FrameSamples <= 0 {
			return errors.New("capture.frame_samples must be positive")
		}
	}
	switch cfg.Recognizer.Mode {
	case "mock", "exec":
	default:
		return errors.New("recognizer.mode must be one of mock|exec")
	}
	if cfg.Recognizer.Mode == "exec" && cfg.Recognizer.Command == "" {
		return errors.New("recognizer.command must be set when mode=exec")
	}
	if cfg.Pitch.Enabled {
		if cfg.Pitch.ClarityThreshold < 0 || cfg.Pitch.ClarityThreshold > 1 {
			return errors.New("pitch.clarity_threshold must be within [0,1]")
		}
		if cfg.Pitch.MinPitchHz <= 0 || cfg.Pitch.MaxPitchHz <= cfg.Pitch.MinPitchHz {
			return errors.New("pitch range must satisfy 0 < min_pitch_hz < max_pitch_hz")
		}
		if cfg.Pitch.SampleIntervalMS <= 0 {
			return errors.New("pitch.sample_interval_ms must be positive")
		}
	}
	if cfg.Record.FinalizeTimeoutMS <= 0 {
		return errors.New("record.finalize_timeout_ms must be positive")
	}
	if cfg.Record.BlobTimeoutMS <= 0 {
		return errors.New("record.blob_timeout_ms must be positive")
	}
	weightSum := cfg.Scoring.WeightAccuracy + cfg.Scoring.WeightConfidence +
		cfg.Scoring.WeightIntonation + cfg.Scoring.WeightFluency
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %v", weightSum)
	}
	if cfg.Scoring.BandMedium <= 0 || cfg.Scoring.BandHigh <= cfg.Scoring.BandMedium {
		return errors.New("scoring bands must satisfy 0 < band_medium < band_high")
	}
	if cfg.ResultStore.Path == "" {
		return errors.New("result_store.path must not be empty")
	}
	switch cfg.ResultStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("result_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.ResultStore.RetentionDays < 0 {
		return errors.New("result_store.retention_days must be >= 0")
	}
	return nil
}
