// Package config loads the engine's layered configuration: built-in
// defaults, an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Graph     GraphConfig     `koanf:"graph"`
	Generator GeneratorConfig `koanf:"generator"`
	Engine    EngineConfig    `koanf:"engine"`
	Metadata  MetadataConfig  `koanf:"metadata"`
	Warmup    WarmupConfig    `koanf:"warmup"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
}

// GraphConfig addresses the Gremlin server and sizes the two
// independent connection pools described in the data-model.
type GraphConfig struct {
	GremlinHost             string `koanf:"gremlin_host"`
	GremlinPort             int    `koanf:"gremlin_port"`
	MainConnectionPoolSize  int    `koanf:"main_connection_pool_size"`
	FraudConnectionPoolSize int    `koanf:"fraud_connection_pool_size"`
}

type GeneratorConfig struct {
	TransactionWorkerPoolSize    int      `koanf:"transaction_worker_pool_size"`
	TransactionWorkerMaxPoolSize int      `koanf:"transaction_worker_max_pool_size"`
	SchedulerTPSCapacity         int      `koanf:"scheduler_tps_capacity"`
	MaxTransactionRate           int      `koanf:"max_transaction_rate"`
	MaxConsecutiveFailures       int      `koanf:"max_consecutive_failures"`
	MinAmount                    float64  `koanf:"min_amount"`
	MaxAmount                    float64  `koanf:"max_amount"`
	Cities                       []string `koanf:"cities"`
}

// AutoFlagMode controls which endpoint(s) of a high-scoring
// transaction get promoted to fraud_flag=true.
type AutoFlagMode string

const (
	AutoFlagSender   AutoFlagMode = "sender"
	AutoFlagReceiver AutoFlagMode = "receiver"
	AutoFlagBoth     AutoFlagMode = "both"
)

type EngineConfig struct {
	FraudWorkerPoolSize         int           `koanf:"fraud_worker_pool_size"`
	FraudWorkerMaxPoolSize      int           `koanf:"fraud_worker_max_pool_size"`
	PerTransactionDeadline      time.Duration `koanf:"per_transaction_deadline"`
	AutoFlagEnabled             bool          `koanf:"auto_flag_enabled"`
	AutoFlagFraudScoreThreshold int           `koanf:"auto_flag_fraud_score_threshold"`
	AutoFlagMode                AutoFlagMode  `koanf:"auto_flag_mode"`
}

type MetadataConfig struct {
	Namespace       string        `koanf:"namespace"`
	SetName         string        `koanf:"set_name"`
	KVAddress       string        `koanf:"kv_address"`
	FlushIntervalMs int           `koanf:"flush_interval_ms"`
	FlushThreshold  int64         `koanf:"flush_threshold"`
	RedisAddr       string        `koanf:"redis_addr"`
	RedisTTL        time.Duration `koanf:"redis_ttl"`
}

func (m MetadataConfig) FlushInterval() time.Duration {
	return time.Duration(m.FlushIntervalMs) * time.Millisecond
}

type WarmupConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Time        time.Duration `koanf:"time"`
	Parallelism int           `koanf:"parallelism"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
	BatchTimeout  time.Duration `koanf:"batch_timeout"`
}

type ServerConfig struct {
	Address         string        `koanf:"address"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Load loads configuration from built-in defaults, an optional YAML
// file, then GFE_-prefixed environment variables, in that precedence
// order.
func Load(configPath ...string) (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	cfgPath := "configs/config.yaml"
	if len(configPath) > 0 && configPath[0] != "" {
		cfgPath = configPath[0]
	}
	_ = k.Load(file.Provider(cfgPath), yaml.Parser())

	if err := k.Load(env.Provider("GFE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "GFE_")), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Graph: GraphConfig{
			GremlinHost:             "localhost",
			GremlinPort:             8182,
			MainConnectionPoolSize:  8,
			FraudConnectionPoolSize: 16,
		},
		Generator: GeneratorConfig{
			TransactionWorkerPoolSize:    8,
			TransactionWorkerMaxPoolSize: 16,
			SchedulerTPSCapacity:         100,
			MaxTransactionRate:           4000,
			MaxConsecutiveFailures:       100,
			MinAmount:                    1.0,
			MaxAmount:                    5000.0,
			Cities:                       []string{"New York", "London", "Singapore", "Toronto", "Sydney"},
		},
		Engine: EngineConfig{
			FraudWorkerPoolSize:         16,
			FraudWorkerMaxPoolSize:      32,
			PerTransactionDeadline:      time.Second,
			AutoFlagEnabled:             false,
			AutoFlagFraudScoreThreshold: 100,
			AutoFlagMode:                AutoFlagBoth,
		},
		Metadata: MetadataConfig{
			Namespace:       "fraud",
			SetName:         "counters",
			KVAddress:       "localhost:3000",
			FlushIntervalMs: 1000,
			FlushThreshold:  200,
			RedisAddr:       "localhost:6379",
			RedisTTL:        30 * time.Second,
		},
		Warmup: WarmupConfig{
			Enabled:     true,
			Time:        5 * time.Second,
			Parallelism: 4,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			OTLPEndpoint:  "localhost:4317",
			SamplingRate:  0.1,
			ExportTimeout: 10 * time.Second,
			BatchTimeout:  5 * time.Second,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// validate enforces the Configuration-class invariants from the
// error-handling design: these must fail startup loudly rather than
// let the orchestrator reach RUNNING.
func (c *Config) validate() error {
	switch c.Engine.AutoFlagMode {
	case AutoFlagSender, AutoFlagReceiver, AutoFlagBoth:
	default:
		return fmt.Errorf("config: unknown auto_flag_mode %q", c.Engine.AutoFlagMode)
	}

	if c.Graph.MainConnectionPoolSize <= 0 || c.Graph.FraudConnectionPoolSize <= 0 {
		return fmt.Errorf("config: connection pool sizes must be positive")
	}
	if c.Generator.TransactionWorkerPoolSize <= 0 {
		return fmt.Errorf("config: transaction_worker_pool_size must be positive")
	}
	if c.Engine.FraudWorkerPoolSize <= 0 {
		return fmt.Errorf("config: fraud_worker_pool_size must be positive")
	}
	if c.Generator.MaxTransactionRate <= 0 {
		return fmt.Errorf("config: max_transaction_rate must be positive")
	}
	if c.Generator.MinAmount <= 0 || c.Generator.MaxAmount <= c.Generator.MinAmount {
		return fmt.Errorf("config: generator min_amount/max_amount must be positive and min < max")
	}
	if len(c.Generator.Cities) == 0 {
		return fmt.Errorf("config: generator.cities must not be empty")
	}

	return nil
}
