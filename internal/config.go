package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=3001"`
	GrpcPort int    `env:"GRPC_PORT,default=3002"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	WorkspaceRoot     string        `env:"WORKSPACE_ROOT,default=/tmp/code-lab"`
	CompileTimeout    time.Duration `env:"COMPILE_TIMEOUT,default=15s"`
	RunTimeout        time.Duration `env:"RUN_TIMEOUT,default=15s"`
	MaxConcurrentRuns int64         `env:"MAX_CONCURRENT_RUNS,default=4"`
	MaxOutputBytes    int           `env:"MAX_OUTPUT_BYTES,default=1048576"`
	LanguagesFile     string        `env:"LANGUAGES_FILE"`
	WorkspaceTTL      time.Duration `env:"WORKSPACE_TTL,default=1h"`
	JanitorInterval   time.Duration `env:"JANITOR_INTERVAL,default=5m"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=500ms"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	SearchLimit          int           `env:"SEARCH_LIMIT,default=50"`
	TimelineCapacity     int           `env:"TIMELINE_CAPACITY,default=100"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=5s"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=10"`

	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	DebugPort int `env:"DEBUG_PORT,default=8081"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if config.MaxConcurrentRuns < 1 {
		return Config{}, fmt.Errorf("MAX_CONCURRENT_RUNS must be positive, got %d", config.MaxConcurrentRuns)
	}
	if config.RunTimeout <= 0 || config.CompileTimeout <= 0 {
		return Config{}, fmt.Errorf("COMPILE_TIMEOUT and RUN_TIMEOUT must be positive")
	}
	// Tickers panic on a non-positive period.
	for name, interval := range map[string]time.Duration{
		"JANITOR_INTERVAL": config.JanitorInterval,
		"METRIC_INTERVAL":  config.MetricInterval,
		"RESTART_INTERVAL": config.RestartInterval,
	} {
		if interval <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %s", name, interval)
		}
	}
	if config.WorkspaceTTL < 0 {
		return Config{}, fmt.Errorf("WORKSPACE_TTL must not be negative, got %s", config.WorkspaceTTL)
	}
	return config, nil
}
