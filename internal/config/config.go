package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the meterd configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Storage  StorageConfig  `yaml:"storage"`
	Billing  BillingConfig  `yaml:"billing"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Lock     LockConfig     `yaml:"lock"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig identifies the metered deployment.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	PlanID      string `yaml:"plan_id"`
	Cloud       string `yaml:"cloud"` // aws, gcp, azure (default: aws)
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	Endpoint     string `yaml:"endpoint"` // empty = AWS default
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket"`
	UsePathStyle bool   `yaml:"use_path_style"`
	UsagePrefix  string `yaml:"usage_prefix"`
	StateKey     string `yaml:"state_key"`
}

// BillingConfig holds metering API settings.
type BillingConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"` // pre-issued, skips authentication
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// CustomDimensionConfig is one derived dimension.
type CustomDimensionConfig struct {
	Name    string `yaml:"name"`
	Formula string `yaml:"formula"`
}

// PipelineConfig holds run behavior settings.
type PipelineConfig struct {
	MaxWindowsPerRun int                     `yaml:"max_windows_per_run"`
	MaxRetries       int                     `yaml:"max_retries"`
	RetryPolicy      string                  `yaml:"retry_policy"` // auto, manual (default: auto)
	RawDimensions    []string                `yaml:"raw_dimensions"`
	CustomDimensions []CustomDimensionConfig `yaml:"custom_dimensions"`
	DryRun           bool                    `yaml:"dry_run"`
	IntervalMinutes  int                     `yaml:"interval_minutes"` // serve mode only
}

// LockConfig holds advisory lock settings. Addrs empty disables locking.
type LockConfig struct {
	Addrs      []string `yaml:"addrs"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Key        string   `yaml:"key"`
	TTLSeconds int      `yaml:"ttl_sec"`
}

// HTTPConfig holds the serve-mode HTTP settings (metrics and health).
type HTTPConfig struct {
	Port        int `yaml:"port"`
	ShutdownSec int `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Service.Cloud == "" {
		c.Service.Cloud = "aws"
	}
	if c.Storage.UsagePrefix == "" {
		c.Storage.UsagePrefix = "omnistrate-metering"
	}
	if c.Storage.StateKey == "" {
		c.Storage.StateKey = "metering_state.json"
	}
	if c.Billing.BaseURL == "" {
		c.Billing.BaseURL = "https://api.clazar.io"
	}
	if c.Billing.TimeoutSec <= 0 {
		c.Billing.TimeoutSec = 30
	}
	if c.Pipeline.MaxWindowsPerRun <= 0 {
		c.Pipeline.MaxWindowsPerRun = 1
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 5
	}
	if c.Pipeline.RetryPolicy == "" {
		c.Pipeline.RetryPolicy = "auto"
	}
	if len(c.Pipeline.RawDimensions) == 0 {
		c.Pipeline.RawDimensions = []string{
			"memory_byte_hours",
			"storage_allocated_byte_hours",
			"cpu_core_hours",
		}
	}
	if c.Pipeline.IntervalMinutes <= 0 {
		c.Pipeline.IntervalMinutes = 360
	}
	if len(c.Lock.Addrs) > 0 {
		if c.Lock.Key == "" {
			c.Lock.Key = fmt.Sprintf("meterd:lock:%s:%s:%s",
				c.Service.Name, c.Service.Environment, c.Service.PlanID)
		}
		if c.Lock.TTLSeconds <= 0 {
			c.Lock.TTLSeconds = 3600
		}
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 9090
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}
	if c.Service.Environment == "" {
		return fmt.Errorf("service.environment is required")
	}
	if c.Service.PlanID == "" {
		return fmt.Errorf("service.plan_id is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	switch c.Pipeline.RetryPolicy {
	case "auto", "manual":
		// ok
	default:
		return fmt.Errorf("pipeline.retry_policy must be \"auto\" or \"manual\", got %q",
			c.Pipeline.RetryPolicy)
	}
	for i, cd := range c.Pipeline.CustomDimensions {
		if cd.Name == "" {
			return fmt.Errorf("pipeline.custom_dimensions[%d].name is required", i)
		}
		if cd.Formula == "" {
			return fmt.Errorf("pipeline.custom_dimensions[%d].formula is required", i)
		}
	}
	if c.Billing.ClientID == "" && c.Billing.AccessToken == "" && !c.Pipeline.DryRun {
		return fmt.Errorf("billing.client_id or billing.access_token is required outside dry run")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
