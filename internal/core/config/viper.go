package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagBindings maps config keys to command-line flag names.
type FlagBindings map[string]string

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return Load(configPath, nil, nil)
}

// Load is LoadConfig with flag overrides: every key in bindings whose flag
// was set on the command line wins over environment and file values.
func Load(configPath string, flags *pflag.FlagSet, bindings FlagBindings) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("api.host", d.API.Host)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.request_timeout", d.API.RequestTimeout.String())
	v.SetDefault("admin.host", d.Admin.Host)
	v.SetDefault("admin.port", d.Admin.Port)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("descriptors.path", d.Descriptors.Path)
	v.SetDefault("descriptors.watch", d.Descriptors.Watch)
	v.SetDefault("processor.default", d.Processor.Default)
	v.SetDefault("processor.exiftool.path", d.Processor.ExifToolPath)
	v.SetDefault("processor.exiftool.timeout", d.Processor.ExifToolTimeout.String())
	v.SetDefault("worker.concurrency", d.Worker.Concurrency)
	v.SetDefault("worker.batch_size", d.Worker.BatchSize)
	v.SetDefault("worker.poll_interval", d.Worker.PollInterval.String())

	// MS_API_PORT, MS_PROCESSOR_EXIFTOOL_PATH, ...
	v.SetEnvPrefix("MS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for key, name := range bindings {
			flag := flags.Lookup(name)
			if flag == nil {
				return nil, fmt.Errorf("unknown flag %q bound to %s", name, key)
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{
		API: APIConfig{
			Host:           v.GetString("api.host"),
			Port:           v.GetInt("api.port"),
			RequestTimeout: v.GetDuration("api.request_timeout"),
		},
		Admin: AdminConfig{
			Host: v.GetString("admin.host"),
			Port: v.GetInt("admin.port"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Descriptors: DescriptorsConfig{
			Path:  v.GetString("descriptors.path"),
			Watch: v.GetBool("descriptors.watch"),
		},
		Processor: ProcessorConfig{
			Default:         v.GetString("processor.default"),
			ExifToolPath:    v.GetString("processor.exiftool.path"),
			ExifToolTimeout: v.GetDuration("processor.exiftool.timeout"),
		},
		Worker: WorkerConfig{
			Concurrency:  v.GetInt("worker.concurrency"),
			BatchSize:    v.GetInt("worker.batch_size"),
			PollInterval: v.GetDuration("worker.poll_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use MS_HMAC_SECRET environment variable)")
	}
	return nil
}
