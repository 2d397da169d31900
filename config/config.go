// Package config loads application settings from YAML and LIFECYCLE_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Engine    EngineConfig    `mapstructure:"engine"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	// Output is a zap sink: "stdout", "stderr" or a file path.
	Output string `mapstructure:"output"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig drives periodic re-runs over the configured sources.
// Spec is a six-field cron expression (seconds first) or a descriptor
// such as "@every 6h".
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Spec    string `mapstructure:"spec"`
}

type SourcesConfig struct {
	Apportionment []string `mapstructure:"apportionment"`
	Execution     []string `mapstructure:"execution"`
	Sheet         string   `mapstructure:"sheet"`
}

// ReferenceConfig points at the reference-data YAML. An empty path uses
// the built-in DHS reference.
type ReferenceConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig overrides values from the reference file.
type EngineConfig struct {
	Agency            string `mapstructure:"agency"`
	CumulativePeriods bool   `mapstructure:"cumulative_periods"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIFECYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.max_body_bytes", 64<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.output", "stdout")
	v.SetDefault("db.path", "./data/lifecycle.db")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "0 0 6 * * *")
	v.SetDefault("sources.apportionment", []string{})
	v.SetDefault("sources.execution", []string{})
	v.SetDefault("sources.sheet", "")
	v.SetDefault("reference.path", "")
	v.SetDefault("engine.agency", "")
	v.SetDefault("engine.cumulative_periods", false)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later at run time.
func (c Config) Validate() error {
	if c.Scheduler.Enabled {
		if strings.TrimSpace(c.Scheduler.Spec) == "" {
			return fmt.Errorf("scheduler.spec is required when the scheduler is enabled")
		}
		if len(c.Sources.Apportionment) == 0 && len(c.Sources.Execution) == 0 {
			return fmt.Errorf("scheduler is enabled but no sources are configured")
		}
	}
	if c.Engine.Agency != "" && len(c.Engine.Agency) != 3 {
		return fmt.Errorf("engine.agency %q must be three digits", c.Engine.Agency)
	}
	return nil
}

// HasSources reports whether any source file is configured.
func (s SourcesConfig) HasSources() bool {
	return len(s.Apportionment) > 0 || len(s.Execution) > 0
}
