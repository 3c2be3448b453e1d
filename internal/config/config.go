package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TASKFLOW_DATABASE_URL.
const EnvPrefix = "TASKFLOW"

// ConfigFileEnv names the variable holding an optional YAML config file path.
const ConfigFileEnv = EnvPrefix + "_CONFIG"

// Config keeps runtime settings for the service.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment" validate:"required,oneof=development production test"`

	// Timezone is the IANA zone used to render instance titles.
	Timezone string `mapstructure:"timezone" validate:"required"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" validate:"required,oneof=trace debug info warn error"`
	Console bool   `mapstructure:"console"`
}

type SchedulerConfig struct {
	// Enabled forces the scheduler on outside production.
	Enabled bool `mapstructure:"enabled"`

	// BuildPhase is set by build tooling; the scheduler never starts while it is true.
	BuildPhase bool `mapstructure:"build_phase"`

	Interval time.Duration `mapstructure:"interval" validate:"min=1s"`

	// MinGap is the minimum time between two passes across all processes.
	MinGap time.Duration `mapstructure:"min_gap" validate:"min=0"`

	// DailyAt ("HH:MM") replaces Interval with one pass per day when set.
	DailyAt string `mapstructure:"daily_at" validate:"omitempty,datetime=15:04"`

	LockID string `mapstructure:"lock_id" validate:"required,max=100"`
}

type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	AdminChatID int64         `mapstructure:"admin_chat_id" validate:"required_with=Token"`
	ReportEvery time.Duration `mapstructure:"report_every" validate:"min=0"`
}

// Load reads configuration from defaults, the optional file named by
// TASKFLOW_CONFIG and TASKFLOW_* environment variables, in increasing priority.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path falls
// back to TASKFLOW_CONFIG.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetEnvPrefix(EnvPrefix)
		if err := v.BindEnv("config"); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", ConfigFileEnv, err)
		}
		path = strings.TrimSpace(v.GetString("config"))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("database.url", "taskflow.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.build_phase", false)
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.min_gap", 30*time.Minute)
	v.SetDefault("scheduler.daily_at", "")
	v.SetDefault("scheduler.lock_id", "recurring-task-generation")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("telegram.report_every", time.Minute)
}

// Validate checks field constraints and the timezone name.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves App.Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// ShouldStartScheduler reports whether this process runs the generation loop:
// never during a build, otherwise in production or when explicitly enabled.
func (c Config) ShouldStartScheduler() bool {
	if c.Scheduler.BuildPhase {
		return false
	}
	return c.App.Environment == "production" || c.Scheduler.Enabled
}

// TelegramEnabled reports whether the operator bot should be started.
func (c Config) TelegramEnabled() bool {
	return strings.TrimSpace(c.Telegram.Token) != ""
}
