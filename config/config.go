package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REGISTRY_DATABASE_HOST
const EnvPrefix = "REGISTRY"

type AppConfig struct {
	Port                int           `mapstructure:"port"                  validate:"required,numeric,min=1,max=65535"`
	LogLevel            string        `mapstructure:"log_level"             validate:"required,oneof=trace debug info warn error fatal panic"`
	HumanReadableOutput bool          `mapstructure:"human_readable_output"`
	PublishTimeout      time.Duration `mapstructure:"publish_timeout"       validate:"gt=0"`

	Database    DatabaseConfig    `mapstructure:"database"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"   validate:"required,oneof=postgres sqlite"`
	Host     string `mapstructure:"host"     validate:"required_if=Driver postgres"`
	Port     int    `mapstructure:"port"     validate:"required_if=Driver postgres,omitempty,min=1,max=65535"`
	Username string `mapstructure:"username" validate:"required_if=Driver postgres"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required_if=Driver postgres"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"     validate:"required_if=Driver sqlite"`
}

type PersistenceConfig struct {
	Type       string   `mapstructure:"type"        validate:"required,oneof=memory filesystem s3 none"`
	StorageDir string   `mapstructure:"storage_dir" validate:"required_if=Type filesystem"`
	S3         S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	KeyID     string `mapstructure:"key_id"`
	AccessKey string `mapstructure:"access_key"`
	Timeout   string `mapstructure:"timeout"`
}

var Cfg = &AppConfig{}

// Defaults are applied before the config file and environment are read
var Defaults = map[string]any{
	"port":                      8080,
	"log_level":                 "info",
	"human_readable_output":     false,
	"publish_timeout":           "30s",
	"database.driver":           "postgres",
	"database.host":             "localhost",
	"database.port":             5432,
	"database.username":         "postgres",
	"database.password":         "",
	"database.database":         "registry",
	"database.sslmode":          "disable",
	"database.path":             "registry.db",
	"persistence.type":          "filesystem",
	"persistence.storage_dir":   "./storage",
	"persistence.s3.endpoint":   "",
	"persistence.s3.region":     "us-east-1",
	"persistence.s3.bucket":     "",
	"persistence.s3.key_id":     "",
	"persistence.s3.access_key": "",
	"persistence.s3.timeout":    "30s",
}

// Load reads defaults, the optional config file and REGISTRY_* environment
// variables into cfg and validates the result
func Load(v *viper.Viper, configFile string, cfg *AppConfig) error {
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// InitLogger configures the global zerolog logger
func InitLogger(cfg *AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.HumanReadableOutput {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Debug().Str("level", level.String()).Msg("logger initialized")
}
