package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"

	"github.com/imgpipe/image-deriver/internal/model"
)

// Config holds the main configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Storage  Storage  `mapstructure:"storage"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Database Database `mapstructure:"database"`
	Retry    Retry    `mapstructure:"retry"`
	Images   Images   `mapstructure:"images"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Storage holds configuration for the object storage backend.
type Storage struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	Listen     bool   `mapstructure:"listen"` // subscribe to bucket notifications
}

// Kafka holds configuration for the object-event topic. The consumer is an
// alternative event source for deployments that route storage notifications
// through a broker; ResultsTopic, when set, receives one message per
// produced derivative.
type Kafka struct {
	Enabled      bool     `mapstructure:"enabled"`
	GroupID      string   `mapstructure:"group_id"`
	Topic        string   `mapstructure:"topic"`
	ResultsTopic string   `mapstructure:"results_topic"`
	Brokers      []string `mapstructure:"brokers"`
}

// Database holds the optional result-record database configuration.
type Database struct {
	Enabled bool           `mapstructure:"enabled"`
	Master  DatabaseNode   `mapstructure:"master"`
	Slaves  []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Retry defines the retry policy for broker fetch/commit/publish calls.
// Uploads are never retried: a failed derivative is recorded and dropped.
type Retry struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Backoff  float64       `mapstructure:"backoff"`
}

// Images defines which objects are eligible originals and which derivative
// sizes are produced for each of them.
type Images struct {
	// OriginalSuffix marks eligible source files, e.g. "_xoriginal":
	// only objects whose base name (without extension) ends with it are
	// processed.
	OriginalSuffix string `mapstructure:"original_suffix"`

	// Sizes maps a size name to its target dimensions. Names become part
	// of derivative keys: photo<suffix>.jpg -> photo_<name>.jpg.
	Sizes map[string]model.SizeSpec `mapstructure:"sizes"`
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// Validate checks the parts of the configuration that would otherwise fail
// in confusing ways at event time.
func (c *Config) Validate() error {
	if c.Storage.BucketName == "" {
		return fmt.Errorf("storage.bucket_name is required")
	}

	if c.Images.OriginalSuffix == "" {
		return fmt.Errorf("images.original_suffix is required")
	}

	if len(c.Images.Sizes) == 0 {
		return fmt.Errorf("at least one entry in images.sizes is required")
	}

	for name, size := range c.Images.Sizes {
		if name == "" {
			return fmt.Errorf("images.sizes contains an entry with an empty name")
		}
		if size.Width <= 0 || size.Height <= 0 {
			return fmt.Errorf("images.sizes.%s: width and height must be positive", name)
		}
		// A size whose derived suffix ends with the original marker would
		// make its own output eligible again and loop forever.
		if strings.HasSuffix("_"+name, c.Images.OriginalSuffix) {
			return fmt.Errorf("images.sizes.%s: name conflicts with original_suffix %q", name, c.Images.OriginalSuffix)
		}
	}

	return nil
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"images.original_suffix": "ORIGINAL_IMAGE_IDENTIFIER",
		"storage.endpoint":       "MINIO_ENDPOINT",
		"storage.access_key":     "MINIO_ACCESS_KEY",
		"storage.secret_key":     "MINIO_SECRET_KEY",
		"database.master.host":   "DB_HOST",
		"database.master.port":   "DB_PORT",
		"database.master.user":   "DB_USER",
		"database.master.pass":   "DB_PASSWORD",
		"database.master.name":   "DB_NAME",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration cannot be loaded, unmarshaled or validated.
func MustLoad(path string) *Config {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("invalid config")
	}

	return &cfg
}
