package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	gos3 "gamehost/pkg/s3"
)

// Config holds runtime configuration for the gamehost service.
type Config struct {
	Addr        string `yaml:"addr" env:"GAMEHOST_ADDR,default=:5000"`
	GamesDir    string `yaml:"games_dir" env:"GAMEHOST_GAMES_DIR,default=public/games"`
	FeedbackDir string `yaml:"feedback_dir" env:"GAMEHOST_FEEDBACK_DIR,default=feedback"`

	MaxUploadBytes       int64 `yaml:"max_upload_bytes" env:"GAMEHOST_MAX_UPLOAD_BYTES,default=536870912"`
	MaxArchiveFileBytes  int64 `yaml:"max_archive_file_bytes" env:"GAMEHOST_MAX_ARCHIVE_FILE_BYTES"`
	MaxArchiveTotalBytes int64 `yaml:"max_archive_total_bytes" env:"GAMEHOST_MAX_ARCHIVE_TOTAL_BYTES"`

	AllowedOrigins []string      `yaml:"cors_origins" env:"GAMEHOST_CORS_ORIGINS,default=*"`
	RateLimit      int           `yaml:"rate_limit" env:"GAMEHOST_RATE_LIMIT,default=60"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"GAMEHOST_REQUEST_TIMEOUT,default=2m"`
	CompanyName    string        `yaml:"company_name" env:"GAMEHOST_COMPANY_NAME"`

	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogFormat    string `yaml:"log_format" env:"LOG_FORMAT,default=json"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL,default=info"`

	NATSURL      string `yaml:"nats_url" env:"NATS_URL"`
	EventsStream string `yaml:"events_stream" env:"GAMEHOST_EVENTS_STREAM,default=GAMEHOST"`

	S3 gos3.Config `yaml:"s3"`
}

// Load reads the optional YAML file at path and then applies environment
// variables on top of it.
func Load(ctx context.Context, path string) (Config, error) {
	return LoadWith(ctx, path, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit environment source.
func LoadWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           &cfg,
		Lookuper:         lookuper,
		DefaultOverwrite: true,
	}); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if strings.TrimSpace(c.GamesDir) == "" {
		errs = append(errs, errors.New("games dir is required"))
	}
	if strings.TrimSpace(c.FeedbackDir) == "" {
		errs = append(errs, errors.New("feedback dir is required"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	if c.MaxArchiveFileBytes < 0 || c.MaxArchiveTotalBytes < 0 {
		errs = append(errs, errors.New("archive limits must not be negative"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.S3.Enabled() && c.S3.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required when S3_ENDPOINT is set"))
	}
	return errors.Join(errs...)
}
