// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"bitwise74/fileshare-api/pkg/security"
	"bitwise74/fileshare-api/pkg/util"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configPath = pflag.String("config", ".", "Directory containing config.toml")

	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validStorageTypes = []string{"s3", "r2"}
	validDBDrivers    = []string{"sqlite", "postgres"}
)

// ErrNoSecret is returned when no JWT secret is configured. A freshly
// generated one is part of the message.
var ErrNoSecret = errors.New("no JWT secret configured")

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	if !pflag.Parsed() {
		pflag.Parse()
	}
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(*configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound v.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		zap.L().Warn("No config.toml found, using environment and defaults")
	}

	return Load()
}

// Load binds the environment, applies defaults and validates the result. It
// doesn't read any file.
func Load() error {
	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "APP_LOG_LEVEL")

	v.BindEnv("host.port", "HOST_PORT")
	v.BindEnv("host.cors", "HOST_CORS")
	v.BindEnv("host.ssl_enabled", "HOST_SSL_ENABLED")

	v.BindEnv("security.jwt_secret", "SECURITY_JWT_SECRET")
	v.BindEnv("security.rate_limit", "SECURITY_RATE_LIMIT")
	v.BindEnv("security.turnstile_secret", "SECURITY_TURNSTILE_SECRET")
	v.BindEnv("security.argon.memory", "SECURITY_ARGON_MEMORY")
	v.BindEnv("security.argon.iterations", "SECURITY_ARGON_ITERATIONS")
	v.BindEnv("security.argon.parallelism", "SECURITY_ARGON_PARALLELISM")

	v.BindEnv("db.driver", "DB_DRIVER")
	v.BindEnv("db.dsn", "DB_DSN")

	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("redis.channel", "REDIS_CHANNEL")

	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.presign_ttl", "STORAGE_PRESIGN_TTL")

	v.BindEnv("upload.max_size", "UPLOAD_MAX_SIZE")
	v.BindEnv("upload.allowed_types", "UPLOAD_ALLOWED_TYPES")

	v.BindEnv("cleanup.schedule", "CLEANUP_SCHEDULE")

	v.BindEnv("aws.access_key", "AWS_ACCESS_KEY")
	v.BindEnv("aws.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("aws.region", "AWS_REGION")
	v.BindEnv("aws.bucket", "AWS_BUCKET")
	v.BindEnv("aws.endpoint", "AWS_ENDPOINT")

	v.BindEnv("cloudflare.account_id", "CLOUDFLARE_ACCOUNT_ID")
	v.BindEnv("cloudflare.access_key_id", "CLOUDFLARE_ACCESS_KEY_ID")
	v.BindEnv("cloudflare.secret_access_key", "CLOUDFLARE_SECRET_ACCESS_KEY")
	v.BindEnv("cloudflare.bucket", "CLOUDFLARE_BUCKET")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.cors", "http://localhost:5173")
	v.SetDefault("host.ssl_enabled", false)

	v.SetDefault("security.rate_limit", 10)
	v.SetDefault("security.token_ttl", "720h")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "database.db")

	v.SetDefault("redis.channel", "fileshare:events")

	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.presign_ttl", "15m")

	v.SetDefault("upload.max_size", 100)
	v.SetDefault("upload.allowed_types", []string{})

	v.SetDefault("cleanup.schedule", "@every 1h")

	return Validate()
}

// Validate checks the loaded values
func Validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetInt("security.rate_limit") < 0 {
		return errors.New("security.rate_limit can't be negative")
	}

	if v.GetDuration("security.token_ttl") <= 0 {
		return errors.New("security.token_ttl must be a positive duration")
	}

	if err := security.ArgonParamsFromConfig().Validate(); err != nil {
		return fmt.Errorf("invalid security.argon settings, %w", err)
	}

	if v.GetString("security.jwt_secret") == "" {
		secret, err := util.GenerateToken(64)
		if err != nil {
			return fmt.Errorf("failed to generate JWT secret, %w", err)
		}

		return fmt.Errorf("%w, set security.jwt_secret in config.toml or SECURITY_JWT_SECRET. A random one you can use:\n\n%s", ErrNoSecret, secret)
	}

	if !slices.Contains(validDBDrivers, v.GetString("db.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("db.driver") == "postgres" && v.GetString("db.dsn") == "" {
		return errors.New("db.dsn is required for postgres")
	}

	if v.GetInt64("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if len(AllowedTypes()) == 0 {
		zap.L().Warn("No upload.allowed_types specified, any file type will be accepted")
	}

	if v.GetDuration("storage.presign_ttl") <= 0 {
		return errors.New("storage.presign_ttl must be a positive duration")
	}

	if _, err := cron.ParseStandard(v.GetString("cleanup.schedule")); err != nil {
		return fmt.Errorf("invalid cleanup.schedule, %w", err)
	}

	switch v.GetString("storage.type") {
	case "s3":
		for _, key := range []string{"aws.access_key", "aws.secret_access_key", "aws.region", "aws.bucket"} {
			if v.GetString(key) == "" {
				return fmt.Errorf("%s can't be empty", key)
			}
		}
	case "r2":
		for _, key := range []string{"cloudflare.account_id", "cloudflare.access_key_id", "cloudflare.secret_access_key", "cloudflare.bucket"} {
			if v.GetString(key) == "" {
				return fmt.Errorf("%s can't be empty", key)
			}
		}
	default:
		return fmt.Errorf("invalid storage type provided, expected one of %s", strings.Join(validStorageTypes, ", "))
	}

	return nil
}

// MaxUploadSize returns upload.max_size in bytes, it's configured in MiB
func MaxUploadSize() int64 {
	return v.GetInt64("upload.max_size") << 20
}

// AllowedTypes returns upload.allowed_types. A comma separated string from the
// environment is split.
func AllowedTypes() []string {
	var out []string
	for _, t := range v.GetStringSlice("upload.allowed_types") {
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

// CORSOrigins returns host.cors split on commas
func CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(v.GetString("host.cors"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}

	return out
}
