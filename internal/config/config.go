package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTranslateBaseURL = "https://answers-ai-ios.replit.app"
	DefaultTargetLanguage   = "English"
)

type Config struct {
	Port           int      `yaml:"port"`
	DataPath       string   `yaml:"data_path"`
	DBPath         string   `yaml:"db_path"`
	DBDebug        bool     `yaml:"db_debug"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AdminUsername  string   `yaml:"admin_username"`
	AdminPassword  string   `yaml:"admin_password"`
	CORSOrigins    []string `yaml:"cors_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`

	Translate TranslateConfig `yaml:"translate"`
	Wait      WaitConfig      `yaml:"wait"`
	Image     ImageConfig     `yaml:"image"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`

	// GeneratedJWTSecret is set when no secret was configured and a random
	// one was generated for this process.
	GeneratedJWTSecret bool `yaml:"-"`
}

type TranslateConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TargetLanguage string        `yaml:"target_language"`
	Timeout        time.Duration `yaml:"timeout"`
}

// WaitConfig is the bounded-wait policy for consumers awaiting a capture outcome.
type WaitConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type ImageConfig struct {
	MaxDimension int   `yaml:"max_dimension"`
	JPEGQuality  int   `yaml:"jpeg_quality"`
	MaxPixels    int64 `yaml:"max_pixels"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type DispatchConfig struct {
	Workers int `yaml:"workers"`
}

func defaults() *Config {
	return &Config{
		Port:           8080,
		DataPath:       "./data",
		AdminUsername:  "admin",
		AdminPassword:  "admin",
		CORSOrigins:    []string{"*"},
		MaxUploadBytes: 20 << 20,
		Translate: TranslateConfig{
			BaseURL:        DefaultTranslateBaseURL,
			TargetLanguage: DefaultTargetLanguage,
			Timeout:        60 * time.Second,
		},
		Wait: WaitConfig{
			Interval:    500 * time.Millisecond,
			MaxAttempts: 20,
		},
		Image: ImageConfig{
			MaxDimension: 2048,
			JPEGQuality:  80,
			MaxPixels:    40_000_000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Requests: 30,
			Window:   time.Minute,
		},
		Dispatch: DispatchConfig{
			Workers: 2,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataPath, "snaplate.db")
	}

	// JWT secret: require explicit setting or generate random
	if cfg.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(b)
		cfg.GeneratedJWTSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with. A malformed
// translate base URL is not rejected here; the client reports it per call.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.Wait.Interval <= 0:
		return fmt.Errorf("wait interval must be positive")
	case c.Wait.MaxAttempts <= 0:
		return fmt.Errorf("wait max attempts must be positive")
	case c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100:
		return fmt.Errorf("jpeg quality must be within 1..100, got %d", c.Image.JPEGQuality)
	case c.Image.MaxPixels <= 0:
		return fmt.Errorf("max image pixels must be positive")
	case c.Dispatch.Workers <= 0:
		return fmt.Errorf("dispatch workers must be positive")
	}
	return nil
}

// WaitBudget is the total time a bounded-wait consumer may block.
func (c *Config) WaitBudget() time.Duration {
	return c.Wait.Interval * time.Duration(c.Wait.MaxAttempts)
}

func applyEnv(cfg *Config) error {
	var err error
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" && err == nil {
			n, perr := strconv.ParseInt(v, 10, 64)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" && err == nil {
			d, perr := time.ParseDuration(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = d
		}
	}

	setInt("PORT", &cfg.Port)
	setString("DATA_PATH", &cfg.DataPath)
	setString("DB_PATH", &cfg.DBPath)
	setString("JWT_SECRET", &cfg.JWTSecret)
	setString("ADMIN_USERNAME", &cfg.AdminUsername)
	setString("ADMIN_PASSWORD", &cfg.AdminPassword)
	setString("TRANSLATE_BASE_URL", &cfg.Translate.BaseURL)
	setString("TARGET_LANGUAGE", &cfg.Translate.TargetLanguage)
	setDuration("TRANSLATE_TIMEOUT", &cfg.Translate.Timeout)
	setDuration("WAIT_INTERVAL", &cfg.Wait.Interval)
	setInt("WAIT_MAX_ATTEMPTS", &cfg.Wait.MaxAttempts)
	setInt("MAX_IMAGE_DIMENSION", &cfg.Image.MaxDimension)
	setInt("JPEG_QUALITY", &cfg.Image.JPEGQuality)
	setInt64("MAX_IMAGE_PIXELS", &cfg.Image.MaxPixels)
	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setInt("RATE_LIMIT", &cfg.RateLimit.Requests)
	setDuration("RATE_WINDOW", &cfg.RateLimit.Window)
	setInt("DISPATCH_WORKERS", &cfg.Dispatch.Workers)

	if v := os.Getenv("DB_DEBUG"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil && err == nil {
			err = fmt.Errorf("DB_DEBUG: %w", perr)
		}
		cfg.DBDebug = b
	}

	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" && err == nil {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			err = fmt.Errorf("MAX_UPLOAD_BYTES: %w", perr)
		}
		cfg.MaxUploadBytes = n
	}

	// CORS origins: comma-separated list or "*" (default)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		cfg.CORSOrigins = make([]string, 0, len(origins))
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	return err
}
