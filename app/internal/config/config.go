package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"uptime/app/internal/stats"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port          string
	DBPath        string
	EnableHTTP    bool
	RatePerMinute int
	// TrustProxy reads client IPs from X-Forwarded-For
	TrustProxy bool

	// Engine
	SnapshotInterval time.Duration
	StoreTimeout     time.Duration
	GapPolicy        stats.GapPolicy
	EnablePublisher  bool
	LogKeep          int

	// Admin auth. AuthHash is nil when no password is configured, which
	// disables the admin routes.
	AuthUser string
	AuthHash []byte

	// Path of the YAML file the config was read from, if any
	File string
}

// fileConfig mirrors the optional YAML file. Pointer fields distinguish
// "absent" from zero values.
type fileConfig struct {
	Port             *string        `yaml:"port"`
	DBPath           *string        `yaml:"db_path"`
	EnableHTTP       *bool          `yaml:"enable_http"`
	RatePerMinute    *int           `yaml:"api_rate_per_minute"`
	TrustProxy       *bool          `yaml:"trust_proxy"`
	SnapshotInterval *time.Duration `yaml:"snapshot_interval"`
	StoreTimeout     *time.Duration `yaml:"store_timeout"`
	GapPolicy        *string        `yaml:"gap_policy"`
	EnablePublisher  *bool          `yaml:"enable_publisher"`
	LogKeep          *int           `yaml:"log_keep"`
	AdminUser        *string        `yaml:"admin_user"`
}

// Load reads .env (if present), the YAML file named by UPTIME_CONFIG (if set)
// and then environment variables, which take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(getenv("UPTIME_CONFIG", ""))
}

// LoadFile builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides, then validates it.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	cfg.File = path

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:             "4555",
		DBPath:           "./uptime.db",
		EnableHTTP:       true,
		RatePerMinute:    120,
		SnapshotInterval: stats.DefaultSnapshotInterval,
		StoreTimeout:     stats.DefaultStoreTimeout,
		GapPolicy:        stats.GapAsUptime,
		EnablePublisher:  true,
		LogKeep:          10000,
		AuthUser:         "admin",
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}

	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.DBPath != nil {
		cfg.DBPath = *fc.DBPath
	}
	if fc.EnableHTTP != nil {
		cfg.EnableHTTP = *fc.EnableHTTP
	}
	if fc.RatePerMinute != nil {
		cfg.RatePerMinute = *fc.RatePerMinute
	}
	if fc.TrustProxy != nil {
		cfg.TrustProxy = *fc.TrustProxy
	}
	if fc.SnapshotInterval != nil {
		cfg.SnapshotInterval = *fc.SnapshotInterval
	}
	if fc.StoreTimeout != nil {
		cfg.StoreTimeout = *fc.StoreTimeout
	}
	if fc.GapPolicy != nil {
		cfg.GapPolicy = stats.GapPolicy(*fc.GapPolicy)
	}
	if fc.EnablePublisher != nil {
		cfg.EnablePublisher = *fc.EnablePublisher
	}
	if fc.LogKeep != nil {
		cfg.LogKeep = *fc.LogKeep
	}
	if fc.AdminUser != nil {
		cfg.AuthUser = *fc.AdminUser
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getenv("PORT", cfg.Port)
	cfg.DBPath = getenv("DB_PATH", cfg.DBPath)
	cfg.EnableHTTP = envBool("ENABLE_HTTP", cfg.EnableHTTP)
	cfg.RatePerMinute = envInt("API_RATE_PER_MINUTE", cfg.RatePerMinute)
	cfg.TrustProxy = envBool("TRUST_PROXY", cfg.TrustProxy)
	cfg.EnablePublisher = envBool("ENABLE_PUBLISHER", cfg.EnablePublisher)
	cfg.LogKeep = envInt("LOG_KEEP", cfg.LogKeep)
	cfg.AuthUser = getenv("ADMIN_USER", cfg.AuthUser)
	cfg.GapPolicy = stats.GapPolicy(getenv("GAP_POLICY", string(cfg.GapPolicy)))

	if v := os.Getenv("SNAPSHOT_SECONDS"); v != "" {
		cfg.SnapshotInterval = envDurSecs("SNAPSHOT_SECONDS", 0)
	}
	if v := os.Getenv("STORE_TIMEOUT_SECONDS"); v != "" {
		cfg.StoreTimeout = envDurSecs("STORE_TIMEOUT_SECONDS", 0)
	}

	// Load admin password/hash
	if hp := getenv("ADMIN_PASSWORD_BCRYPT", ""); hp != "" {
		if _, err := bcrypt.Cost([]byte(hp)); err != nil {
			return fmt.Errorf("config: ADMIN_PASSWORD_BCRYPT: %w", err)
		}
		cfg.AuthHash = []byte(hp)
	} else if pw := getenv("ADMIN_PASSWORD", ""); pw != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("config: hash admin password: %w", err)
		}
		cfg.AuthHash = h
	} else {
		log.Println("No ADMIN_PASSWORD or ADMIN_PASSWORD_BCRYPT set; admin routes disabled")
	}
	return nil
}

// Validate rejects settings the engine cannot run with
func Validate(cfg *Config) error {
	var errs []error
	if cfg.SnapshotInterval <= 0 {
		errs = append(errs, errors.New("snapshot interval must be positive"))
	}
	if cfg.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store timeout must be positive"))
	}
	policy, err := stats.ParseGapPolicy(string(cfg.GapPolicy))
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.GapPolicy = policy
	}
	if cfg.LogKeep < 0 {
		errs = append(errs, errors.New("log keep must not be negative"))
	}
	if cfg.RatePerMinute < 0 {
		errs = append(errs, errors.New("api rate must not be negative"))
	}
	if cfg.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if cfg.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	return errors.Join(errs...)
}

// AdminEnabled reports whether admin credentials are configured
func (c *Config) AdminEnabled() bool {
	return len(c.AuthHash) > 0
}

// Helper functions
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(getenv(k, ""))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurSecs(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}
