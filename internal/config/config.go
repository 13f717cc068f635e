package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Refund policies applied when a session fails after credits were deducted.
const (
	RefundNone      = "none"       // keep the credit; deduction is tied to request acceptance
	RefundOnFailure = "on_failure" // give the credit back when the stream breaks
)

// Config holds application configuration.
type Config struct {
	// BaseURL is the root of the remote generation service.
	BaseURL string `json:"base_url"`

	// SessionID keys the request path (/api/chat/<session_id>/...).
	// A random UUID is assigned at load time when unset.
	SessionID string `json:"session_id,omitempty"`

	// DailyCredits is the balance restored on every reset. Zero is honored
	// when the key is present in a config file.
	DailyCredits int `json:"daily_credits"`

	// dailyCreditsSet records that a loaded file named daily_credits.
	dailyCreditsSet bool

	// ResetSchedule is a standard 5-field cron expression for credit resets.
	ResetSchedule string `json:"reset_schedule"`

	// RefundPolicy is one of "none" or "on_failure".
	RefundPolicy string `json:"refund_policy"`

	// RequestTimeoutSeconds bounds a whole session. 0 means no timeout.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// LogLevel is debug|info|warn|error. LogFormat is text|json.
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// AllowedPaths is an allowlist of directories for export operations.
	// Paths outside ~/.muse/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names to disable entirely.
	// Known types: "generate", "credits", "history".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://localhost:8787",
		DailyCredits:  10,
		ResetSchedule: "0 0 * * *",
		RefundPolicy:  RefundNone,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// RequestTimeout returns the session timeout as a duration (0 = none).
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json, then applies MUSE_* environment
// overrides, assigns a session ID if none is set, and validates the result.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadWithRepo loads configuration from both the global base dir and the nearest
// project-level .muse/config.json found by walking upward from startDir.
// Project config takes precedence for scalar values; arrays are merged (deduplicated).
// Environment overrides apply last.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return finish(Merge(Merge(DefaultConfig(), global), repo))
}

// FindRepoConfig walks upward from startDir to find the nearest .muse/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".muse", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// finish applies environment overrides, fills the session ID, and validates.
func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BaseDir returns the directory holding config and database:
// $MUSE_HOME if set, else ~/.muse.
func BaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("MUSE_HOME")); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".muse"), nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base_url must not be empty")
	}
	if c.DailyCredits < 0 {
		return fmt.Errorf("daily_credits must be non-negative, got %d", c.DailyCredits)
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request_timeout_seconds must be non-negative, got %d", c.RequestTimeoutSeconds)
	}
	if c.RefundPolicy != RefundNone && c.RefundPolicy != RefundOnFailure {
		return fmt.Errorf("refund_policy must be one of: %s, %s", RefundNone, RefundOnFailure)
	}
	if _, err := cron.ParseStandard(c.ResetSchedule); err != nil {
		return fmt.Errorf("invalid reset_schedule %q: %w", c.ResetSchedule, err)
	}
	return nil
}

// ApplyEnv overrides fields from MUSE_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v, ok := lookupEnv("MUSE_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := lookupEnv("MUSE_SESSION_ID"); ok {
		cfg.SessionID = v
	}
	if v, ok := lookupEnv("MUSE_RESET_SCHEDULE"); ok {
		cfg.ResetSchedule = v
	}
	if v, ok := lookupEnv("MUSE_REFUND_POLICY"); ok {
		cfg.RefundPolicy = v
	}
	if v, ok := lookupEnv("MUSE_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookupEnv("MUSE_LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}

	var err error
	if cfg.DailyCredits, err = envInt("MUSE_DAILY_CREDITS", cfg.DailyCredits); err != nil {
		return err
	}
	if cfg.RequestTimeoutSeconds, err = envInt("MUSE_REQUEST_TIMEOUT", cfg.RequestTimeoutSeconds); err != nil {
		return err
	}
	return nil
}

// lookupEnv returns a trimmed, non-empty environment value.
func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// envInt parses an integer environment variable, returning def when unset.
func envInt(key string, def int) (int, error) {
	v, ok := lookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, v)
	}
	return n, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	_, cfg.dailyCreditsSet = keys["daily_credits"]

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		BaseURL:               firstString(overlay.BaseURL, base.BaseURL),
		SessionID:             firstString(overlay.SessionID, base.SessionID),
		ResetSchedule:         firstString(overlay.ResetSchedule, base.ResetSchedule),
		RefundPolicy:          firstString(overlay.RefundPolicy, base.RefundPolicy),
		LogLevel:              firstString(overlay.LogLevel, base.LogLevel),
		LogFormat:             firstString(overlay.LogFormat, base.LogFormat),
		RequestTimeoutSeconds: firstInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds),
		DBMaxOpenConns:        firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:        firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	// An explicit zero in the overlay file wins over the base value.
	result.DailyCredits = firstInt(overlay.DailyCredits, base.DailyCredits)
	if overlay.dailyCreditsSet {
		result.DailyCredits = overlay.DailyCredits
	}
	result.dailyCreditsSet = base.dailyCreditsSet || overlay.dailyCreditsSet

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
