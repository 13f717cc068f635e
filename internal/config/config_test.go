package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.BaseURL != def.BaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, def.BaseURL)
	}
	if cfg.DailyCredits != 10 {
		t.Errorf("DailyCredits = %d, want 10", cfg.DailyCredits)
	}
	if cfg.RefundPolicy != RefundNone {
		t.Errorf("RefundPolicy = %q, want %q", cfg.RefundPolicy, RefundNone)
	}
	if cfg.SessionID == "" {
		t.Error("SessionID should be generated when unset")
	}
	if cfg.RequestTimeout() != 0 {
		t.Errorf("RequestTimeout() = %v, want 0", cfg.RequestTimeout())
	}
}

func TestLoad_SessionIDIsRandomPerLoad(t *testing.T) {
	tmpDir := t.TempDir()

	a, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	b, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if a.SessionID == b.SessionID {
		t.Errorf("SessionID repeated across loads: %q", a.SessionID)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"base_url": "https://gen.example", "daily_credits": 25, "refund_policy": "on_failure", "session_id": "fixed"}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != "https://gen.example" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.DailyCredits != 25 {
		t.Errorf("DailyCredits = %d, want 25", cfg.DailyCredits)
	}
	if cfg.RefundPolicy != RefundOnFailure {
		t.Errorf("RefundPolicy = %q, want %q", cfg.RefundPolicy, RefundOnFailure)
	}
	if cfg.SessionID != "fixed" {
		t.Errorf("SessionID = %q, want fixed", cfg.SessionID)
	}
	// Untouched fields keep defaults
	if cfg.ResetSchedule != "0 0 * * *" {
		t.Errorf("ResetSchedule = %q, want default", cfg.ResetSchedule)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"base_url": "https://file.example", "daily_credits": 3}`)

	t.Setenv("MUSE_BASE_URL", "https://env.example")
	t.Setenv("MUSE_DAILY_CREDITS", "7")
	t.Setenv("MUSE_REQUEST_TIMEOUT", "30")
	t.Setenv("MUSE_LOG_FORMAT", "json")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != "https://env.example" {
		t.Errorf("BaseURL = %q, want env value", cfg.BaseURL)
	}
	if cfg.DailyCredits != 7 {
		t.Errorf("DailyCredits = %d, want 7", cfg.DailyCredits)
	}
	if cfg.RequestTimeoutSeconds != 30 {
		t.Errorf("RequestTimeoutSeconds = %d, want 30", cfg.RequestTimeoutSeconds)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestLoad_EnvInvalidInteger(t *testing.T) {
	t.Setenv("MUSE_DAILY_CREDITS", "lots")

	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("Load() expected error for non-integer MUSE_DAILY_CREDITS")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"on_failure policy", func(c *Config) { c.RefundPolicy = RefundOnFailure }, false},
		{"unknown policy", func(c *Config) { c.RefundPolicy = "sometimes" }, true},
		{"bad cron", func(c *Config) { c.ResetSchedule = "every day" }, true},
		{"six-field cron", func(c *Config) { c.ResetSchedule = "0 0 0 * * *" }, true},
		{"hourly cron", func(c *Config) { c.ResetSchedule = "0 * * * *" }, false},
		{"negative credits", func(c *Config) { c.DailyCredits = -1 }, true},
		{"negative timeout", func(c *Config) { c.RequestTimeoutSeconds = -5 }, true},
		{"empty base url", func(c *Config) { c.BaseURL = " " }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["history_export", "generate_repurpose"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "history_export" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "history_export")
	}
}

func TestLoad_ZeroDailyCreditsFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"daily_credits": 0}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DailyCredits != 0 {
		t.Errorf("DailyCredits = %d, want 0 (explicit in file)", cfg.DailyCredits)
	}
}

func TestLoadWithRepo_ZeroDailyCredits(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	writeConfig(t, globalDir, `{"daily_credits": 0}`)

	museDir := filepath.Join(repoRoot, ".muse")
	if err := os.MkdirAll(museDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	writeConfig(t, museDir, `{"log_level": "debug"}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.DailyCredits != 0 {
		t.Errorf("DailyCredits = %d, want 0 (global zero survives repo overlay)", cfg.DailyCredits)
	}

	writeConfig(t, museDir, `{"daily_credits": 0}`)
	writeConfig(t, globalDir, `{"daily_credits": 6}`)
	cfg, err = LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.DailyCredits != 0 {
		t.Errorf("DailyCredits = %d, want 0 (repo zero overrides global)", cfg.DailyCredits)
	}
}

func TestLoadWithRepo_RepoOverridesGlobal(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"daily_credits": 8, "disabled_tools": ["history_export"]}`)

	museDir := filepath.Join(repoRoot, ".muse")
	if err := os.MkdirAll(museDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	writeConfig(t, museDir, `{"daily_credits": 4, "disabled_tools": ["generate_caption"]}`)

	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.DailyCredits != 4 {
		t.Errorf("DailyCredits = %d, want 4 (repo override)", cfg.DailyCredits)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want merged from both", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_NoRepoConfig(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, globalDir, `{"daily_credits": 8}`)

	cfg, err := LoadWithRepo(globalDir, t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.DailyCredits != 8 {
		t.Errorf("DailyCredits = %d, want 8", cfg.DailyCredits)
	}
}

func TestBaseDir_EnvOverride(t *testing.T) {
	t.Setenv("MUSE_HOME", "/tmp/muse-home")

	dir, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir() error = %v", err)
	}
	if dir != "/tmp/muse-home" {
		t.Errorf("BaseDir() = %q, want /tmp/muse-home", dir)
	}
}

func TestMerge_ArraysDeduplicated(t *testing.T) {
	base := &Config{AllowedPaths: []string{"/a", " /b "}}
	overlay := &Config{AllowedPaths: []string{"/b", "/c", ""}}

	got := Merge(base, overlay)
	want := []string{"/a", "/b", "/c"}
	if len(got.AllowedPaths) != len(want) {
		t.Fatalf("AllowedPaths = %v, want %v", got.AllowedPaths, want)
	}
	for i := range want {
		if got.AllowedPaths[i] != want[i] {
			t.Errorf("AllowedPaths[%d] = %q, want %q", i, got.AllowedPaths[i], want[i])
		}
	}
}
