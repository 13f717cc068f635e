package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/muse/internal/config"
	"github.com/hpungsan/muse/internal/db"
	"github.com/hpungsan/muse/internal/errors"
)

func TestValidatePath_TraversalRejected(t *testing.T) {
	t.Setenv("MUSE_HOME", t.TempDir())
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../ideas.md"},
		{"deep traversal", "../../etc/ideas.md"},
		{"mid-path traversal", "/tmp/../etc/ideas.html"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.md"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_ExtensionRequired(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	for _, path := range []string{"/tmp/ideas", "/tmp/ideas.json", "/tmp/ideas.csv", "/tmp/ideas.htm"} {
		t.Run(path, func(t *testing.T) {
			err := ValidatePath(path, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_EmptyPath(t *testing.T) {
	if err := ValidatePath("", config.DefaultConfig()); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidatePath_ExportsDirAllowed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MUSE_HOME", home)
	cfg := config.DefaultConfig()

	exportsDir := db.ExportsDir(home)
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		t.Fatal(err)
	}

	if err := ValidatePath(filepath.Join(exportsDir, "ideas.md"), cfg); err != nil {
		t.Errorf("expected exports dir to be allowed, got: %v", err)
	}
	if err := ValidatePath(filepath.Join(exportsDir, "ideas.html"), cfg); err != nil {
		t.Errorf("expected .html to be allowed, got: %v", err)
	}
}

func TestValidatePath_DirectoryRestriction(t *testing.T) {
	t.Setenv("MUSE_HOME", t.TempDir())
	cfg := config.DefaultConfig()

	err := ValidatePath(filepath.Join(t.TempDir(), "ideas.md"), cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidatePath_AllowUnsafePaths(t *testing.T) {
	t.Setenv("MUSE_HOME", t.TempDir())
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	if err := ValidatePath(filepath.Join(t.TempDir(), "out.md"), cfg); err != nil {
		t.Errorf("expected success with AllowUnsafePaths=true, got: %v", err)
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	t.Setenv("MUSE_HOME", t.TempDir())
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed, "relative/ignored"}

	if err := ValidatePath(filepath.Join(allowed, "out.md"), cfg); err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}
	if err := ValidatePath(filepath.Join(t.TempDir(), "out.md"), cfg); err == nil {
		t.Error("expected error for path outside AllowedPaths, got nil")
	}
}

func TestValidatePath_NestedPathRejected(t *testing.T) {
	t.Setenv("MUSE_HOME", t.TempDir())
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed}

	subDir := filepath.Join(allowed, "subdir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	err := ValidatePath(filepath.Join(subDir, "out.md"), cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidatePath_SymlinkFileRejected(t *testing.T) {
	t.Setenv("MUSE_HOME", t.TempDir())
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed}

	target := filepath.Join(t.TempDir(), "secret.md")
	if err := os.WriteFile(target, []byte("x"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}
	link := filepath.Join(allowed, "out.md")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	if err := ValidatePath(link, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}

	// AllowUnsafePaths lifts the directory rule only.
	cfg.AllowUnsafePaths = true
	if err := ValidatePath(link, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest with unsafe paths, got: %v", err)
	}
}

func TestValidatePath_SymlinkedAllowedDirResolved(t *testing.T) {
	t.Setenv("MUSE_HOME", t.TempDir())
	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "exports-link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{link}

	if err := ValidatePath(filepath.Join(target, "out.md"), cfg); err != nil {
		t.Errorf("expected real target of symlinked allowed path to be allowed, got: %v", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/file.md", false},
		{"../file.md", true},
		{"/home/../etc/passwd", true},
		{"./file.md", false},
		{"/home/user/.hidden/file.md", false},
		{"file..name.md", false},
		{"/tmp/a/b/../c.html", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := containsTraversal(tc.path); got != tc.contains {
				t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
			}
		})
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "ideas-01HZX", "ideas-01HZX"},
		{"forward slash", "path/to/file", "path-to-file"},
		{"backslash", "path\\to\\file", "path-to-file"},
		{"double dots", "foo..bar", "foo-bar"},
		{"traversal attempt", "../../../etc/passwd", "etc-passwd"},
		{"null bytes", "foo\x00bar", "foobar"},
		{"empty after sanitize", "../../..", "unnamed"},
		{"unicode preserved", "ideas-中文", "ideas-中文"},
		{"multiple dashes collapse", "a---b", "a-b"},
		{"leading and trailing dashes trimmed", "--foo--", "foo"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeForFilename(tc.input); got != tc.expected {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
