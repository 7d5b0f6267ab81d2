package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultWidth != 80 || cfg.DefaultHeight != 24 {
		t.Fatalf("expected built-in defaults, got %+v", cfg)
	}
	if len(cfg.DefaultArgv) == 0 {
		t.Fatal("expected a non-empty default argv")
	}
}

func TestLoadParsesHCLFile(t *testing.T) {
	dir := t.TempDir()
	contents := `
verbose = 1
default_shell = "/bin/zsh"
default_argv = ["/bin/zsh", "-l"]
default_width = 120
default_height = 40
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Verbose != 1 {
		t.Errorf("Verbose = %d, want 1", cfg.Verbose)
	}
	if cfg.DefaultShell != "/bin/zsh" {
		t.Errorf("DefaultShell = %q, want /bin/zsh", cfg.DefaultShell)
	}
	if cfg.DefaultWidth != 120 || cfg.DefaultHeight != 40 {
		t.Errorf("unexpected geometry: %+v", cfg)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("not valid hcl {{{"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected an error parsing malformed config")
	}
}

func TestGetSocketPath(t *testing.T) {
	old := Config
	defer func() { Config = old }()
	Config = &Configuration{ConfigPath: "/tmp/ptyserver-test"}
	want := filepath.Join("/tmp/ptyserver-test", SocketName)
	if got := GetSocketPath(); got != want {
		t.Errorf("GetSocketPath() = %q, want %q", got, want)
	}
}
