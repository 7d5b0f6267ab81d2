// Package core carries ptyserver's ambient configuration: paths, default
// launch parameters, and logging verbosity. None of it affects the wire
// protocol in internal/protocol — the socket path handed to the daemon
// binary remains a plain positional argument, exactly as spec.md requires.
package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	// BaseDirName is the default directory under $HOME holding the config
	// file and, unless overridden, the control socket.
	BaseDirName = ".config/ptyserver"
	// ConfigFileName is the HCL file read from the config directory.
	ConfigFileName = "config.hcl"
	// SocketName is the default control socket file name.
	SocketName = "daemon.sock"
)

// Config is the process-wide configuration instance, set once by the root
// command from the value Load returns.
var Config *Configuration

// Configuration holds everything ptyserver's CLI layer needs beyond the
// wire protocol itself.
type Configuration struct {
	ConfigPath string // Directory holding config.hcl and, by default, the socket
	Verbose    int    // 0=info, 1=debug

	DefaultShell  string   // sole DefaultArgv entry when default_argv is not set
	DefaultArgv   []string // full argv used when a launch omits a command
	DefaultWidth  int
	DefaultHeight int
}

type hclConfig struct {
	Verbose       int      `hcl:"verbose,optional"`
	DefaultShell  string   `hcl:"default_shell,optional"`
	DefaultArgv   []string `hcl:"default_argv,optional"`
	DefaultWidth  int      `hcl:"default_width,optional"`
	DefaultHeight int      `hcl:"default_height,optional"`
}

// Default returns the built-in configuration. Load returns it as is when
// no config.hcl exists, and otherwise starts from it and overrides the
// settings the file sets.
func Default(configPath string) *Configuration {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return &Configuration{
		ConfigPath:    configPath,
		DefaultShell:  shell,
		DefaultArgv:   []string{shell},
		DefaultWidth:  80,
		DefaultHeight: 24,
	}
}

// Load reads config.hcl from configPath if present, falling back to
// Default when the file does not exist. A malformed file is an error —
// unlike the teacher's old viper-based config, there is no silent partial
// load on a bad file.
func Load(configPath string) (*Configuration, error) {
	cfg := Default(configPath)

	path := filepath.Join(configPath, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}

	var raw hclConfig
	if err := hclsimple.DecodeFile(path, nil, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if raw.Verbose != 0 {
		cfg.Verbose = raw.Verbose
	}
	if raw.DefaultShell != "" {
		cfg.DefaultShell = raw.DefaultShell
	}
	if len(raw.DefaultArgv) > 0 {
		cfg.DefaultArgv = raw.DefaultArgv
	} else {
		cfg.DefaultArgv = []string{cfg.DefaultShell}
	}
	if raw.DefaultWidth > 0 {
		cfg.DefaultWidth = raw.DefaultWidth
	}
	if raw.DefaultHeight > 0 {
		cfg.DefaultHeight = raw.DefaultHeight
	}
	return cfg, nil
}

// GetSocketPath returns the default control socket path, used when the
// CLI is not given an explicit one.
func GetSocketPath() string {
	return filepath.Join(Config.ConfigPath, SocketName)
}

// DefaultConfigPath returns $HOME/.config/ptyserver, creating nothing.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return BaseDirName
	}
	return filepath.Join(home, BaseDirName)
}
