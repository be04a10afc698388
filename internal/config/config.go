// Package config resolves the effective scriptd configuration from
// compiled-in defaults and an optional YAML file, the same
// increasing-priority merge the teacher's config.Manager applies across
// its user/project settings files, collapsed to a single file since
// scriptd has no per-project config scope.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved set of knobs the server runs with.
type Config struct {
	ScriptsDir   string
	Extension    string
	Interpreter  string
	ScanInterval time.Duration
	Deadline     time.Duration
	Grace        time.Duration
	Concurrency  int64
	ListenAddr   string
	AuditDBPath  string
}

// fileConfig mirrors Config with string durations (YAML has no native
// time.Duration) and zero values meaning "not set".
type fileConfig struct {
	ScriptsDir   string `yaml:"scripts_dir"`
	Extension    string `yaml:"extension"`
	Interpreter  string `yaml:"interpreter"`
	ScanInterval string `yaml:"scan_interval"`
	Deadline     string `yaml:"deadline"`
	Grace        string `yaml:"grace"`
	Concurrency  int64  `yaml:"concurrency"`
	ListenAddr   string `yaml:"listen_addr"`
	AuditDBPath  string `yaml:"audit_db_path"`
}

// Defaults returns the compiled-in configuration, matching the constants
// named in spec.md §6.
func Defaults() Config {
	return Config{
		ScriptsDir:   "./scripts",
		Extension:    ".py",
		Interpreter:  "python3",
		ScanInterval: 5 * time.Second,
		Deadline:     30 * time.Second,
		Grace:        time.Second,
		Concurrency:  4,
		ListenAddr:   ":8080",
		AuditDBPath:  "scriptd-audit.db",
	}
}

// Load builds a Config starting from Defaults, overlaying path's YAML
// contents if it exists. A missing file is not an error: scriptd runs on
// defaults alone.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, err
	}
	cfg.merge(fc)
	return cfg, nil
}

func (c *Config) merge(fc fileConfig) {
	if fc.ScriptsDir != "" {
		c.ScriptsDir = fc.ScriptsDir
	}
	if fc.Extension != "" {
		c.Extension = fc.Extension
	}
	if fc.Interpreter != "" {
		c.Interpreter = fc.Interpreter
	}
	if fc.ScanInterval != "" {
		if d, err := time.ParseDuration(fc.ScanInterval); err == nil {
			c.ScanInterval = d
		}
	}
	if fc.Deadline != "" {
		if d, err := time.ParseDuration(fc.Deadline); err == nil {
			c.Deadline = d
		}
	}
	if fc.Grace != "" {
		if d, err := time.ParseDuration(fc.Grace); err == nil {
			c.Grace = d
		}
	}
	if fc.Concurrency != 0 {
		c.Concurrency = fc.Concurrency
	}
	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.AuditDBPath != "" {
		c.AuditDBPath = fc.AuditDBPath
	}
}
