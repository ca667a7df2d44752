// Package config loads localturk settings from defaults, a config file, the
// environment and command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Default values.
const (
	DefaultPort     = 4321
	DefaultHost     = "localhost"
	DefaultLogLevel = "info"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LOCALTURK_"

// Config holds the settings of one localturk run.
type Config struct {
	// Server
	Port      int    `toml:"port" yaml:"port"`
	Host      string `toml:"host" yaml:"host"`
	StaticDir string `toml:"static_dir" yaml:"static_dir"`
	NoBrowser bool   `toml:"no_browser" yaml:"no_browser"`

	// Logging
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// Command line only.
	ConfigFile    string `toml:"-" yaml:"-"`
	WriteTemplate bool   `toml:"-" yaml:"-"`
	Version       bool   `toml:"-" yaml:"-"`

	// Positional arguments.
	TemplateFile string `toml:"-" yaml:"-"`
	TasksFile    string `toml:"-" yaml:"-"`
	OutputsFile  string `toml:"-" yaml:"-"`
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// URL returns the address a browser should open.
func (c *Config) URL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Port)
}

// projectConfigFiles are probed in order in the working directory.
var projectConfigFiles = []string{"localturk.toml", ".localturk.toml", "localturk.yaml", "localturk.yml"}

// Load merges, lowest priority first: defaults, the config file, the .env
// file and process environment, then the flags explicitly set in args.
//
// fs receives the flag definitions; a nil fs gets a fresh ContinueOnError set.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	if fs == nil {
		fs = flag.NewFlagSet("localturk", flag.ContinueOnError)
	}
	flags := &Config{}
	registerFlags(fs, flags)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	cfg := &Config{}
	setDefaults(cfg)

	path := flags.ConfigFile
	if path == "" {
		path = findProjectConfigFile()
	}
	if path != "" {
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
	}

	env, err := readDotEnv(".env")
	if err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := loadFromEnv(cfg, env); err != nil {
		return nil, err
	}

	applyFlags(cfg, flags, fs)

	if err := setPositional(cfg, fs.Args()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Port = DefaultPort
	cfg.Host = DefaultHost
	cfg.LogLevel = DefaultLogLevel
}

func registerFlags(fs *flag.FlagSet, f *Config) {
	fs.IntVar(&f.Port, "port", DefaultPort, "Run on this port")
	fs.StringVar(&f.Host, "host", DefaultHost, "Interface to listen on")
	fs.StringVar(&f.StaticDir, "static-dir", "", "Serve static content from this directory (default: the template's directory)")
	fs.StringVar(&f.LogLevel, "log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&f.ConfigFile, "config", "", "Path to a TOML or YAML config file")
	fs.BoolVar(&f.NoBrowser, "no-browser", false, "Do not open a browser")
	fs.BoolVar(&f.WriteTemplate, "write-template", false, "Print a stub template for tasks.csv and exit")
	fs.BoolVar(&f.Version, "version", false, "Print version and exit")
}

// applyFlags copies the flags that were set on the command line.
func applyFlags(cfg, flags *Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = flags.Port
		case "host":
			cfg.Host = flags.Host
		case "static-dir":
			cfg.StaticDir = flags.StaticDir
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		case "no-browser":
			cfg.NoBrowser = flags.NoBrowser
		}
	})
	cfg.WriteTemplate = flags.WriteTemplate
	cfg.Version = flags.Version
}

func setPositional(cfg *Config, args []string) error {
	switch {
	case cfg.Version:
		return nil
	case cfg.WriteTemplate:
		if len(args) != 1 {
			return fmt.Errorf("%w: --write-template expects tasks.csv, got %d arguments", ErrInvalidConfig, len(args))
		}
		cfg.TasksFile = args[0]
	default:
		if len(args) != 3 {
			return fmt.Errorf("%w: expected template.html tasks.csv outputs.csv, got %d arguments", ErrInvalidConfig, len(args))
		}
		cfg.TemplateFile, cfg.TasksFile, cfg.OutputsFile = args[0], args[1], args[2]
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

func findProjectConfigFile() string {
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// loadConfigFile decodes path over cfg, picking the format from the extension.
func loadConfigFile(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.DecodeFile(path, cfg)
		return err
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, filepath.Ext(path))
	}
}

// readDotEnv returns the variables of the .env file at path, or nothing when
// it does not exist.
func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return env, err
}

// loadFromEnv overrides cfg from the process environment, falling back to
// the .env values.
func loadFromEnv(cfg *Config, dotenv map[string]string) error {
	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+name]
		return v, ok
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sPORT=%q is not a number", ErrInvalidConfig, EnvPrefix, v)
		}
		cfg.Port = port
	}
	if v, ok := lookup("HOST"); ok && v != "" {
		cfg.Host = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup("STATIC_DIR"); ok && v != "" {
		cfg.StaticDir = v
	}
	if v, ok := lookup("NO_BROWSER"); ok {
		cfg.NoBrowser = boolFromString(v)
	}
	return nil
}

func boolFromString(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}
