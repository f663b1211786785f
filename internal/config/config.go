package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the bridge needs to attach a control-mode
// client and serve it to hosts. Values resolve in three layers:
// defaults, then the YAML config file, then command-line flags.
type Config struct {
	Port           int      `yaml:"port"`
	Token          string   `yaml:"token"`
	Session        string   `yaml:"session"`
	RemoteHost     string   `yaml:"remote_host"`
	TmuxPath       string   `yaml:"tmux_path"`
	SSHPath        string   `yaml:"ssh_path"`
	HistoryPath    string   `yaml:"history_path"`
	ResizeInterval Duration `yaml:"resize_interval"`
	LogLevel       string   `yaml:"log_level"`

	ConfigPath string `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		Port:           8765,
		TmuxPath:       "tmux",
		SSHPath:        "ssh",
		ResizeInterval: Duration(100 * time.Millisecond),
		LogLevel:       "info",
	}
}

// Load resolves the configuration from defaults, the config file and
// flags, and validates the result.
func Load() (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	cfg.ConfigPath = filepath.Join(homeDir, ".config", "muxlink", "config.yaml")

	flag.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "path to config file")
	port := flag.Int("port", 0, "server port (1-65535)")
	token := flag.String("token", "", "authentication token (auto-generated if empty)")
	session := flag.String("session", "", "multiplexer session name to attach (new session if empty)")
	remoteHost := flag.String("remote", "", "run the multiplexer on this host over ssh")
	historyPath := flag.String("history", "", "path to command history database")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	if *port != 0 {
		cfg.Port = *port
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *session != "" {
		cfg.Session = *session
	}
	if *remoteHost != "" {
		cfg.RemoteHost = *remoteHost
	}
	if *historyPath != "" {
		cfg.HistoryPath = *historyPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		generated, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		cfg.Token = generated
		if err := cfg.saveToFile(); err != nil {
			return nil, fmt.Errorf("save config file: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", c.ConfigPath, err)
	}
	return nil
}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.ConfigPath, data, 0o600)
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if strings.TrimSpace(c.TmuxPath) == "" {
		return fmt.Errorf("tmux_path cannot be empty")
	}
	if c.RemoteHost != "" && strings.TrimSpace(c.SSHPath) == "" {
		return fmt.Errorf("ssh_path cannot be empty when remote_host is set")
	}
	if c.ResizeInterval < 0 {
		return fmt.Errorf("resize_interval cannot be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Duration wraps time.Duration so YAML accepts the usual "100ms" form.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ParseLogLevel maps a config string to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
