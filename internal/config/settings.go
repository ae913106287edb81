package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultServerBaseURL   = "http://127.0.0.1:8686"
	defaultStreamPath      = "/stream"
	defaultRequestTimeout  = 5 * time.Minute
	defaultAbortTimeout    = 10 * time.Second
	defaultMaxReconnects   = 3
	defaultReconnectDelay  = 2 * time.Second
	defaultMaxBackoff      = 30 * time.Second
	defaultAgent           = "build"
	defaultProxyListen     = "127.0.0.1:8686"
	defaultProxyUpstream   = "http://127.0.0.1:2380"
	defaultLogLevel        = "info"
	defaultPreferredModel  = ""
	defaultProjectsRootDir = "projects"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Stream  StreamConfig  `toml:"stream"`
	Chat    ChatConfig    `toml:"chat"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Logging LoggingConfig `toml:"logging"`
	Debug   DebugConfig   `toml:"debug"`
}

type ServerConfig struct {
	BaseURL        string `toml:"base_url"`
	StreamPath     string `toml:"stream_path"`
	RequestTimeout string `toml:"request_timeout"`
	Username       string `toml:"username"`
	Token          string `toml:"token"`
}

type StreamConfig struct {
	Enhance          *bool  `toml:"enhance"`
	MaxReconnects    *int   `toml:"max_reconnects"`
	ReconnectBackoff string `toml:"reconnect_backoff"`
	MaxBackoff       string `toml:"max_backoff"`
}

type ChatConfig struct {
	Directory      string `toml:"directory"`
	ProjectsRoot   string `toml:"projects_root"`
	PreferredModel string `toml:"preferred_model"`
	DefaultAgent   string `toml:"default_agent"`
	PersonalRules  string `toml:"personal_rules"`
	AbortTimeout   string `toml:"abort_timeout"`
}

type ProxyConfig struct {
	Listen   string `toml:"listen"`
	Upstream string `toml:"upstream"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

type DebugConfig struct {
	StreamDebug bool `toml:"stream_debug"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:    defaultServerBaseURL,
			StreamPath: defaultStreamPath,
		},
		Chat: ChatConfig{
			DefaultAgent: defaultAgent,
		},
		Proxy: ProxyConfig{
			Listen:   defaultProxyListen,
			Upstream: defaultProxyUpstream,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// Load reads the config file from the data dir. A missing file yields defaults.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFromPath(path)
}

func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders the config as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func (c Config) ServerBaseURL() string {
	raw := strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if raw == "" {
		return defaultServerBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return raw
}

func (c Config) StreamPath() string {
	path := strings.TrimSpace(c.Server.StreamPath)
	if path == "" {
		return defaultStreamPath
	}
	return "/" + strings.TrimLeft(path, "/")
}

func (c Config) RequestTimeout() time.Duration {
	return parseDuration(c.Server.RequestTimeout, defaultRequestTimeout)
}

func (c Config) StreamEnhance() bool {
	if c.Stream.Enhance == nil {
		return true
	}
	return *c.Stream.Enhance
}

func (c Config) MaxReconnects() int {
	if c.Stream.MaxReconnects == nil || *c.Stream.MaxReconnects < 0 {
		return defaultMaxReconnects
	}
	return *c.Stream.MaxReconnects
}

func (c Config) ReconnectBackoff() time.Duration {
	return parseDuration(c.Stream.ReconnectBackoff, defaultReconnectDelay)
}

func (c Config) MaxBackoff() time.Duration {
	return parseDuration(c.Stream.MaxBackoff, defaultMaxBackoff)
}

func (c Config) Directory() string {
	return strings.TrimSpace(c.Chat.Directory)
}

// ProjectsRoot is where relative project names resolve. Relative roots sit
// under the data dir.
func (c Config) ProjectsRoot() (string, error) {
	root := strings.TrimSpace(c.Chat.ProjectsRoot)
	if root == "" {
		root = defaultProjectsRootDir
	}
	return resolveConfigPath(root)
}

func (c Config) PreferredModel() string {
	model := strings.TrimSpace(c.Chat.PreferredModel)
	if model == "" {
		return defaultPreferredModel
	}
	return model
}

func (c Config) DefaultAgent() string {
	agent := strings.TrimSpace(c.Chat.DefaultAgent)
	if agent == "" {
		return defaultAgent
	}
	return agent
}

func (c Config) PersonalRules() string {
	return strings.TrimSpace(c.Chat.PersonalRules)
}

func (c Config) AbortTimeout() time.Duration {
	return parseDuration(c.Chat.AbortTimeout, defaultAbortTimeout)
}

func (c Config) ProxyListen() string {
	addr := strings.TrimSpace(c.Proxy.Listen)
	if addr == "" {
		return defaultProxyListen
	}
	return addr
}

func (c Config) ProxyUpstream() string {
	raw := strings.TrimRight(strings.TrimSpace(c.Proxy.Upstream), "/")
	if raw == "" {
		return defaultProxyUpstream
	}
	return raw
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return defaultLogLevel
	}
	return level
}

func (c Config) StreamDebugEnabled() bool {
	return c.Debug.StreamDebug
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func resolveConfigPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, path), nil
}
