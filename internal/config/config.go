// Package config resolves minechat settings: built-in defaults, then an
// optional TOML file (only keys present in the file override defaults).
// Environment and flag overrides are applied by the CLI on top.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalidConfig = errors.New("config: invalid settings")

const (
	TokenBackendFile  = "file"
	TokenBackendRedis = "redis"
)

type Settings struct {
	Host           string
	ListenPort     int
	SendPort       int
	Token          string
	DatetimeFormat string
	LogFile        string
	Retry          Retry
	Timeouts       Timeouts
	TokenStore     TokenStore
	Admin          Admin
}

type Retry struct {
	MaxAttempts int
	Delay       time.Duration
}

type Timeouts struct {
	Connect   time.Duration
	Handshake time.Duration
	Read      time.Duration
	Write     time.Duration
}

type TokenStore struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

type Admin struct {
	Addr        string
	Token       string
	CorsOrigins []string
}

func Default() Settings {
	return Settings{
		Host:           "minechat.dvmn.org",
		ListenPort:     5000,
		SendPort:       5050,
		DatetimeFormat: "02.01.06 15:04",
		Retry: Retry{
			MaxAttempts: 3,
			Delay:       5 * time.Second,
		},
		Timeouts: Timeouts{
			Connect:   10 * time.Second,
			Handshake: 15 * time.Second,
			Write:     15 * time.Second,
		},
		TokenStore: TokenStore{
			Backend:   TokenBackendFile,
			Path:      "minechat.token",
			RedisAddr: "127.0.0.1:6379",
			RedisKey:  "minechat:token",
		},
	}
}

type fileConfig struct {
	Host           string `toml:"host"`
	ListenPort     int    `toml:"listen_port"`
	SendPort       int    `toml:"send_port"`
	Token          string `toml:"token"`
	DatetimeFormat string `toml:"datetime_format"`
	LogFile        string `toml:"log_file"`

	Retry struct {
		MaxAttempts int    `toml:"max_attempts"`
		Delay       string `toml:"delay"`
	} `toml:"retry"`

	Timeouts struct {
		Connect   string `toml:"connect"`
		Handshake string `toml:"handshake"`
		Read      string `toml:"read"`
		Write     string `toml:"write"`
	} `toml:"timeouts"`

	TokenStore struct {
		Backend       string `toml:"backend"`
		Path          string `toml:"path"`
		RedisAddr     string `toml:"redis_addr"`
		RedisPassword string `toml:"redis_password"`
		RedisDB       int    `toml:"redis_db"`
		RedisKey      string `toml:"redis_key"`
	} `toml:"token_store"`

	Admin struct {
		Addr        string   `toml:"addr"`
		Token       string   `toml:"token"`
		CorsOrigins []string `toml:"cors_origins"`
	} `toml:"admin"`
}

// Load returns defaults overlaid with the keys defined in path. An empty
// path yields the defaults.
func Load(path string) (Settings, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("listen_port") {
		cfg.ListenPort = raw.ListenPort
	}
	if meta.IsDefined("send_port") {
		cfg.SendPort = raw.SendPort
	}
	if meta.IsDefined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if meta.IsDefined("datetime_format") {
		cfg.DatetimeFormat = raw.DatetimeFormat
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}

	if meta.IsDefined("retry", "max_attempts") {
		cfg.Retry.MaxAttempts = raw.Retry.MaxAttempts
	}
	if err := overlayDuration(meta, &cfg.Retry.Delay, raw.Retry.Delay, "retry", "delay"); err != nil {
		return Settings{}, err
	}

	if err := overlayDuration(meta, &cfg.Timeouts.Connect, raw.Timeouts.Connect, "timeouts", "connect"); err != nil {
		return Settings{}, err
	}
	if err := overlayDuration(meta, &cfg.Timeouts.Handshake, raw.Timeouts.Handshake, "timeouts", "handshake"); err != nil {
		return Settings{}, err
	}
	if err := overlayDuration(meta, &cfg.Timeouts.Read, raw.Timeouts.Read, "timeouts", "read"); err != nil {
		return Settings{}, err
	}
	if err := overlayDuration(meta, &cfg.Timeouts.Write, raw.Timeouts.Write, "timeouts", "write"); err != nil {
		return Settings{}, err
	}

	if meta.IsDefined("token_store", "backend") {
		cfg.TokenStore.Backend = strings.ToLower(strings.TrimSpace(raw.TokenStore.Backend))
	}
	if meta.IsDefined("token_store", "path") {
		cfg.TokenStore.Path = strings.TrimSpace(raw.TokenStore.Path)
	}
	if meta.IsDefined("token_store", "redis_addr") {
		cfg.TokenStore.RedisAddr = strings.TrimSpace(raw.TokenStore.RedisAddr)
	}
	if meta.IsDefined("token_store", "redis_password") {
		cfg.TokenStore.RedisPassword = raw.TokenStore.RedisPassword
	}
	if meta.IsDefined("token_store", "redis_db") {
		cfg.TokenStore.RedisDB = raw.TokenStore.RedisDB
	}
	if meta.IsDefined("token_store", "redis_key") {
		cfg.TokenStore.RedisKey = strings.TrimSpace(raw.TokenStore.RedisKey)
	}

	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if !validPort(s.ListenPort) {
		return fmt.Errorf("%w: listen_port out of range: %d", ErrInvalidConfig, s.ListenPort)
	}
	if !validPort(s.SendPort) {
		return fmt.Errorf("%w: send_port out of range: %d", ErrInvalidConfig, s.SendPort)
	}
	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be >= 1", ErrInvalidConfig)
	}
	if s.Retry.Delay < 0 {
		return fmt.Errorf("%w: retry.delay must be >= 0", ErrInvalidConfig)
	}
	if strings.TrimSpace(s.DatetimeFormat) == "" {
		return fmt.Errorf("%w: datetime_format is required", ErrInvalidConfig)
	}
	switch s.TokenStore.Backend {
	case TokenBackendFile:
		if strings.TrimSpace(s.TokenStore.Path) == "" {
			return fmt.Errorf("%w: token_store.path is required for file backend", ErrInvalidConfig)
		}
	case TokenBackendRedis:
		if strings.TrimSpace(s.TokenStore.RedisAddr) == "" {
			return fmt.Errorf("%w: token_store.redis_addr is required for redis backend", ErrInvalidConfig)
		}
		if strings.TrimSpace(s.TokenStore.RedisKey) == "" {
			return fmt.Errorf("%w: token_store.redis_key is required for redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown token_store.backend %q", ErrInvalidConfig, s.TokenStore.Backend)
	}
	return nil
}

func overlayDuration(meta toml.MetaData, dst *time.Duration, raw string, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	*dst = d
	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
