package main

import (
	"os"
	"strings"

	"github.com/danmuck/minechat/internal/config"
	"github.com/danmuck/minechat/internal/logging"
	"github.com/danmuck/minechat/internal/session"
)

// envToken sets the settings-level token. Unlike the --token flag it yields
// to an explicit --username.
const envToken = "MINECHAT_TOKEN"

// globals are flags shared by every subcommand. Non-zero values override
// the settings file.
type globals struct {
	Config     string `help:"Path to a TOML settings file." type:"path" env:"MINECHAT_CONFIG"`
	Host       string `help:"Chat server host name or IP." env:"MINECHAT_HOST"`
	ListenPort int    `help:"Port for reading chat messages." env:"MINECHAT_LISTEN_PORT"`
	SendPort   int    `help:"Port for publishing chat messages." env:"MINECHAT_SEND_PORT"`
	TokenFile  string `help:"File holding the account token." type:"path" env:"MINECHAT_TOKEN_FILE"`
	LogFile    string `help:"Append logs to this file." type:"path" env:"MINECHAT_LOG_FILE"`
}

func (g *globals) settings() (config.Settings, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return config.Settings{}, err
	}
	if v := strings.TrimSpace(os.Getenv(envToken)); v != "" {
		cfg.Token = v
	}
	if v := strings.TrimSpace(g.Host); v != "" {
		cfg.Host = v
	}
	if g.ListenPort != 0 {
		cfg.ListenPort = g.ListenPort
	}
	if g.SendPort != 0 {
		cfg.SendPort = g.SendPort
	}
	if v := strings.TrimSpace(g.TokenFile); v != "" {
		cfg.TokenStore.Backend = config.TokenBackendFile
		cfg.TokenStore.Path = v
	}
	if v := strings.TrimSpace(g.LogFile); v != "" {
		cfg.LogFile = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Settings{}, err
	}
	return cfg, nil
}

// bootstrap resolves settings and installs the process logger.
func (g *globals) bootstrap() (config.Settings, error) {
	cfg, err := g.settings()
	if err != nil {
		return config.Settings{}, err
	}
	if err := logging.ConfigureRuntime(cfg.LogFile); err != nil {
		return config.Settings{}, err
	}
	logging.Debugf("minechat.bootstrap host=%q listen_port=%d send_port=%d store=%s", cfg.Host, cfg.ListenPort, cfg.SendPort, cfg.TokenStore.Backend)
	return cfg, nil
}

// resolveCredentials picks the single active credential. Explicit flags win
// over the settings file; with nothing given the session reads the store.
func resolveCredentials(flagToken, flagUsername, settingsToken string) session.Credentials {
	switch {
	case strings.TrimSpace(flagToken) != "":
		return session.Credentials{Token: strings.TrimSpace(flagToken)}
	case strings.TrimSpace(flagUsername) != "":
		return session.Credentials{Username: strings.TrimSpace(flagUsername)}
	case strings.TrimSpace(settingsToken) != "":
		return session.Credentials{Token: strings.TrimSpace(settingsToken)}
	default:
		return session.Credentials{}
	}
}
