package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/minechat/internal/admin"
	"github.com/danmuck/minechat/internal/auth"
	"github.com/danmuck/minechat/internal/config"
	"github.com/danmuck/minechat/internal/logging"
	"github.com/danmuck/minechat/internal/session"
	"github.com/danmuck/minechat/internal/tokenstore"
)

type listenCmd struct {
	AdminAddr string `help:"Serve /health, /metrics and /session on this address." env:"MINECHAT_ADMIN_ADDR"`

	out io.Writer
}

func (c *listenCmd) Run(ctx context.Context, g *globals) error {
	settings, err := g.bootstrap()
	if err != nil {
		return err
	}
	cfg := session.FromSettings(settings)
	cfg.Roles = session.RoleListen

	s, err := session.Open(ctx, cfg, session.Credentials{}, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if addr := firstNonEmpty(c.AdminAddr, settings.Admin.Addr); addr != "" {
		srv := admin.New(addr, settings.Admin.CorsOrigins, s)
		if settings.Admin.Token != "" {
			srv.RequireToken(auth.StaticToken{Token: settings.Admin.Token})
		}
		go func() {
			if err := srv.Run(ctx); err != nil {
				logging.Errf("minechat.listen admin stopped err=%v", err)
			}
		}()
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}
	p := newPrinter(out, settings.DatetimeFormat, time.Now)
	for line, err := range s.Consume(ctx) {
		if err != nil {
			return err
		}
		if err := p.Print(line); err != nil {
			return err
		}
	}
	return nil
}

type sendCmd struct {
	Msg      string `help:"Message to publish." required:""`
	Token    string `help:"Account token issued at registration."`
	Username string `help:"Register a new account with this name before sending."`

	out io.Writer
}

func (c *sendCmd) Run(ctx context.Context, g *globals) error {
	settings, err := g.bootstrap()
	if err != nil {
		return err
	}
	store, err := tokenstore.Open(settings.TokenStore)
	if err != nil {
		return err
	}
	defer closeStore(store)

	cfg := session.FromSettings(settings)
	cfg.Roles = session.RoleSend
	creds := resolveCredentials(c.Token, c.Username, settings.Token)

	s, err := session.Open(ctx, cfg, creds, store)
	if err != nil {
		return err
	}
	defer s.Close()

	out := c.out
	if out == nil {
		out = os.Stderr
	}
	if reg, ok := s.Registration(); ok {
		fmt.Fprintf(out, "registered as %s, token saved to %s\n", reg.AssignedNickname, storeLocation(settings.TokenStore))
	}
	if err := s.Produce(ctx, c.Msg); err != nil {
		return err
	}
	logging.Infof("minechat.send ok bytes=%d", len(c.Msg))
	return nil
}

type registerCmd struct {
	Username string `help:"Preferred nickname." required:""`

	out io.Writer
}

func (c *registerCmd) Run(ctx context.Context, g *globals) error {
	settings, err := g.bootstrap()
	if err != nil {
		return err
	}
	store, err := tokenstore.Open(settings.TokenStore)
	if err != nil {
		return err
	}
	defer closeStore(store)

	cfg := session.FromSettings(settings)
	cfg.Roles = session.RoleSend

	s, err := session.Open(ctx, cfg, session.Credentials{Username: c.Username}, store)
	if err != nil {
		return err
	}
	defer s.Close()

	reg, ok := s.Registration()
	if !ok {
		return errors.New("registration result missing")
	}
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "nickname: %s\ntoken: %s\nsaved to: %s\n", reg.AssignedNickname, reg.IssuedToken, storeLocation(settings.TokenStore))
	return nil
}

type initConfigCmd struct {
	Path  string `arg:"" optional:"" default:"minechat.toml" type:"path" help:"Destination file."`
	Force bool   `help:"Overwrite an existing file."`
}

func (c *initConfigCmd) Run() error {
	if err := config.WriteTemplate(c.Path, c.Force); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", c.Path)
	return nil
}

func closeStore(store tokenstore.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}

func storeLocation(cfg config.TokenStore) string {
	if cfg.Backend == config.TokenBackendRedis {
		return fmt.Sprintf("redis://%s/%s", cfg.RedisAddr, cfg.RedisKey)
	}
	return cfg.Path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
