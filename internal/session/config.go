package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/minechat/internal/config"
	"github.com/danmuck/minechat/internal/retry"
	"github.com/danmuck/minechat/internal/transport"
)

// Role selects which of the two chat connections a session opens.
type Role uint8

const (
	RoleListen Role = 1 << iota
	RoleSend

	RoleBoth = RoleListen | RoleSend
)

func (r Role) Has(other Role) bool {
	return r&other == other
}

func (r Role) String() string {
	switch r {
	case RoleListen:
		return "listen"
	case RoleSend:
		return "send"
	case RoleBoth:
		return "listen+send"
	default:
		return "none"
	}
}

// Config is everything a session needs from the outside; there is no
// process-wide state.
type Config struct {
	Host             string
	ListenPort       int
	SendPort         int
	Roles            Role
	Transport        transport.Options
	HandshakeTimeout time.Duration
	Retry            retry.Policy
}

func DefaultConfig() Config {
	return FromSettings(config.Default())
}

// FromSettings maps resolved settings onto a session config with both roles.
func FromSettings(s config.Settings) Config {
	return Config{
		Host:       s.Host,
		ListenPort: s.ListenPort,
		SendPort:   s.SendPort,
		Roles:      RoleBoth,
		Transport: transport.Options{
			ConnectTimeout: s.Timeouts.Connect,
			ReadTimeout:    s.Timeouts.Read,
			WriteTimeout:   s.Timeouts.Write,
		},
		HandshakeTimeout: s.Timeouts.Handshake,
		Retry: retry.Policy{
			MaxAttempts: s.Retry.MaxAttempts,
			Delay:       s.Retry.Delay,
			Multiplier:  1.0,
		},
	}
}

func (c Config) WithDefaults() Config {
	if c.Roles == 0 {
		c.Roles = RoleBoth
	}
	c.Retry = c.Retry.WithDefaults()
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrHostRequired
	}
	if c.Roles.Has(RoleListen) && (c.ListenPort <= 0 || c.ListenPort > 65535) {
		return fmt.Errorf("%w: listen port %d", ErrPortRequired, c.ListenPort)
	}
	if c.Roles.Has(RoleSend) && (c.SendPort <= 0 || c.SendPort > 65535) {
		return fmt.Errorf("%w: send port %d", ErrPortRequired, c.SendPort)
	}
	return nil
}
