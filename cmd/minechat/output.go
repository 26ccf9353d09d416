package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/minechat/internal/config"
	"github.com/danmuck/minechat/internal/protocol"
	"github.com/danmuck/minechat/internal/retry"
	"github.com/danmuck/minechat/internal/session"
	"github.com/danmuck/minechat/internal/transport"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUnreachable = 2
)

// printer writes chat lines prefixed with a local timestamp.
type printer struct {
	w      io.Writer
	layout string
	now    func() time.Time
}

func newPrinter(w io.Writer, layout string, now func() time.Time) *printer {
	return &printer{w: w, layout: layout, now: now}
}

func (p *printer) Print(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	_, err := fmt.Fprintf(p.w, "[%s] %s\n", p.now().Format(p.layout), line)
	return err
}

// exitStatus maps a command error onto a process exit code and a short
// message for the user.
func exitStatus(err error) (int, string) {
	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		return exitOK, ""
	case errors.Is(err, context.Canceled):
		return exitOK, ""
	case errors.As(err, &exhausted), transport.IsConnectError(err):
		return exitUnreachable, "chat server unreachable, try again later"
	case errors.Is(err, protocol.ErrAuthentication):
		return exitFailure, "authentication failed: the token is invalid, register again with --username"
	case errors.Is(err, protocol.ErrProtocol):
		return exitFailure, "unexpected response from chat server"
	case errors.Is(err, transport.ErrConnectionClosed):
		return exitFailure, "connection closed by chat server"
	case errors.Is(err, session.ErrCredentialsRequired):
		return exitFailure, "no token found: pass --token or register with --username"
	case errors.Is(err, config.ErrInvalidConfig):
		return exitFailure, err.Error()
	default:
		return exitFailure, err.Error()
	}
}
