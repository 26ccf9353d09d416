package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/danmuck/minechat/internal/config"
	"github.com/danmuck/minechat/internal/protocol"
	"github.com/danmuck/minechat/internal/retry"
	"github.com/danmuck/minechat/internal/session"
	"github.com/danmuck/minechat/internal/testutil/chatserver"
	"github.com/danmuck/minechat/internal/testutil/testlog"
	"github.com/danmuck/minechat/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGlobals(t *testing.T, srv *chatserver.Server) *globals {
	t.Helper()
	return &globals{
		Host:       srv.Host(),
		ListenPort: srv.ListenPort(),
		SendPort:   srv.SendPort(),
		TokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

func TestResolveCredentials(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name                            string
		flagToken, flagUser, configured string
		want                            session.Credentials
	}{
		{name: "flag token", flagToken: " abc ", flagUser: "bob", configured: "cfg", want: session.Credentials{Token: "abc"}},
		{name: "username over configured token", flagUser: "bob", configured: "cfg", want: session.Credentials{Username: "bob"}},
		{name: "configured token", configured: "cfg", want: session.Credentials{Token: "cfg"}},
		{name: "nothing", want: session.Credentials{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resolveCredentials(tc.flagToken, tc.flagUser, tc.configured))
		})
	}
}

func TestEnvTokenYieldsToUsernameFlag(t *testing.T) {
	testlog.Start(t)
	t.Setenv(envToken, "from-env")

	tests := []struct {
		name string
		args []string
		want session.Credentials
	}{
		{name: "username flag wins", args: []string{"send", "--msg", "hi", "--username", "bob"}, want: session.Credentials{Username: "bob"}},
		{name: "token flag wins", args: []string{"send", "--msg", "hi", "--token", "from-flag", "--username", "bob"}, want: session.Credentials{Token: "from-flag"}},
		{name: "env token used alone", args: []string{"send", "--msg", "hi"}, want: session.Credentials{Token: "from-env"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var c cli
			parser, err := kong.New(&c, kong.Name("minechat"))
			require.NoError(t, err)
			_, err = parser.Parse(tc.args)
			require.NoError(t, err)

			settings, err := c.Globals.settings()
			require.NoError(t, err)
			assert.Equal(t, "from-env", settings.Token)
			assert.Equal(t, tc.want, resolveCredentials(c.Send.Token, c.Send.Username, settings.Token))
		})
	}
}

func TestExitStatus(t *testing.T) {
	testlog.Start(t)
	unreachable := &retry.ExhaustedError{Attempts: 3, Err: &transport.ConnectError{Addr: "x:1", Err: fmt.Errorf("refused")}}

	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "nil", err: nil, code: exitOK},
		{name: "canceled", err: context.Canceled, code: exitOK},
		{name: "exhausted", err: unreachable, code: exitUnreachable},
		{name: "auth", err: fmt.Errorf("open: %w", protocol.ErrAuthentication), code: exitFailure},
		{name: "protocol", err: protocol.ErrProtocol, code: exitFailure},
		{name: "credentials", err: session.ErrCredentialsRequired, code: exitFailure},
		{name: "config", err: fmt.Errorf("%w: bad port", config.ErrInvalidConfig), code: exitFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := exitStatus(tc.err)
			assert.Equal(t, tc.code, code)
		})
	}

	_, msg := exitStatus(unreachable)
	assert.Equal(t, "chat server unreachable, try again later", msg)
}

func TestPrinterStampsLines(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	fixed := time.Date(2026, 3, 7, 9, 5, 0, 0, time.UTC)
	p := newPrinter(&buf, "02.01.06 15:04", func() time.Time { return fixed })

	require.NoError(t, p.Print("Vlad: hello"))
	require.NoError(t, p.Print("   "))
	require.NoError(t, p.Print("Anna: hi"))

	assert.Equal(t, "[07.03.26 09:05] Vlad: hello\n[07.03.26 09:05] Anna: hi\n", buf.String())
}

func TestGlobalsOverrideSettingsFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "minechat.toml")
	require.NoError(t, os.WriteFile(path, []byte("host = \"from.file\"\nlisten_port = 6000\n"), 0o600))

	g := &globals{Config: path, SendPort: 7000, TokenFile: "/tmp/tok"}
	cfg, err := g.settings()
	require.NoError(t, err)
	assert.Equal(t, "from.file", cfg.Host)
	assert.Equal(t, 6000, cfg.ListenPort)
	assert.Equal(t, 7000, cfg.SendPort)
	assert.Equal(t, config.TokenBackendFile, cfg.TokenStore.Backend)
	assert.Equal(t, "/tmp/tok", cfg.TokenStore.Path)

	g = &globals{Config: path, ListenPort: -1}
	_, err = g.settings()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSendWithToken(t *testing.T) {
	testlog.Start(t)
	srv := chatserver.Start(t, chatserver.Options{Accounts: map[string]string{"tok-9": "vlad"}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := &sendCmd{Msg: "first\nsecond", Token: "tok-9", out: &bytes.Buffer{}}
	require.NoError(t, cmd.Run(ctx, testGlobals(t, srv)))

	assert.Equal(t, []string{"first second"}, srv.WaitMessages(1, 2*time.Second))
	assert.True(t, srv.WaitIdle(2*time.Second))
}

func TestSendWithInvalidToken(t *testing.T) {
	testlog.Start(t)
	srv := chatserver.Start(t, chatserver.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := &sendCmd{Msg: "hi", Token: "nope", out: &bytes.Buffer{}}
	err := cmd.Run(ctx, testGlobals(t, srv))
	require.ErrorIs(t, err, protocol.ErrAuthentication)
	assert.Empty(t, srv.Messages())
}

func TestRegisterThenSendWithStoredToken(t *testing.T) {
	testlog.Start(t)
	srv := chatserver.Start(t, chatserver.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g := testGlobals(t, srv)

	var out bytes.Buffer
	require.NoError(t, (&registerCmd{Username: "anna", out: &out}).Run(ctx, g))
	assert.Contains(t, out.String(), "nickname: anna")

	stored, err := os.ReadFile(g.TokenFile)
	require.NoError(t, err)
	token := strings.TrimSpace(string(stored))
	require.NotEmpty(t, token)
	assert.Contains(t, out.String(), "token: "+token)

	require.NoError(t, (&sendCmd{Msg: "after register", out: &bytes.Buffer{}}).Run(ctx, g))
	assert.Equal(t, []string{"after register"}, srv.WaitMessages(1, 2*time.Second))
}

func TestListenPrintsBacklog(t *testing.T) {
	testlog.Start(t)
	srv := chatserver.Start(t, chatserver.Options{
		Backlog:                 []string{"Vlad: one", "", "Anna: two"},
		CloseListenAfterBacklog: true,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := (&listenCmd{out: &out}).Run(ctx, testGlobals(t, srv))
	require.ErrorIs(t, err, transport.ErrConnectionClosed)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "] Vlad: one"))
	assert.True(t, strings.HasSuffix(lines[1], "] Anna: two"))
}
