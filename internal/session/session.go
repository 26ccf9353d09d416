// Package session ties the listen and send connections of one chat client
// together.
//
// Open dials every enabled role (each dial under the retry policy), then
// authenticates or registers on the send connection. Any failure closes
// what was opened.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/minechat/internal/logging"
	"github.com/danmuck/minechat/internal/observability"
	"github.com/danmuck/minechat/internal/protocol"
	"github.com/danmuck/minechat/internal/retry"
	"github.com/danmuck/minechat/internal/tokenstore"
	"github.com/danmuck/minechat/internal/transport"
)

var (
	ErrHostRequired        = errors.New("session: host required")
	ErrPortRequired        = errors.New("session: port required")
	ErrCredentialsRequired = errors.New("session: token or username required")
	ErrRoleDisabled        = errors.New("session: role not enabled")
)

// Credentials identify the account. Token wins when both are set; with
// neither set the token store is consulted.
type Credentials struct {
	Token    string
	Username string
}

// Info is a point-in-time view of a session.
type Info struct {
	Host             string    `json:"host"`
	ListenPort       int       `json:"listen_port,omitempty"`
	SendPort         int       `json:"send_port,omitempty"`
	Roles            string    `json:"roles"`
	Authorized       bool      `json:"authorized"`
	Nickname         string    `json:"nickname,omitempty"`
	OpenedAt         time.Time `json:"opened_at"`
	MessagesReceived uint64    `json:"messages_received"`
	MessagesSent     uint64    `json:"messages_sent"`
	Closed           bool      `json:"closed"`
}

type Session struct {
	cfg    Config
	store  tokenstore.Store
	listen *transport.Conn
	send   *transport.Conn

	mu           sync.RWMutex
	info         Info
	registration *protocol.RegistrationResult
	opened       bool
	closed       bool
}

// Open connects and authorizes a session. store may be nil when creds carry
// a token.
func Open(ctx context.Context, cfg Config, creds Credentials, store tokenstore.Store) (*Session, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:   cfg,
		store: store,
		info: Info{
			Host:  cfg.Host,
			Roles: cfg.Roles.String(),
		},
	}
	if err := s.open(ctx, creds); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) open(ctx context.Context, creds Credentials) error {
	if s.cfg.Roles.Has(RoleListen) {
		conn, err := s.connect(ctx, RoleListen, s.cfg.ListenPort)
		if err != nil {
			return err
		}
		s.listen = conn
		s.info.ListenPort = s.cfg.ListenPort
	}

	if s.cfg.Roles.Has(RoleSend) {
		conn, err := s.connect(ctx, RoleSend, s.cfg.SendPort)
		if err != nil {
			return err
		}
		s.send = conn
		s.info.SendPort = s.cfg.SendPort

		stop := conn.Watch(ctx)
		err = s.authorize(ctx, creds)
		stop()
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.opened = true
	s.info.OpenedAt = time.Now()
	s.info.Authorized = s.send != nil && s.send.Authorized()
	s.mu.Unlock()
	observability.SessionOpened()
	logging.Infof("session.Open host=%q roles=%s", s.cfg.Host, s.cfg.Roles)
	return nil
}

func (s *Session) connect(ctx context.Context, role Role, port int) (*transport.Conn, error) {
	opts := s.cfg.Transport
	opts.Role = role.String()
	return retry.Do(ctx, s.cfg.Retry, transport.IsConnectError, func(ctx context.Context) (*transport.Conn, error) {
		conn, err := transport.Dial(ctx, opts, s.cfg.Host, port)
		observability.RecordConnectAttempt(opts.Role, err)
		if err != nil {
			logging.Warnf("session.connect role=%s host=%q port=%d err=%v", opts.Role, s.cfg.Host, port, err)
			return nil, err
		}
		return conn, nil
	})
}

func (s *Session) authorize(ctx context.Context, creds Credentials) error {
	token := creds.Token
	if strings.TrimSpace(token) == "" {
		token = ""
	}
	username := strings.TrimSpace(creds.Username)
	if token != "" && username != "" {
		logging.Debugf("session.authorize both token and username given, using token")
	}
	if token == "" && username == "" && s.store != nil {
		stored, ok, err := s.store.Read(ctx)
		if err != nil {
			return err
		}
		if ok {
			token = stored
		}
	}

	hctx := ctx
	if s.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
	}

	switch {
	case token != "":
		res, err := protocol.Authenticate(hctx, s.send, token)
		observability.RecordHandshake("token", err)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.info.Nickname = res.Account.Nickname
		s.mu.Unlock()
		return nil

	case username != "":
		reg, err := protocol.Register(hctx, s.send, username)
		observability.RecordHandshake("register", err)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.registration = &reg
		s.info.Nickname = reg.AssignedNickname
		s.mu.Unlock()
		if s.store == nil {
			return nil
		}
		if err := s.store.Write(ctx, reg.IssuedToken); err != nil {
			logging.Errf("session.authorize persist token failed nickname=%q err=%v", reg.AssignedNickname, err)
			return fmt.Errorf("session: persist token: %w", err)
		}
		return nil

	default:
		return ErrCredentialsRequired
	}
}

// Consume yields lines from the listen connection until it closes or ctx is
// done; the final element carries the terminating error.
func (s *Session) Consume(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.listen == nil {
			yield("", ErrRoleDisabled)
			return
		}
		stop := s.listen.Watch(ctx)
		defer stop()
		for line, err := range protocol.Listen(ctx, s.listen) {
			if err == nil {
				observability.RecordMessageReceived()
				s.mu.Lock()
				s.info.MessagesReceived++
				s.mu.Unlock()
			}
			if !yield(line, err) {
				return
			}
		}
	}
}

// Produce publishes one message on the send connection.
func (s *Session) Produce(ctx context.Context, text string) error {
	if s.send == nil {
		return ErrRoleDisabled
	}
	stop := s.send.Watch(ctx)
	defer stop()
	if err := protocol.Send(ctx, s.send, text); err != nil {
		return err
	}
	observability.RecordMessageSent()
	s.mu.Lock()
	s.info.MessagesSent++
	s.mu.Unlock()
	return nil
}

// Registration returns the result of a registration performed by Open.
func (s *Session) Registration() (protocol.RegistrationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registration == nil {
		return protocol.RegistrationResult{}, false
	}
	return *s.registration, true
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := s.info
	info.Authorized = s.send != nil && s.send.Authorized()
	return info
}

// Close closes both connections. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.info.Closed = true
	wasOpen := s.opened
	s.mu.Unlock()

	var errs []error
	if s.listen != nil {
		errs = append(errs, s.listen.Close())
	}
	if s.send != nil {
		errs = append(errs, s.send.Close())
	}
	if wasOpen {
		observability.SessionClosed()
		logging.Infof("session.Close host=%q", s.cfg.Host)
	}
	return errors.Join(errs...)
}
