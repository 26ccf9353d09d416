// Package chatserver runs an in-process chat server speaking the listen/send
// line protocol, for tests.
package chatserver

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	Greeting = "Hello %username%! Enter your personal hash or leave it empty to create new account."
	Prompt   = "Enter preferred nickname below:"
)

// Account mirrors the JSON object the server issues.
type Account struct {
	Nickname    string `json:"nickname"`
	AccountHash string `json:"account_hash"`
}

type Options struct {
	// Accounts maps valid tokens to their nicknames.
	Accounts map[string]string
	// Backlog is sent to every listen client on connect.
	Backlog []string
	// CloseListenAfterBacklog hangs up listen clients once Backlog is sent.
	CloseListenAfterBacklog bool
	// CreationReply overrides the JSON line sent after a nickname is chosen.
	CreationReply string
	// StallSend accepts send clients but never greets them.
	StallSend bool
}

type Server struct {
	t        *testing.T
	opts     Options
	listenLn net.Listener
	sendLn   net.Listener

	mu       sync.Mutex
	accounts map[string]string
	messages []string
	seq      int

	active atomic.Int64
	wg     sync.WaitGroup
}

// Start listens on two loopback ports and serves until the test ends.
func Start(t *testing.T, opts Options) *Server {
	t.Helper()
	listenLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("chatserver listen: %v", err)
	}
	sendLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = listenLn.Close()
		t.Fatalf("chatserver listen: %v", err)
	}
	s := &Server{
		t:        t,
		opts:     opts,
		listenLn: listenLn,
		sendLn:   sendLn,
		accounts: make(map[string]string),
	}
	for token, nick := range opts.Accounts {
		s.accounts[token] = nick
	}
	s.wg.Add(2)
	go s.acceptLoop(listenLn, s.serveListen)
	go s.acceptLoop(sendLn, s.serveSend)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Host() string {
	return "127.0.0.1"
}

func (s *Server) ListenPort() int {
	return s.listenLn.Addr().(*net.TCPAddr).Port
}

func (s *Server) SendPort() int {
	return s.sendLn.Addr().(*net.TCPAddr).Port
}

// ActiveConns counts client connections the server has not yet seen close.
func (s *Server) ActiveConns() int64 {
	return s.active.Load()
}

// WaitIdle blocks until every client connection is closed or timeout passes.
func (s *Server) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.active.Load() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.active.Load() == 0
}

// Messages returns the chat messages received on the send port.
func (s *Server) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

// WaitMessages blocks until n messages arrived or timeout passes.
func (s *Server) WaitMessages(n int, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := s.Messages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.Messages()
}

func (s *Server) Close() {
	_ = s.listenLn.Close()
	_ = s.sendLn.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop(ln net.Listener, handle func(net.Conn)) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.t.Logf("chatserver accept: %v", err)
			}
			return
		}
		s.active.Add(1)
		go func() {
			defer s.active.Add(-1)
			defer conn.Close()
			handle(conn)
		}()
	}
}

func (s *Server) serveListen(conn net.Conn) {
	for _, line := range s.opts.Backlog {
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			return
		}
	}
	if s.opts.CloseListenAfterBacklog {
		return
	}
	drain(conn)
}

func (s *Server) serveSend(conn net.Conn) {
	if s.opts.StallSend {
		drain(conn)
		return
	}
	reader := bufio.NewReader(conn)
	if _, err := fmt.Fprintf(conn, "%s\n", Greeting); err != nil {
		return
	}
	token, err := readLine(reader)
	if err != nil {
		return
	}

	if token == "" {
		if !s.register(conn, reader) {
			return
		}
	} else {
		nick, ok := s.lookup(token)
		if !ok {
			_, _ = fmt.Fprint(conn, "null\n")
			drain(conn)
			return
		}
		if err := writeJSON(conn, Account{Nickname: nick, AccountHash: token}); err != nil {
			return
		}
	}

	for {
		line, err := readLine(reader)
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		s.mu.Lock()
		s.messages = append(s.messages, line)
		s.mu.Unlock()
	}
}

func (s *Server) register(conn net.Conn, reader *bufio.Reader) bool {
	if _, err := fmt.Fprintf(conn, "%s\n", Prompt); err != nil {
		return false
	}
	username, err := readLine(reader)
	if err != nil {
		return false
	}
	if s.opts.CreationReply != "" {
		_, _ = fmt.Fprintf(conn, "%s\n", s.opts.CreationReply)
		drain(conn)
		return false
	}
	s.mu.Lock()
	s.seq++
	acc := Account{
		Nickname:    fmt.Sprintf("%s%d", strings.TrimSpace(username), s.seq),
		AccountHash: fmt.Sprintf("tok-%d", s.seq),
	}
	s.accounts[acc.AccountHash] = acc.Nickname
	s.mu.Unlock()
	return writeJSON(conn, acc) == nil
}

func (s *Server) lookup(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nick, ok := s.accounts[token]
	return nick, ok
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeJSON(conn net.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(payload, '\n'))
	return err
}

// drain reads until the client hangs up.
func drain(conn net.Conn) {
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}
