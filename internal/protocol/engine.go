// Package protocol implements the chat handshake and message exchange on top
// of transport connections.
//
// Handshakes:
//   - Authenticate: greeting, token, JSON account or null
//   - Register: greeting, empty line, nickname prompt, username, JSON account
//
// After either succeeds the connection is authorized and Send may publish.
package protocol

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/danmuck/minechat/internal/logging"
	"github.com/danmuck/minechat/internal/transport"
)

// Authenticate runs the token handshake on conn. The token is sent exactly as
// given. A null server reply fails with ErrAuthentication and leaves conn
// unauthorized; any other JSON value authorizes it.
func Authenticate(ctx context.Context, conn *transport.Conn, token string) (AuthResult, error) {
	if conn.Authorized() {
		logging.Debugf("protocol.Authenticate role=%s already authorized", conn.Role())
		return AuthResult{Status: AuthStatusAuthenticated}, nil
	}
	if strings.TrimSpace(token) == "" {
		return AuthResult{}, fmt.Errorf("%w: empty token", ErrAuthentication)
	}
	if strings.ContainsAny(token, "\r\n") {
		return AuthResult{}, fmt.Errorf("%w: token contains newline", ErrAuthentication)
	}

	var account Account
	state := StateAwaitGreeting
	for {
		switch state {
		case StateAwaitGreeting:
			greeting, err := conn.ReadLine(ctx)
			if err != nil {
				return AuthResult{}, stepErr(state, err)
			}
			logging.Debugf("protocol.Authenticate greeting=%q", greeting)
			state = StateSendToken

		case StateSendToken:
			if err := conn.WriteRaw(ctx, token, true); err != nil {
				return AuthResult{}, stepErr(state, err)
			}
			state = StateAwaitResult

		case StateAwaitResult:
			line, err := conn.ReadLine(ctx)
			if err != nil {
				return AuthResult{}, stepErr(state, err)
			}
			acc, err := decodeAccountLine(line)
			if err != nil {
				return AuthResult{}, err
			}
			if acc == nil {
				state = StateRejected
				continue
			}
			account = *acc
			state = StateAuthorized

		case StateAuthorized:
			conn.MarkAuthorized()
			logging.Infof("protocol.Authenticate ok nickname=%q", account.Nickname)
			return AuthResult{Status: AuthStatusAuthenticated, Account: account}, nil

		case StateRejected:
			logging.Warnf("protocol.Authenticate rejected role=%s", conn.Role())
			return AuthResult{Status: AuthStatusInvalid}, fmt.Errorf("%w: provided token is invalid", ErrAuthentication)
		}
	}
}

// Register creates a new account for username on conn and returns the token
// the server issued for it.
func Register(ctx context.Context, conn *transport.Conn, username string) (RegistrationResult, error) {
	nick := strings.TrimSpace(transport.SanitizeLine(username))
	if nick == "" {
		return RegistrationResult{}, fmt.Errorf("%w: empty username", ErrProtocol)
	}
	result := RegistrationResult{RequestedUsername: username}

	state := StateAwaitGreeting
	for state != StateDone {
		switch state {
		case StateAwaitGreeting:
			greeting, err := conn.ReadLine(ctx)
			if err != nil {
				return RegistrationResult{}, stepErr(state, err)
			}
			logging.Debugf("protocol.Register greeting=%q", greeting)
			state = StateSendEmptyLine

		case StateSendEmptyLine:
			if err := conn.WriteRaw(ctx, "", true); err != nil {
				return RegistrationResult{}, stepErr(state, err)
			}
			state = StateAwaitPrompt

		case StateAwaitPrompt:
			prompt, err := conn.ReadLine(ctx)
			if err != nil {
				return RegistrationResult{}, stepErr(state, err)
			}
			logging.Debugf("protocol.Register prompt=%q", prompt)
			state = StateSendUsername

		case StateSendUsername:
			if err := conn.WriteRaw(ctx, nick, true); err != nil {
				return RegistrationResult{}, stepErr(state, err)
			}
			state = StateAwaitCreation

		case StateAwaitCreation:
			line, err := conn.ReadLine(ctx)
			if err != nil {
				return RegistrationResult{}, stepErr(state, err)
			}
			acc, err := decodeAccountLine(line)
			if err != nil {
				return RegistrationResult{}, err
			}
			if acc == nil || strings.TrimSpace(acc.AccountHash) == "" {
				return RegistrationResult{}, fmt.Errorf("%w: creation response missing account_hash", ErrProtocol)
			}
			result.AssignedNickname = acc.Nickname
			result.IssuedToken = acc.AccountHash
			conn.MarkAuthorized()
			state = StateDone
		}
	}
	logging.Infof("protocol.Register ok username=%q nickname=%q", username, result.AssignedNickname)
	return result, nil
}

// Listen yields each line read from conn. The sequence ends after yielding
// the first read error, typically transport.ErrConnectionClosed.
func Listen(ctx context.Context, conn *transport.Conn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := conn.ReadLine(ctx)
			if err != nil {
				logging.Debugf("protocol.Listen role=%s stop err=%v", conn.Role(), err)
				yield("", err)
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// Send publishes text on an authorized connection.
func Send(ctx context.Context, conn *transport.Conn, text string) error {
	if !conn.Authorized() {
		logging.Debugf("protocol.Send role=%s rejected: unauthorized", conn.Role())
		return fmt.Errorf("%w: connection must be authenticated before publishing", ErrAuthentication)
	}
	if err := conn.WriteLine(ctx, text, true); err != nil {
		return err
	}
	logging.Debugf("protocol.Send role=%s bytes=%d", conn.Role(), len(text))
	return nil
}

func stepErr(state State, err error) error {
	return fmt.Errorf("protocol: %s: %w", state, err)
}
