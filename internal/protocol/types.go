package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State names one step of a handshake state machine.
type State int

const (
	StateAwaitGreeting State = iota
	StateSendToken
	StateAwaitResult
	StateAuthorized
	StateRejected
	StateSendEmptyLine
	StateAwaitPrompt
	StateSendUsername
	StateAwaitCreation
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitGreeting:
		return "await_greeting"
	case StateSendToken:
		return "send_token"
	case StateAwaitResult:
		return "await_result"
	case StateAuthorized:
		return "authorized"
	case StateRejected:
		return "rejected"
	case StateSendEmptyLine:
		return "send_empty_line"
	case StateAwaitPrompt:
		return "await_prompt"
	case StateSendUsername:
		return "send_username"
	case StateAwaitCreation:
		return "await_creation"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Account is the JSON object the server sends after a successful
// authentication or registration.
type Account struct {
	Nickname    string `json:"nickname"`
	AccountHash string `json:"account_hash"`
}

type AuthStatus int

const (
	AuthStatusInvalid AuthStatus = iota
	AuthStatusAuthenticated
)

func (s AuthStatus) String() string {
	if s == AuthStatusAuthenticated {
		return "authenticated"
	}
	return "invalid"
}

// AuthResult is the tagged outcome of Authenticate. Account is populated
// only when Status is AuthStatusAuthenticated and the server sent an object.
type AuthResult struct {
	Status  AuthStatus
	Account Account
}

func (r AuthResult) Authenticated() bool {
	return r.Status == AuthStatusAuthenticated
}

type RegistrationResult struct {
	RequestedUsername string
	AssignedNickname  string
	IssuedToken       string
}

// decodeAccountLine parses one server JSON line. A JSON null yields nil.
// Any other valid JSON yields an Account filled from whichever of its string
// fields are present.
func decodeAccountLine(line string) (*Account, error) {
	var raw any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrProtocol, truncate(line), err)
	}
	if raw == nil {
		return nil, nil
	}
	var acc Account
	if fields, ok := raw.(map[string]any); ok {
		acc.Nickname, _ = fields["nickname"].(string)
		acc.AccountHash, _ = fields["account_hash"].(string)
	}
	return &acc, nil
}

func truncate(line string) string {
	const max = 128
	line = strings.TrimSpace(line)
	if len(line) > max {
		return line[:max] + "..."
	}
	return line
}
