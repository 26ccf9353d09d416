package transport

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionClosed = errors.New("transport: connection closed")
	ErrInvalidLine      = errors.New("transport: raw line contains newline")
)

// ConnectError reports a failure to resolve or open a stream to Addr.
// It is the only transport error the session retries.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectError reports whether err carries a *ConnectError.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}
