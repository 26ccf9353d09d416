package protocol

import "errors"

var (
	ErrAuthentication = errors.New("protocol: authentication failed")
	ErrProtocol       = errors.New("protocol: malformed server response")
)
