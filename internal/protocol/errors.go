package protocol

import "errors"

var (
	ErrUnknownType  = errors.New("protocol: unknown message type")
	ErrProtocol     = errors.New("protocol: protocol error")
	ErrNilMessage   = errors.New("protocol: nil message")
	ErrTypeMismatch = errors.New("protocol: message type mismatch")
)
