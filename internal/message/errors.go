package message

import "errors"

// Errors shared across the message layer.
var (
	ErrBadMessage = errors.New("bad message")
	ErrNoMemory   = errors.New("no memory")
)
