package node

import "errors"

var (
	// ErrUnknownCport is returned by write when no socket is open for the
	// requested cport.
	ErrUnknownCport = errors.New("node: unknown cport")
	// ErrPoolExhausted is returned by Manager.add when MaxNodes concurrent
	// interfaces are already registered.
	ErrPoolExhausted = errors.New("node: id pool exhausted")
)
