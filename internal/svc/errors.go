package svc

import "errors"

var (
	// ErrNotReady names an operation attempted before the version/hello
	// handshake has completed. No code path returns it: the SVC handlers
	// answer requests in every handshake state.
	ErrNotReady = errors.New("svc: not ready")
	// ErrUnknownCport is returned for connection operations naming a
	// cport other than the SVC's single control cport.
	ErrUnknownCport = errors.New("svc: unknown cport")
	// ErrAlreadyConnected is returned when a second cport-0 connection is
	// attempted after the handshake has completed.
	ErrAlreadyConnected = errors.New("svc: control cport already connected")
)
