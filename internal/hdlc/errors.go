package hdlc

import "errors"

// ErrFrameTooLarge is returned when a payload would not fit within the
// engine's configured MTU.
var ErrFrameTooLarge = errors.New("hdlc: frame exceeds mtu")

// ControlUI is the fixed control byte the AP interface stamps on every
// outbound Greybus frame.
const ControlUI = 0x03
