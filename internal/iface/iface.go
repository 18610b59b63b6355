// Package iface implements the interface registry and connection table:
// the process-wide fabric the bridge scheduler iterates.
package iface

import "github.com/apbridge/apbridged/internal/message"

// Capabilities is the capability set every registered interface
// exposes: a plain struct of closures rather than an open-ended v-table.
type Capabilities struct {
	// Read is non-blocking: it must return (nil, false) immediately if no
	// message is available.
	Read func(cport uint16) (*message.Message, bool)
	// Write consumes msg by value (ownership transfers to the callee).
	Write func(msg *message.Message, cport uint16) error
	// CreateConnection and DestroyConnection manage per-cport resources.
	CreateConnection  func(cport uint16) error
	DestroyConnection func(cport uint16)
}

// Kind distinguishes the four interface roles.
type Kind int

const (
	KindAP Kind = iota
	KindSVC
	KindLocalNode
	KindRemoteNode
)

// Interface is a registered endpoint identified by an 8-bit id.
type Interface struct {
	ID   uint8
	Kind Kind
	Capabilities
}
