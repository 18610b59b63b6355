package iface

import "errors"

var (
	ErrDuplicateID       = errors.New("iface: duplicate interface id")
	ErrUnknownInterface  = errors.New("iface: unknown interface")
	ErrAlreadyExists     = errors.New("iface: connection already exists")
	ErrConnectionMissing = errors.New("iface: connection not found")
)
