// Package gb names the Greybus operation types, status codes and
// interface IDs the bridge's SVC and Control protocol handlers dispatch
// on, following the upstream Greybus protocol numbering.
package gb

// Reserved interface IDs. Remote nodes are allocated upward from
// FirstRemoteNodeID.
const (
	SVCInterfaceID       uint8 = 0
	APInterfaceID        uint8 = 1
	LocalNodeInterfaceID uint8 = 2
	FirstRemoteNodeID    uint8 = 3
)

// ControlCport is the well-known cport hosting the Control protocol on
// both the SVC and local-node interfaces.
const ControlCport uint16 = 0

// EndoID is the ENDO ID the SVC reports in its HELLO request.
const EndoID uint16 = 0x4755

// SVC protocol version the bridge advertises on VERSION.
const (
	SVCVersionMajor uint8 = 0
	SVCVersionMinor uint8 = 3
)

// Operation status codes shared across protocols.
const (
	OpSuccess      uint8 = 0x00
	OpUnknownError uint8 = 0x01
)

// SVC protocol operation types.
const (
	SVCTypeProtocolVersion    uint8 = 0x01
	SVCTypeHello              uint8 = 0x02
	SVCTypeIntfDeviceID       uint8 = 0x03
	SVCTypeConnCreate         uint8 = 0x07
	SVCTypeConnDestroy        uint8 = 0x08
	SVCTypeDMEPeerGet         uint8 = 0x09
	SVCTypeDMEPeerSet         uint8 = 0x0a
	SVCTypeRouteCreate        uint8 = 0x0b
	SVCTypeRouteDestroy       uint8 = 0x0c
	SVCTypeIntfSetPwrm        uint8 = 0x11
	SVCTypePing               uint8 = 0x13
	SVCTypePwrmonRailCountGet uint8 = 0x14
	SVCTypeModuleInserted     uint8 = 0x18
	SVCTypeModuleRemoved      uint8 = 0x19
	SVCTypeIntfVSysEnable     uint8 = 0x1a
	SVCTypeIntfVSysDisable    uint8 = 0x1b
	SVCTypeIntfRefclkEnable   uint8 = 0x1c
	SVCTypeIntfRefclkDisable  uint8 = 0x1d
	SVCTypeIntfUniproEnable   uint8 = 0x1e
	SVCTypeIntfUniproDisable  uint8 = 0x1f
	SVCTypeIntfActivate       uint8 = 0x20
	SVCTypeIntfResume         uint8 = 0x21
)

// Control protocol operation types, hosted on cport 0 of the local-node
// interface.
const (
	ControlTypeCportShutdown         uint8 = 0x02
	ControlTypeVersion               uint8 = 0x03
	ControlTypeGetManifestSize       uint8 = 0x04
	ControlTypeGetManifest           uint8 = 0x05
	ControlTypeConnected             uint8 = 0x06
	ControlTypeDisconnecting         uint8 = 0x07
	ControlTypeDisconnected          uint8 = 0x08
	ControlTypeTimesyncEnable        uint8 = 0x09
	ControlTypeTimesyncDisable       uint8 = 0x0a
	ControlTypeTimesyncAuthoritative uint8 = 0x0b
	ControlTypeIntfHibernateAbort    uint8 = 0x0c
)

// UniPro power-mode values carried in INTF_SET_PWRM requests.
const UniproHibernateMode uint8 = 0x07

// INTF_SET_PWRM result codes.
const (
	PwrOK    uint8 = 0x00
	PwrLocal uint8 = 0x02
)

// Misc result/status codes used by simple OK-style responses.
const (
	VSysOK          uint8 = 0x00
	RefclkOK        uint8 = 0x00
	UniproOK        uint8 = 0x00
	IntfTypeGreybus uint8 = 0x01
)
