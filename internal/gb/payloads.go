package gb

import (
	"encoding/binary"
	"fmt"
)

// Fixed-size wire payloads for the SVC and Control operations the
// bridge handles directly, marshaled explicitly little-endian in the
// style of internal/message.Header.

// VersionPayload carries the SVC protocol major/minor version, both on the
// bridge's outbound VERSION request and the Control protocol's VERSION
// response.
type VersionPayload struct {
	Major uint8
	Minor uint8
}

func (p VersionPayload) Marshal() []byte { return []byte{p.Major, p.Minor} }

func UnmarshalVersionPayload(buf []byte) (VersionPayload, error) {
	if len(buf) < 2 {
		return VersionPayload{}, fmt.Errorf("gb: short version payload: %d", len(buf))
	}
	return VersionPayload{Major: buf[0], Minor: buf[1]}, nil
}

// HelloPayload is the SVC HELLO request body.
type HelloPayload struct {
	EndoID      uint16
	InterfaceID uint8
}

func (p HelloPayload) Marshal() []byte {
	buf := make([]byte, 3)
	binary.LittleEndian.PutUint16(buf[0:2], p.EndoID)
	buf[2] = p.InterfaceID
	return buf
}

// ConnCreatePayload is the SVC CONN_CREATE request body.
type ConnCreatePayload struct {
	Intf1ID  uint8
	Cport1ID uint16
	Intf2ID  uint8
	Cport2ID uint16
	TC       uint8
	Flags    uint8
}

func UnmarshalConnCreatePayload(buf []byte) (ConnCreatePayload, error) {
	if len(buf) < 8 {
		return ConnCreatePayload{}, fmt.Errorf("gb: short conn_create payload: %d", len(buf))
	}
	return ConnCreatePayload{
		Intf1ID:  buf[0],
		Cport1ID: binary.LittleEndian.Uint16(buf[1:3]),
		Intf2ID:  buf[3],
		Cport2ID: binary.LittleEndian.Uint16(buf[4:6]),
		TC:       buf[6],
		Flags:    buf[7],
	}, nil
}

// ConnDestroyPayload is the SVC CONN_DESTROY request body.
type ConnDestroyPayload struct {
	Intf1ID  uint8
	Cport1ID uint16
	Intf2ID  uint8
	Cport2ID uint16
}

func UnmarshalConnDestroyPayload(buf []byte) (ConnDestroyPayload, error) {
	if len(buf) < 6 {
		return ConnDestroyPayload{}, fmt.Errorf("gb: short conn_destroy payload: %d", len(buf))
	}
	return ConnDestroyPayload{
		Intf1ID:  buf[0],
		Cport1ID: binary.LittleEndian.Uint16(buf[1:3]),
		Intf2ID:  buf[3],
		Cport2ID: binary.LittleEndian.Uint16(buf[4:6]),
	}, nil
}

// DMEPeerGetResponse is the fixed reply to DME_PEER_GET.
type DMEPeerGetResponse struct {
	ResultCode uint16
	AttrValue  uint32
}

func (p DMEPeerGetResponse) Marshal() []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], p.ResultCode)
	binary.LittleEndian.PutUint32(buf[2:6], p.AttrValue)
	return buf
}

// DMEPeerSetResponse is the fixed reply for DME_PEER_SET.
type DMEPeerSetResponse struct {
	ResultCode uint16
}

func (p DMEPeerSetResponse) Marshal() []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf[0:2], p.ResultCode)
	return buf
}

// IntfSetPwrmRequest is the SVC INTF_SET_PWRM request body; the bridge
// only inspects TxMode/RxMode.
type IntfSetPwrmRequest struct {
	IntfID   uint8
	HSSeries uint8
	TxMode   uint8
	RxMode   uint8
}

func UnmarshalIntfSetPwrmRequest(buf []byte) (IntfSetPwrmRequest, error) {
	// The wire struct carries substantially more fields (gears, lanes,
	// timer config); the bridge reads only the prefix it acts on.
	if len(buf) < 8 {
		return IntfSetPwrmRequest{}, fmt.Errorf("gb: short intf_set_pwrm payload: %d", len(buf))
	}
	return IntfSetPwrmRequest{
		IntfID:   buf[0],
		HSSeries: buf[1],
		TxMode:   buf[2],
		RxMode:   buf[7],
	}, nil
}

// IntfSetPwrmResponse carries the PWR_OK/PWR_LOCAL result.
type IntfSetPwrmResponse struct {
	ResultCode uint8
}

func (p IntfSetPwrmResponse) Marshal() []byte { return []byte{p.ResultCode} }

// SimpleResultResponse is the single-byte result_code shape shared by
// VSYS/REFCLK/UNIPRO enable-disable replies.
type SimpleResultResponse struct {
	ResultCode uint8
}

func (p SimpleResultResponse) Marshal() []byte { return []byte{p.ResultCode} }

// IntfActivateResponse is the INTF_ACTIVATE reply.
type IntfActivateResponse struct {
	Status   uint8
	IntfType uint8
}

func (p IntfActivateResponse) Marshal() []byte { return []byte{p.Status, p.IntfType} }

// IntfResumeResponse is the INTF_RESUME reply.
type IntfResumeResponse struct {
	Status uint8
}

func (p IntfResumeResponse) Marshal() []byte { return []byte{p.Status} }

// PwrmonRailCountGetResponse is the PWRMON_RAIL_COUNT_GET reply.
type PwrmonRailCountGetResponse struct {
	RailCount uint8
}

func (p PwrmonRailCountGetResponse) Marshal() []byte { return []byte{p.RailCount} }

// ModuleInsertedPayload is the SVC MODULE_INSERTED request body.
type ModuleInsertedPayload struct {
	PrimaryIntfID uint8
	IntfCount     uint8
	Flags         uint16
}

func (p ModuleInsertedPayload) Marshal() []byte {
	buf := make([]byte, 4)
	buf[0] = p.PrimaryIntfID
	buf[1] = p.IntfCount
	binary.LittleEndian.PutUint16(buf[2:4], p.Flags)
	return buf
}

// ModuleRemovedPayload is the SVC MODULE_REMOVED request body.
type ModuleRemovedPayload struct {
	PrimaryIntfID uint8
}

func (p ModuleRemovedPayload) Marshal() []byte { return []byte{p.PrimaryIntfID} }

// ControlVersionResponse is the Control protocol VERSION reply.
type ControlVersionResponse struct {
	Major uint8
	Minor uint8
}

func (p ControlVersionResponse) Marshal() []byte { return []byte{p.Major, p.Minor} }

// ManifestSizeResponse is the GET_MANIFEST_SIZE reply.
type ManifestSizeResponse struct {
	ManifestSize uint16
}

func (p ManifestSizeResponse) Marshal() []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf[0:2], p.ManifestSize)
	return buf
}
