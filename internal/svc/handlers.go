package svc

import (
	"github.com/apbridge/apbridged/internal/gb"
	"github.com/apbridge/apbridged/internal/message"
)

// handle dispatches msg by its operation type, synchronously. It is
// always called with msg still owned by the caller (write), which
// releases it afterward.
func (s *Svc) handle(msg *message.Message) {
	h := msg.Header
	if h.IsResponse() {
		s.handleResponse(h.RequestType(), msg)
		return
	}
	s.handleRequest(h.RequestType(), msg)
}

func (s *Svc) handleResponse(typ uint8, msg *message.Message) {
	if _, ok := s.pending.Take(msg.Header.ID); !ok {
		s.log.Warn("svc: response with no matching request", "id", msg.Header.ID, "type", typ)
		return
	}
	switch typ {
	case gb.SVCTypeProtocolVersion:
		s.onVersionResponse(msg)
	case gb.SVCTypeHello:
		s.onHelloResponse()
	case gb.SVCTypeModuleInserted:
		s.onModuleInsertedResponse(msg)
	case gb.SVCTypeModuleRemoved:
		s.log.Debug("svc: module removed response", "id", msg.Header.ID)
	default:
		s.log.Warn("svc: unhandled response type", "type", typ)
	}
}

func (s *Svc) handleRequest(typ uint8, msg *message.Message) {
	switch typ {
	case gb.SVCTypeIntfDeviceID, gb.SVCTypeRouteCreate, gb.SVCTypeRouteDestroy, gb.SVCTypePing:
		s.respond(msg, nil)
	case gb.SVCTypeConnCreate:
		s.onConnCreate(msg)
	case gb.SVCTypeConnDestroy:
		s.onConnDestroy(msg)
	case gb.SVCTypeDMEPeerGet:
		s.respond(msg, gb.DMEPeerGetResponse{ResultCode: 0, AttrValue: 0x0126}.Marshal())
	case gb.SVCTypeDMEPeerSet:
		s.respond(msg, gb.DMEPeerSetResponse{ResultCode: 0}.Marshal())
	case gb.SVCTypeIntfSetPwrm:
		s.onIntfSetPwrm(msg)
	case gb.SVCTypePwrmonRailCountGet:
		s.respond(msg, gb.PwrmonRailCountGetResponse{RailCount: 0}.Marshal())
	case gb.SVCTypeIntfVSysEnable, gb.SVCTypeIntfVSysDisable:
		s.respond(msg, gb.SimpleResultResponse{ResultCode: gb.VSysOK}.Marshal())
	case gb.SVCTypeIntfRefclkEnable, gb.SVCTypeIntfRefclkDisable:
		s.respond(msg, gb.SimpleResultResponse{ResultCode: gb.RefclkOK}.Marshal())
	case gb.SVCTypeIntfUniproEnable, gb.SVCTypeIntfUniproDisable:
		s.respond(msg, gb.SimpleResultResponse{ResultCode: gb.UniproOK}.Marshal())
	case gb.SVCTypeIntfActivate:
		s.respond(msg, gb.IntfActivateResponse{Status: gb.OpSuccess, IntfType: gb.IntfTypeGreybus}.Marshal())
	case gb.SVCTypeIntfResume:
		s.respond(msg, gb.IntfResumeResponse{Status: gb.IntfTypeGreybus}.Marshal())
	case gb.SVCTypeProtocolVersion:
		// The SVC normally initiates the handshake itself, but some hosts
		// open with their own VERSION request: treat it as a cue to
		// (re)send ours.
		s.log.Debug("svc: version request observed from AP, re-arming handshake")
		_ = s.SendVersion()
	default:
		s.log.Warn("svc: unhandled request type", "type", typ)
	}
}

// respond allocates and enqueues a success response echoing msg's id and
// type, with payload as the body.
func (s *Svc) respond(msg *message.Message, payload []byte) {
	resp := message.ResponseAlloc(payload, msg.Header.RequestType(), msg.Header.ID, gb.OpSuccess)
	s.enqueue(resp)
}

func (s *Svc) respondError(msg *message.Message) {
	resp := message.ResponseAlloc(nil, msg.Header.RequestType(), msg.Header.ID, gb.OpUnknownError)
	s.enqueue(resp)
}

// sendRequest allocates an outbound request, records it as awaiting a
// response, and enqueues it for the scheduler to forward to the AP.
func (s *Svc) sendRequest(payload []byte, typ uint8) {
	req := message.RequestAlloc(s.alloc, payload, typ, false)
	s.pending.Put(req.Header.ID, typ)
	s.enqueue(req)
}

func (s *Svc) onVersionResponse(msg *message.Message) {
	v, err := gb.UnmarshalVersionPayload(msg.Payload)
	if err != nil {
		s.log.Warn("svc: malformed version response", "error", err)
		return
	}
	s.log.Debug("svc: protocol version", "major", v.Major, "minor", v.Minor)

	s.mu.Lock()
	s.state = stateWaitHelloResp
	s.mu.Unlock()

	s.SendHello()
}

func (s *Svc) onHelloResponse() {
	s.log.Debug("svc: hello response success")
	s.mu.Lock()
	s.state = stateReady
	s.mu.Unlock()
}

func (s *Svc) onModuleInsertedResponse(msg *message.Message) {
	if msg.Header.Status == gb.OpSuccess {
		s.log.Debug("svc: module inserted response ok")
	} else {
		s.log.Debug("svc: module inserted event failed", "status", msg.Header.Status)
	}
}

func (s *Svc) onConnCreate(msg *message.Message) {
	req, err := gb.UnmarshalConnCreatePayload(msg.Payload)
	if err != nil {
		s.log.Warn("svc: malformed conn_create", "error", err)
		s.respondError(msg)
		return
	}
	if _, ok := s.registry.Lookup(req.Intf1ID); !ok {
		s.log.Debug("svc: unknown interface 1", "id", req.Intf1ID)
		s.respondError(msg)
		return
	}
	if _, ok := s.registry.Lookup(req.Intf2ID); !ok {
		s.log.Debug("svc: unknown interface 2", "id", req.Intf2ID)
		s.respondError(msg)
		return
	}
	if err := s.registry.CreateConnection(req.Intf1ID, req.Intf2ID, req.Cport1ID, req.Cport2ID); err != nil {
		s.log.Warn("svc: create_connection failed", "error", err)
		s.respondError(msg)
		return
	}
	s.respond(msg, nil)
}

func (s *Svc) onConnDestroy(msg *message.Message) {
	req, err := gb.UnmarshalConnDestroyPayload(msg.Payload)
	if err != nil {
		s.log.Warn("svc: malformed conn_destroy", "error", err)
		s.respondError(msg)
		return
	}
	if _, ok := s.registry.Lookup(req.Intf1ID); !ok {
		s.respondError(msg)
		return
	}
	if _, ok := s.registry.Lookup(req.Intf2ID); !ok {
		s.respondError(msg)
		return
	}
	if err := s.registry.DestroyConnection(req.Intf1ID, req.Intf2ID, req.Cport1ID, req.Cport2ID); err != nil {
		s.log.Warn("svc: destroy_connection failed", "error", err)
		s.respondError(msg)
		return
	}
	s.respond(msg, nil)
}

func (s *Svc) onIntfSetPwrm(msg *message.Message) {
	req, err := gb.UnmarshalIntfSetPwrmRequest(msg.Payload)
	if err != nil {
		s.log.Warn("svc: malformed intf_set_pwrm", "error", err)
		s.respondError(msg)
		return
	}
	result := gb.PwrLocal
	if req.TxMode == gb.UniproHibernateMode && req.RxMode == gb.UniproHibernateMode {
		result = gb.PwrOK
	}
	s.respond(msg, gb.IntfSetPwrmResponse{ResultCode: result}.Marshal())
}

// SendVersion enqueues an outbound VERSION request. It is called by the
// bridge at startup and re-armed from handleRequest above.
func (s *Svc) SendVersion() error {
	s.mu.Lock()
	s.state = stateWaitVersionResp
	s.mu.Unlock()

	payload := gb.VersionPayload{Major: gb.SVCVersionMajor, Minor: gb.SVCVersionMinor}.Marshal()
	s.sendRequest(payload, gb.SVCTypeProtocolVersion)
	return nil
}

// SendHello enqueues an outbound HELLO request.
func (s *Svc) SendHello() {
	payload := gb.HelloPayload{EndoID: gb.EndoID, InterfaceID: gb.APInterfaceID}.Marshal()
	s.sendRequest(payload, gb.SVCTypeHello)
}

// SendModuleInserted enqueues a MODULE_INSERTED event announcing a newly
// discovered interface.
func (s *Svc) SendModuleInserted(intfID uint8) {
	payload := gb.ModuleInsertedPayload{PrimaryIntfID: intfID, IntfCount: 1, Flags: 0}.Marshal()
	s.sendRequest(payload, gb.SVCTypeModuleInserted)
}

// SendModuleRemoved enqueues a MODULE_REMOVED event.
func (s *Svc) SendModuleRemoved(intfID uint8) {
	payload := gb.ModuleRemovedPayload{PrimaryIntfID: intfID}.Marshal()
	s.sendRequest(payload, gb.SVCTypeModuleRemoved)
}
