package session

import (
	"context"
	"fmt"

	"github.com/corelink/corelink-go/pkg/discovery"
	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/registration"
	"github.com/corelink/corelink-go/pkg/requestid"
	"github.com/corelink/corelink-go/pkg/transport"
	"github.com/corelink/corelink-go/pkg/wire"
)

// linkHandler forwards transport events of one attempt to the event loop.
type linkHandler struct {
	s     *Session
	epoch uint64
}

func (h *linkHandler) OnMessage(msg *wire.Message) {
	h.s.submit(func() { h.s.onMessage(h.epoch, msg) })
}

func (h *linkHandler) OnStateChange(oldState, newState transport.ConnectionState) {
	switch {
	case newState == transport.StateConnected:
		h.s.submit(func() { h.s.onTransportUp(h.epoch) })
	case oldState == transport.StateConnected && newState == transport.StateDisconnected:
		h.s.submit(func() { h.s.onTransportDown(h.epoch) })
	}
}

// begin prepares an explicitly requested attempt.
func (s *Session) begin() {
	s.stopped = false
	s.reconnector.Cancel()
	s.reconnector.Reset()
}

func (s *Session) startDiscovery() {
	s.advanceEpoch()
	epoch := s.epoch
	s.transition(Discovering())

	s.discovering = true
	s.logDiscovery("STARTED", "")
	s.discovery.Start(func(c discovery.Core) {
		s.submit(func() { s.onDiscovered(epoch, c) })
	})
}

func (s *Session) stopDiscovery() {
	if !s.discovering {
		return
	}
	s.discovering = false
	s.discovery.Stop()
	s.logDiscovery("STOPPED", "")
}

func (s *Session) onDiscovered(epoch uint64, c discovery.Core) {
	if epoch != s.epoch || s.state.Phase != PhaseDiscovering {
		return
	}
	s.logger.Info("core discovered", "host", c.Host, "port", c.Port, "name", c.Name, "source", string(c.Source))
	s.logDiscovery("FOUND", c.Address())
	s.stopDiscovery()
	s.dial(c.Host, c.Port)
}

// dial starts a connection attempt to host:port.
func (s *Session) dial(host string, port int) {
	s.advanceEpoch()
	epoch := s.epoch
	s.hasTarget, s.targetHost, s.targetPort = true, host, port
	s.ids = requestid.New()
	s.transport.SetHandler(&linkHandler{s: s, epoch: epoch})
	s.transition(Connecting())

	ctx, cancel := context.WithCancel(s.ctx)
	s.dialCancel = cancel
	go func() {
		if err := s.transport.Connect(ctx, host, port); err != nil {
			s.submit(func() { s.onDialFailed(epoch, err) })
		}
	}()
}

func (s *Session) onDialFailed(epoch uint64, err error) {
	if epoch != s.epoch || s.state.Phase != PhaseConnecting {
		return
	}
	s.dialCancel = nil
	s.fail(fmt.Sprintf("connect: %v", err))
}

func (s *Session) onTransportUp(epoch uint64) {
	if epoch != s.epoch || s.state.Phase != PhaseConnecting {
		return
	}
	s.dialCancel = nil
	s.transportUp = true
	s.registerID = 0
	s.transition(Registering())
	go s.handshake(epoch)
}

func (s *Session) onTransportDown(epoch uint64) {
	if epoch != s.epoch || !s.transportUp {
		return
	}
	s.teardown()
	s.transition(Disconnected())
	s.scheduleReconnect()
}

// handshake runs both registration steps for one attempt. It runs on its
// own goroutine; results reach the loop as submitted operations.
func (s *Session) handshake(epoch uint64) {
	failed := func(step string, err error) {
		herr := &HandshakeError{Step: step, Err: err}
		s.submit(func() { s.onHandshakeFailed(epoch, herr) })
	}

	var token string
	if tok, err := s.keystore.LoadToken(); err != nil {
		s.logger.Warn("failed to load token", "error", err)
	} else if tok != nil {
		token = tok.Token
	}

	resp, err := s.roundTrip(s.ctx, requestOpts{
		epoch:    epoch,
		internal: true,
		name:     s.config.Services.InfoName(),
	})
	if err != nil {
		failed(StepInfo, err)
		return
	}
	info := registration.ParseInfo(resp.Body, s.config.Services)
	s.submit(func() { s.onInfo(epoch, info) })

	body, err := registration.BuildRegisterBody(s.config.Identity, token)
	if err != nil {
		failed(StepRegister, err)
		return
	}
	resp, err = s.roundTrip(s.ctx, requestOpts{
		epoch:    epoch,
		internal: true,
		register: true,
		name:     info.Services.RegisterName(),
		body:     body,
	})
	if err != nil {
		failed(StepRegister, err)
		return
	}
	if !registration.HasToken(resp.Body) {
		s.submit(func() { s.onAwaitingApproval(epoch) })
	}
}

func (s *Session) onInfo(epoch uint64, info registration.Info) {
	if epoch != s.epoch {
		return
	}
	s.info = info
	s.setServices(info.Services)
	if info.CoreID != "" {
		s.setCoreID(info.CoreID)
	}
	s.logger.Debug("core info", "core_id", info.CoreID, "core_name", info.DisplayName,
		"transport", info.Services.Transport, "browse", info.Services.Browse, "image", info.Services.Image)
}

func (s *Session) onAwaitingApproval(epoch uint64) {
	if epoch != s.epoch || s.state.Phase != PhaseRegistering {
		return
	}
	s.logger.Info("waiting for the extension to be enabled on the core", "core_name", s.info.DisplayName)
}

func (s *Session) onHandshakeFailed(epoch uint64, err *HandshakeError) {
	if epoch != s.epoch || s.state.Phase != PhaseRegistering {
		return
	}
	s.logger.Warn("handshake failed", "step", err.Step, "error", err.Err)
	s.plog.Log(log.Event{
		Timestamp:  s.clock.Now(),
		Layer:      log.LayerService,
		Category:   log.CategoryError,
		RemoteAddr: s.remoteAddr(),
		Error:      &log.ErrorEventData{Layer: log.LayerService, Message: err.Error(), Context: "handshake"},
	})
	s.fail(err.Error())
}

// completeRegistration finishes the handshake once a token arrives.
// Repeated tokens are ignored.
func (s *Session) completeRegistration(reg registration.Registration) {
	if s.state.Phase != PhaseRegistering {
		return
	}

	coreID := reg.CoreID
	if coreID == "" {
		coreID = s.info.CoreID
	}
	if err := s.keystore.SaveToken(reg.Token, coreID); err != nil {
		s.logger.Warn("failed to save token", "error", err)
	}
	s.reconnector.Reset()
	s.registerID = 0
	s.setCoreID(coreID)

	name := reg.DisplayName
	if name == "" {
		name = s.info.DisplayName
	}
	if name == "" {
		name = coreID
	}
	s.transition(Connected(name))

	s.subscribe(registration.ZonesKey, s.services.ZonesSubscriptionName(), registration.ZonesSubscriptionBody())
	for _, zone := range s.queueZones {
		s.subscribeQueue(zone)
	}
}

// fail abandons the attempt and schedules the next one.
func (s *Session) fail(reason string) {
	s.teardown()
	s.transition(Failed(reason))
	s.scheduleReconnect()
}

func (s *Session) disconnect() {
	s.stopped = true
	s.reconnector.Cancel()
	s.teardown()
	s.queueZones = nil
	s.transition(Disconnected())
}

// teardown ends the current attempt. Events still in flight for it are
// ignored afterwards.
func (s *Session) teardown() {
	s.advanceEpoch()
	s.stopDiscovery()
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	if err := s.transport.Disconnect(); err != nil {
		s.logger.Debug("transport disconnect", "error", err)
	}
	s.transportUp = false
	s.failPending(ErrNotConnected)
	s.subs.clear()
	s.registerID = 0
}

func (s *Session) scheduleReconnect() {
	if s.stopped || s.closed {
		return
	}
	s.reconnector.Cancel()
	delay, _ := s.reconnector.Schedule(func() {
		s.submit(s.reconnect)
	})
	s.metrics.reconnect()
	s.logger.Info("reconnect scheduled", "delay", delay, "attempt", s.reconnector.Attempts())
}

func (s *Session) reconnect() {
	if s.stopped || s.closed || !s.state.canConnect() {
		return
	}
	if s.hasTarget {
		s.dial(s.targetHost, s.targetPort)
		return
	}
	s.startDiscovery()
}

func (s *Session) logDiscovery(state, addr string) {
	s.plog.Log(log.Event{
		Timestamp:  s.clock.Now(),
		Layer:      log.LayerService,
		Category:   log.CategoryState,
		RemoteAddr: addr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDiscovery,
			NewState: state,
		},
	})
}
