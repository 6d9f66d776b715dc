package session

import (
	"time"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/registration"
	"github.com/corelink/corelink-go/pkg/wire"
)

// onMessage routes one inbound frame. Frames are handled in arrival order.
func (s *Session) onMessage(epoch uint64, msg *wire.Message) {
	if epoch != s.epoch || !s.transportUp {
		return
	}

	if msg.IsRequest() {
		s.logMessage(log.DirectionIn, msg, nil)
		s.handleServerRequest(msg)
		return
	}

	p := s.pending[msg.RequestID]
	var rtt *time.Duration
	if p != nil && msg.IsComplete() {
		d := s.clock.Since(p.sentAt)
		rtt = &d
	}
	s.logMessage(log.DirectionIn, msg, rtt)

	handled := false

	if key, ok := s.subs.lookup(msg.RequestID); ok {
		s.deliverPush(key, msg)
		if msg.IsComplete() {
			s.subs.remove(msg.RequestID)
		}
		handled = true
	}

	// The register reply may arrive as COMPLETE or CONTINUE, and a reply
	// without a token may be followed by one with a token later.
	if s.registerID != 0 && msg.RequestID == s.registerID {
		if reg, ok := registration.ParseRegister(msg.Body); ok {
			s.completeRegistration(reg)
		}
		handled = true
	}

	if p != nil {
		if msg.IsComplete() || (p.acceptToken && registration.HasToken(msg.Body)) {
			s.resolve(p, result{msg: msg})
			handled = true
		}
	}

	if !handled {
		if msg.IsContinue() {
			s.metrics.droppedContinuation()
			s.logger.Debug("dropping unmatched continuation", "request_id", msg.RequestID, "name", msg.Name)
			return
		}
		s.logger.Debug("ignoring completion for unknown request", "request_id", msg.RequestID, "name", msg.Name)
	}
}

// handleServerRequest answers liveness probes and status subscriptions
// on the same request id. Other requests from the Core are ignored.
func (s *Session) handleServerRequest(msg *wire.Message) {
	kind := log.ProbeUnknown
	switch {
	case registration.IsPing(msg.Name):
		kind = log.ProbePing
	case registration.IsStatusSubscription(msg.Name):
		kind = log.ProbeStatus
	}
	s.metrics.serverRequest(kind.String())

	captured := func(answered bool) log.Event {
		return log.Event{
			Timestamp:    s.clock.Now(),
			ConnectionID: s.connID(),
			Direction:    log.DirectionIn,
			Layer:        log.LayerService,
			Category:     log.CategoryProbe,
			RemoteAddr:   s.remoteAddr(),
			CoreID:       s.coreID,
			Probe: &log.ProbeEvent{
				Type:      kind,
				Name:      msg.Name,
				RequestID: msg.RequestID,
				Answered:  answered,
			},
		}
	}

	reply := registration.ReplyTo(msg)
	if reply == nil {
		s.logger.Debug("ignoring server request", "name", msg.Name, "request_id", msg.RequestID)
		s.plog.Log(captured(false))
		return
	}

	// The reply is committed in this step; the write happens on the sender.
	s.logMessage(log.DirectionOut, reply, nil)
	ev := captured(true)
	s.sendAsync(reply, func(err error) {
		if err != nil {
			s.logger.Warn("failed to answer server request", "name", msg.Name, "request_id", msg.RequestID, "error", err)
			ev.Probe.Answered = false
		}
		s.plog.Log(ev)
	})
}
