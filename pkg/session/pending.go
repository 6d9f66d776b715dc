package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/wire"
)

// pendingRequest is a request waiting for its COMPLETE.
type pendingRequest struct {
	id     int64
	name   string
	sentAt time.Time
	timer  *clock.Timer

	// acceptToken lets a CONTINUE carrying a token resolve the request.
	acceptToken bool

	done chan result
}

type result struct {
	msg *wire.Message
	err error
}

type requestOpts struct {
	name string
	body wire.Body

	// internal requests belong to the handshake of attempt epoch and are
	// allowed while registering.
	internal bool
	epoch    uint64

	// register marks handshake step 2.
	register bool
}

// roundTrip registers a pending request on the loop, writes it from the
// calling goroutine and waits for its result.
func (s *Session) roundTrip(ctx context.Context, opts requestOpts) (*wire.Message, error) {
	p := &pendingRequest{
		name:        opts.name,
		acceptToken: opts.register,
		done:        make(chan result, 1),
	}

	var msg *wire.Message
	err := s.do(func() error {
		if !s.transportUp {
			return ErrNotConnected
		}
		if opts.internal {
			if opts.epoch != s.epoch || s.state.Phase != PhaseRegistering {
				return ErrNotConnected
			}
		} else if !s.state.IsConnected() {
			return ErrNotConnected
		}

		id := s.ids.Next()
		msg = wire.NewRequest(id, opts.name, opts.body)
		if err := msg.Validate(); err != nil {
			return err
		}

		p.id = id
		p.sentAt = s.clock.Now()
		p.timer = s.clock.AfterFunc(s.config.RequestTimeout, func() {
			s.submit(func() { s.resolve(p, result{err: ErrTimeout}) })
		})
		s.pending[id] = p
		if opts.register {
			s.registerID = id
		}
		s.logMessage(log.DirectionOut, msg, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.transport.Send(msg); err != nil {
		s.submit(func() { s.resolve(p, result{err: fmt.Errorf("%w: %v", ErrNotConnected, err)}) })
	}

	select {
	case r := <-p.done:
		return r.msg, r.err
	case <-ctx.Done():
		s.submit(func() { s.resolve(p, result{err: ctx.Err()}) })
		r := <-p.done
		return r.msg, r.err
	}
}

// resolve completes p unless it was already completed. It reports whether
// this call completed it.
func (s *Session) resolve(p *pendingRequest, r result) bool {
	if cur, ok := s.pending[p.id]; !ok || cur != p {
		return false
	}
	delete(s.pending, p.id)
	if p.timer != nil {
		p.timer.Stop()
	}

	elapsed := s.clock.Since(p.sentAt)
	s.metrics.request(outcomeOf(r.err), elapsed)
	if r.err != nil {
		s.logger.Debug("request failed", "request_id", p.id, "name", p.name, "error", r.err)
	}

	p.done <- r
	return true
}

// failPending fails every waiting request.
func (s *Session) failPending(err error) {
	for _, p := range s.pending {
		s.resolve(p, result{err: err})
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrNotConnected):
		return outcomeNotConnected
	default:
		return outcomeCanceled
	}
}
