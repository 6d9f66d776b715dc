package session

import (
	"strings"

	"github.com/corelink/corelink-go/pkg/log"
	"github.com/corelink/corelink-go/pkg/registration"
	"github.com/corelink/corelink-go/pkg/wire"
)

// subscriptions maps subscription keys to the request id currently
// representing them, and back.
type subscriptions struct {
	byKey map[string]int64
	byID  map[int64]string
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		byKey: make(map[string]int64),
		byID:  make(map[int64]string),
	}
}

// set maps key to id. A previous id for key is forgotten and returned.
func (t *subscriptions) set(key string, id int64) (old int64, replaced bool) {
	if old, replaced = t.byKey[key]; replaced {
		delete(t.byID, old)
	}
	t.byKey[key] = id
	t.byID[id] = key
	return old, replaced
}

func (t *subscriptions) lookup(id int64) (string, bool) {
	key, ok := t.byID[id]
	return key, ok
}

func (t *subscriptions) id(key string) (int64, bool) {
	id, ok := t.byKey[key]
	return id, ok
}

func (t *subscriptions) remove(id int64) {
	if key, ok := t.byID[id]; ok {
		delete(t.byID, id)
		delete(t.byKey, key)
	}
}

func (t *subscriptions) clear() {
	clear(t.byKey)
	clear(t.byID)
}

func (t *subscriptions) len() int {
	return len(t.byKey)
}

// subscribe issues a subscription request for key, replacing any earlier
// one.
func (s *Session) subscribe(key, name string, body wire.Body) int64 {
	id := s.ids.Next()
	if old, replaced := s.subs.set(key, id); replaced {
		s.logger.Debug("subscription superseded", "key", key, "old_request_id", old, "request_id", id)
	}

	msg := wire.NewRequest(id, name, body)
	s.logMessage(log.DirectionOut, msg, nil)
	s.sendAsync(msg, func(err error) {
		if err != nil {
			s.logger.Warn("failed to send subscription", "key", key, "request_id", id, "error", err)
		}
	})
	return id
}

func (s *Session) subscribeQueue(zoneID string) {
	s.subscribe(
		registration.QueueKey(zoneID),
		s.services.QueueSubscriptionName(),
		registration.QueueSubscriptionBody(zoneID, s.config.QueueItemCount),
	)
}

// rememberQueue records zoneID so its subscription is renewed after a
// reconnect.
func (s *Session) rememberQueue(zoneID string) {
	for _, z := range s.queueZones {
		if z == zoneID {
			return
		}
	}
	s.queueZones = append(s.queueZones, zoneID)
}

// deliverPush hands a subscription payload to the upper layer.
func (s *Session) deliverPush(key string, msg *wire.Message) {
	data := msg.Body.Data
	if key == registration.ZonesKey {
		s.metrics.push(pushZones)
		if cb := s.config.OnZonesData; cb != nil {
			s.notify(func() { cb(data) })
		}
		return
	}

	zoneID, ok := strings.CutPrefix(key, "queue:")
	if !ok {
		return
	}
	s.metrics.push(pushQueue)
	if cb := s.config.OnQueueData; cb != nil {
		s.notify(func() { cb(zoneID, data) })
	}
}
