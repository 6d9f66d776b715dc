package registration

import (
	"fmt"

	"github.com/corelink/corelink-go/pkg/wire"
)

// Subscription keys.
const (
	ZonesKey = "zones"

	// DefaultQueueItemCount is the max_item_count of queue subscriptions.
	DefaultQueueItemCount = 100
)

// Info is the interpreted reply to handshake step 1.
type Info struct {
	CoreID         string
	DisplayName    string
	DisplayVersion string
	Services       ServiceNames
}

type infoBody struct {
	CoreID           string   `json:"core_id"`
	DisplayName      string   `json:"display_name"`
	DisplayVersion   string   `json:"display_version"`
	Services         []string `json:"services"`
	ProvidedServices []string `json:"provided_services"`
}

// ParseInfo interprets an info reply. Missing or undecodable fields leave the
// defaults in place; the registry name is never replaced.
func ParseInfo(body wire.Body, defaults ServiceNames) Info {
	var b infoBody
	_ = body.Decode(&b)

	announced := make([]string, 0, len(b.Services)+len(b.ProvidedServices))
	announced = append(announced, b.Services...)
	announced = append(announced, b.ProvidedServices...)

	return Info{
		CoreID:         b.CoreID,
		DisplayName:    b.DisplayName,
		DisplayVersion: b.DisplayVersion,
		Services:       defaults.withAnnounced(announced),
	}
}

type registerBody struct {
	Identity
	Token string `json:"token,omitempty"`
}

// BuildRegisterBody builds the step 2 payload. An empty token is omitted.
func BuildRegisterBody(id Identity, token string) (wire.Body, error) {
	body, err := wire.JSONBody(registerBody{Identity: id.withProvided(), Token: token})
	if err != nil {
		return wire.Body{}, fmt.Errorf("build register body: %w", err)
	}
	return body, nil
}

// Registration is the interpreted reply to handshake step 2.
type Registration struct {
	Token       string
	CoreID      string
	DisplayName string
}

type registerReply struct {
	CoreID      string `json:"core_id"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
}

// ParseRegister interprets a register reply. ok is false when the reply
// carries no token, meaning the extension is not registered yet.
func ParseRegister(body wire.Body) (reg Registration, ok bool) {
	var r registerReply
	if err := body.Decode(&r); err != nil || r.Token == "" {
		return Registration{}, false
	}
	return Registration{Token: r.Token, CoreID: r.CoreID, DisplayName: r.DisplayName}, true
}

// HasToken reports whether body is a register reply carrying a token.
func HasToken(body wire.Body) bool {
	_, ok := ParseRegister(body)
	return ok
}

// ZonesSubscriptionBody is the body of the standing zones subscription.
func ZonesSubscriptionBody() wire.Body {
	return wire.MustJSONBody(map[string]any{"subscription_key": ZonesKey})
}

// QueueKey is the subscription key of a zone's queue.
func QueueKey(zoneID string) string {
	return "queue:" + zoneID
}

// QueueSubscriptionBody is the body of a queue subscription.
func QueueSubscriptionBody(zoneID string, maxItems int) wire.Body {
	if maxItems <= 0 {
		maxItems = DefaultQueueItemCount
	}
	return wire.MustJSONBody(map[string]any{
		"zone_or_output_id": zoneID,
		"max_item_count":    maxItems,
		"subscription_key":  QueueKey(zoneID),
	})
}

// PingReply answers a liveness probe on requestID.
func PingReply(requestID int64) *wire.Message {
	return wire.NewComplete(requestID, wire.StatusSuccess, wire.Body{})
}

// StatusReply answers a status subscription on requestID with a ready,
// non-error status.
func StatusReply(requestID int64) *wire.Message {
	return wire.NewComplete(requestID, wire.StatusSuccess, wire.MustJSONBody(map[string]any{
		"message":  "Ready",
		"is_error": false,
	}))
}

// ReplyTo returns the reply for a server-initiated request, or nil if the
// request is not one this client answers.
func ReplyTo(req *wire.Message) *wire.Message {
	switch {
	case IsPing(req.Name):
		return PingReply(req.RequestID)
	case IsStatusSubscription(req.Name):
		return StatusReply(req.RequestID)
	default:
		return nil
	}
}
