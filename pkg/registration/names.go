package registration

import "strings"

// Well-known service names.
const (
	ServiceRegistry  = "svc.registry:1"
	ServicePing      = "svc.ping:1"
	ServiceStatus    = "svc.status:1"
	ServiceTransport = "svc.transport:2"
	ServiceBrowse    = "svc.browse:1"
	ServiceImage     = "svc.image:1"
)

// Substrings identifying service categories in info replies.
const (
	categoryTransport = "transport"
	categoryBrowse    = "browse"
	categoryImage     = "image"
)

// Method names.
const (
	MethodInfo            = "info"
	MethodRegister        = "register"
	MethodPing            = "ping"
	MethodSubscribeStatus = "subscribe_status"
	MethodSubscribeZones  = "subscribe_zones"
	MethodSubscribeQueue  = "subscribe_queue"
)

// ServiceNames are the service name prefixes requests are addressed to.
type ServiceNames struct {
	Registry  string `json:"registry" yaml:"registry"`
	Transport string `json:"transport" yaml:"transport"`
	Browse    string `json:"browse" yaml:"browse"`
	Image     string `json:"image" yaml:"image"`
}

// DefaultServiceNames returns the names used when a Core does not announce
// its own.
func DefaultServiceNames() ServiceNames {
	return ServiceNames{
		Registry:  ServiceRegistry,
		Transport: ServiceTransport,
		Browse:    ServiceBrowse,
		Image:     ServiceImage,
	}
}

// InfoName is the request name of handshake step 1.
func (n ServiceNames) InfoName() string {
	return n.Registry + "/" + MethodInfo
}

// RegisterName is the request name of handshake step 2.
func (n ServiceNames) RegisterName() string {
	return n.Registry + "/" + MethodRegister
}

// ZonesSubscriptionName is the request name of the standing zones
// subscription.
func (n ServiceNames) ZonesSubscriptionName() string {
	return n.Transport + "/" + MethodSubscribeZones
}

// QueueSubscriptionName is the request name of a per-zone queue
// subscription.
func (n ServiceNames) QueueSubscriptionName() string {
	return n.Transport + "/" + MethodSubscribeQueue
}

// withAnnounced fills categories from announced names. The first name
// containing a category's substring wins; categories without a match keep
// their current value.
func (n ServiceNames) withAnnounced(announced []string) ServiceNames {
	var transport, browse, image bool
	for _, name := range announced {
		lower := strings.ToLower(name)
		switch {
		case !transport && strings.Contains(lower, categoryTransport):
			n.Transport, transport = name, true
		case !browse && strings.Contains(lower, categoryBrowse):
			n.Browse, browse = name, true
		case !image && strings.Contains(lower, categoryImage):
			n.Image, image = name, true
		}
	}
	return n
}

// IsPing reports whether a server-initiated request name is a liveness probe.
func IsPing(name string) bool {
	return strings.Contains(name, MethodPing)
}

// IsStatusSubscription reports whether a server-initiated request name asks
// for this extension's status.
func IsStatusSubscription(name string) bool {
	return strings.Contains(name, MethodSubscribeStatus)
}
