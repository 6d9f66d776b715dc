package log

import (
	"time"

	"github.com/corelink/corelink-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the transport connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow. Events without a flow, such as
	// state changes and errors, leave it as DirectionNone.
	Direction Direction `cbor:"3,keyasint,omitempty"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the Core address (host:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// CoreID is the Core identifier (populated after registration).
	CoreID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Orchestrator state
	Probe       *ProbeEvent       `cbor:"13,keyasint,omitempty"` // Server-initiated ping/status
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionNone marks events that carry no message flow.
	DirectionNone Direction = 0
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 1
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "-"
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message layer (decoded frame header).
	LayerWire Layer = 1
	// LayerService is the orchestrator layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message.
	CategoryMessage Category = 0
	// CategoryProbe indicates a server-initiated probe and its reply.
	CategoryProbe Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryProbe:
		return "PROBE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (header block plus body).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded frame at the wire layer.
type MessageEvent struct {
	// Verb is REQUEST, COMPLETE or CONTINUE.
	Verb wire.Verb `cbor:"1,keyasint"`

	// Name is the request name or status word.
	Name string `cbor:"2,keyasint"`

	// RequestID correlates the frames of one exchange.
	RequestID int64 `cbor:"3,keyasint"`

	// ContentType of the body, if any.
	ContentType string `cbor:"4,keyasint,omitempty"`

	// BodySize is the body length in bytes.
	BodySize int `cbor:"5,keyasint,omitempty"`

	// Payload is the decoded body when it could be decoded.
	Payload any `cbor:"6,keyasint,omitempty"`

	// RoundTrip is the time from request send to COMPLETE receipt
	// (COMPLETE frames answering a client request only).
	RoundTrip *time.Duration `cbor:"7,keyasint,omitempty"`
}

// NewMessageEvent builds a MessageEvent from a wire message. The body is
// decoded into Payload when possible.
func NewMessageEvent(m *wire.Message) *MessageEvent {
	ev := &MessageEvent{
		Verb:        m.Verb,
		Name:        m.Name,
		RequestID:   m.RequestID,
		ContentType: m.Body.ContentType,
		BodySize:    m.Body.Len(),
	}
	if doc := m.Body.Map(); doc != nil {
		ev.Payload = doc
	}
	return ev
}

// StateChangeEvent captures orchestrator and connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a transport connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates an orchestrator state change.
	StateEntitySession StateEntity = 1
	// StateEntityDiscovery indicates discovery started, stopped or found a Core.
	StateEntityDiscovery StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityDiscovery:
		return "DISCOVERY"
	default:
		return "UNKNOWN"
	}
}

// ProbeEvent captures a server-initiated request and whether it was answered.
type ProbeEvent struct {
	// Type of probe.
	Type ProbeType `cbor:"1,keyasint"`

	// Name is the request name sent by the Core.
	Name string `cbor:"2,keyasint"`

	// RequestID of the probe.
	RequestID int64 `cbor:"3,keyasint"`

	// Answered is true when a COMPLETE was sent back.
	Answered bool `cbor:"4,keyasint,omitempty"`
}

// ProbeType indicates the kind of server-initiated request.
type ProbeType uint8

const (
	// ProbePing is a liveness probe.
	ProbePing ProbeType = 0
	// ProbeStatus is a status subscription request.
	ProbeStatus ProbeType = 1
	// ProbeUnknown is any other server-initiated request.
	ProbeUnknown ProbeType = 2
)

// String returns the probe type name.
func (p ProbeType) String() string {
	switch p {
	case ProbePing:
		return "PING"
	case ProbeStatus:
		return "STATUS"
	case ProbeUnknown:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// RequestID is set when the error belongs to one exchange.
	RequestID *int64 `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
