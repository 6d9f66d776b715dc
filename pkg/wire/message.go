package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Verb identifies the role of a frame in an exchange.
type Verb uint8

const (
	// VerbRequest starts an exchange.
	VerbRequest Verb = iota + 1

	// VerbComplete terminates an exchange.
	VerbComplete

	// VerbContinue carries an update without terminating the exchange.
	VerbContinue
)

// String returns the on-wire spelling of the verb.
func (v Verb) String() string {
	switch v {
	case VerbRequest:
		return "REQUEST"
	case VerbComplete:
		return "COMPLETE"
	case VerbContinue:
		return "CONTINUE"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if v is one of the defined verbs.
func (v Verb) IsValid() bool {
	return v >= VerbRequest && v <= VerbContinue
}

// ParseVerb parses the on-wire spelling of a verb.
func ParseVerb(s string) (Verb, error) {
	switch s {
	case "REQUEST":
		return VerbRequest, nil
	case "COMPLETE":
		return VerbComplete, nil
	case "CONTINUE":
		return VerbContinue, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVerb, s)
	}
}

// Common status names used on COMPLETE and CONTINUE frames.
const (
	StatusSuccess        = "Success"
	StatusSubscribed     = "Subscribed"
	StatusChanged        = "Changed"
	StatusRegistered     = "Registered"
	StatusNotRegistered  = "NotRegistered"
	StatusInvalidRequest = "InvalidRequest"
)

// Message errors.
var (
	ErrUnknownVerb = errors.New("unknown verb")
	ErrEmptyName   = errors.New("message name is empty")
	ErrNegativeID  = errors.New("request id is negative")
	ErrInvalidName = errors.New("message name contains whitespace")
)

// Message is one protocol frame in either direction.
type Message struct {
	// Verb is REQUEST, COMPLETE or CONTINUE.
	Verb Verb

	// Name is "<service>/<method>" for requests or a status word otherwise.
	Name string

	// RequestID correlates all frames of one exchange.
	RequestID int64

	// Headers holds any header besides Request-Id, Content-Type and
	// Content-Length. Nil when there are none.
	Headers map[string]string

	// Body is the optional payload. The zero Body means "no body".
	Body Body
}

// NewRequest creates a REQUEST frame.
func NewRequest(requestID int64, name string, body Body) *Message {
	return &Message{Verb: VerbRequest, Name: name, RequestID: requestID, Body: body}
}

// NewComplete creates a COMPLETE frame answering requestID.
func NewComplete(requestID int64, status string, body Body) *Message {
	return &Message{Verb: VerbComplete, Name: status, RequestID: requestID, Body: body}
}

// NewContinue creates a CONTINUE frame on requestID.
func NewContinue(requestID int64, status string, body Body) *Message {
	return &Message{Verb: VerbContinue, Name: status, RequestID: requestID, Body: body}
}

// Validate checks that the message can be framed.
func (m *Message) Validate() error {
	if !m.Verb.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownVerb, m.Verb)
	}
	if m.Name == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(m.Name, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, m.Name)
	}
	if m.RequestID < 0 {
		return ErrNegativeID
	}
	return nil
}

// IsRequest returns true for REQUEST frames.
func (m *Message) IsRequest() bool { return m.Verb == VerbRequest }

// IsComplete returns true for COMPLETE frames.
func (m *Message) IsComplete() bool { return m.Verb == VerbComplete }

// IsContinue returns true for CONTINUE frames.
func (m *Message) IsContinue() bool { return m.Verb == VerbContinue }

// Service returns the service part of a request name ("svc.browse:1" for
// "svc.browse:1/browse"). For names without a slash the whole name is returned.
func (m *Message) Service() string {
	if i := strings.LastIndexByte(m.Name, '/'); i >= 0 {
		return m.Name[:i]
	}
	return m.Name
}

// Method returns the method part of a request name, or "" if there is none.
func (m *Message) Method() string {
	if i := strings.LastIndexByte(m.Name, '/'); i >= 0 {
		return m.Name[i+1:]
	}
	return ""
}

// String returns a short human readable description used in logs.
func (m *Message) String() string {
	return fmt.Sprintf("%s %s #%d (%d bytes)", m.Verb, m.Name, m.RequestID, m.Body.Len())
}
