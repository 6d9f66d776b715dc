package session

import "fmt"

// Phase is the kind of a State.
type Phase uint8

const (
	PhaseDisconnected Phase = iota
	PhaseDiscovering
	PhaseConnecting
	PhaseRegistering
	PhaseConnected
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "DISCONNECTED"
	case PhaseDiscovering:
		return "DISCOVERING"
	case PhaseConnecting:
		return "CONNECTING"
	case PhaseRegistering:
		return "REGISTERING"
	case PhaseConnected:
		return "CONNECTED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// State is the session state. CoreName is set only when connected and
// Reason only when failed.
type State struct {
	Phase    Phase
	CoreName string
	Reason   string
}

// Disconnected returns the Disconnected state.
func Disconnected() State { return State{Phase: PhaseDisconnected} }

// Discovering returns the Discovering state.
func Discovering() State { return State{Phase: PhaseDiscovering} }

// Connecting returns the Connecting state.
func Connecting() State { return State{Phase: PhaseConnecting} }

// Registering returns the Registering state.
func Registering() State { return State{Phase: PhaseRegistering} }

// Connected returns the Connected state for coreName.
func Connected(coreName string) State {
	return State{Phase: PhaseConnected, CoreName: coreName}
}

// Failed returns the Failed state with a reason.
func Failed(reason string) State {
	return State{Phase: PhaseFailed, Reason: reason}
}

// IsConnected reports whether requests can be sent.
func (s State) IsConnected() bool {
	return s.Phase == PhaseConnected
}

// canConnect reports whether Connect or ConnectDirect may start an attempt.
func (s State) canConnect() bool {
	return s.Phase == PhaseDisconnected || s.Phase == PhaseFailed
}

// String renders the state, e.g. CONNECTED(Living Room).
func (s State) String() string {
	switch s.Phase {
	case PhaseConnected:
		return fmt.Sprintf("%s(%s)", s.Phase, s.CoreName)
	case PhaseFailed:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Reason)
	default:
		return s.Phase.String()
	}
}
