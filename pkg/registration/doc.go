// Package registration builds and interprets the two-step handshake that
// establishes a session with a Core.
//
// # Handshake
//
//  1. REQUEST <registry>/info with no body. The reply names the Core and
//     lists the service names it assigns. Names for the transport, browse
//     and image services are picked out by substring; missing ones fall back
//     to DefaultServiceNames.
//  2. REQUEST <registry>/register with the extension Identity and, when one
//     was persisted, the previous token. A reply carrying a token means the
//     extension is registered. A reply without one means the Core is waiting
//     for the user to approve the extension; the token then arrives later on
//     the same request id.
//
// Everything here is a pure function of its inputs. The session package owns
// sending, correlation and state.
package registration
