// Package session maintains a registered session with one Core.
//
// A Session discovers a Core (or is pointed at one), opens a transport to it,
// runs the registration handshake, keeps the standing zones subscription and
// any queue subscriptions alive, and reconnects with backoff when the
// connection is lost. Upper layers use SendRequest for one-shot exchanges and
// receive pushes through the OnZonesData and OnQueueData callbacks.
//
// # State machine
//
//	Disconnected -> Discovering -> Connecting -> Registering -> Connected(core)
//	                               Connecting/Registering -> Failed(reason)
//	Connected -> Disconnected (transport lost)
//	any -> Disconnected (Disconnect)
//
// Entering Failed, or Disconnected without an explicit Disconnect, schedules
// a reconnection after min(2^attempt, 30) seconds. The last known Core is
// dialed again; without one, discovery restarts.
//
// # Concurrency
//
// All session state is owned by a single event loop goroutine. Transport
// events, discovery results, timers and API calls are queued to it and run
// one at a time in submission order. Network I/O and the handshake run on
// their own goroutines and hand results back to the loop. Upward callbacks
// are invoked in order from a separate notifier goroutine, so they may call
// back into the Session.
//
// # Correlation
//
// Every request gets a fresh id. A COMPLETE with that id resolves the
// waiting caller; a timeout, a lost transport or Disconnect fail it instead.
// Each pending request is resolved exactly once. A CONTINUE carrying a token
// on the register request counts as the register reply, since a slow Core
// may deliver it that way.
package session
