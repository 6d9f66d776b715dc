// Package connection provides reconnection timing for the session layer.
//
// # Reconnection Strategy
//
// After a connection is lost or an attempt fails, the next attempt waits
//
//	min(2^attempt, 30) seconds
//
// so the sequence is 1s, 2s, 4s, 8s, 16s, 30s, 30s... The attempt counter is
// reset once a session reaches the connected state.
//
// # Jitter
//
// Jitter is off by default. When enabled it adds a random fraction of the
// base delay:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// # Scheduling
//
// Reconnector arms at most one timer at a time. Scheduling while a timer is
// pending is a no-op, and a canceled timer never fires its callback.
package connection
