// Package transport carries MOO/1 frames between this client and a Core.
//
// The transport layer handles:
//   - One stream connection per Core (TCP or WebSocket)
//   - Frame boundaries independent of read boundaries
//   - Serialized writes from concurrent senders
//   - Connection state with exactly one "disconnected" per connection
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Message bodies (JSON/CBOR)   │
//	├────────────────────────────────┤
//	│      MOO/1 header framing      │
//	├────────────────────────────────┤
//	│   TCP stream  |  WebSocket     │
//	└────────────────────────────────┘
//
// On TCP frames are written back to back and the reader reassembles them
// from arbitrary read boundaries. On WebSocket every frame is one binary
// message at ws://host:port/api.
//
// Server is a minimal loopback Core used to exercise clients in tests.
package transport
