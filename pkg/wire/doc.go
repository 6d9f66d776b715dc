// Package wire defines the MOO/1 message format spoken between a client and
// a Core.
//
// Every exchange is made of frames. A frame is a short text header block
// followed by an optional body:
//
//	MOO/1 REQUEST com.example.registry:1/info
//	Request-Id: 7
//	Content-Type: application/json
//	Content-Length: 2
//
//	{}
//
// # Verbs
//
// There are three verbs:
//   - REQUEST: starts an exchange. The name is "<service>/<method>".
//   - COMPLETE: ends the exchange with the same Request-Id.
//   - CONTINUE: a non-terminal update on an exchange (subscriptions).
//
// For COMPLETE and CONTINUE the name is a status word such as "Success",
// "Subscribed", "Changed" or "Registered".
//
// # Bodies
//
// Bodies are opaque at this layer. Body keeps the raw bytes together with
// the content type and decodes lazily (JSON or CBOR) only when a caller asks.
package wire
