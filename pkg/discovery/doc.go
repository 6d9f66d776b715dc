// Package discovery finds Cores on the local network.
//
// # SOOD
//
// The primary mechanism is SOOD, a small UDP query/response protocol. A
// client periodically sends a query to the multicast group 239.255.90.90 and
// the limited broadcast address, both on port 9003. Every Core that offers
// the queried service id answers with a unicast response carrying its unique
// id, display name, version and the port of its frame endpoint.
//
// A SOOD packet is the magic "SOOD", a version byte (2), a type byte ('Q' for
// queries, 'R' for responses) and a sequence of properties:
//
//	[1 byte name length][name][2 byte big-endian value length][value]
//
// A value length of 0xFFFF encodes a null value.
//
// # mDNS
//
// Cores that also advertise _corelink._tcp over DNS-SD can be found with
// MDNSDiscovery. Multi merges several discoverers into one stream.
//
// Discovery is best effort and never gives up on its own: network errors are
// retried on the next query interval, and only Stop ends a session. The same
// Core may be reported by several mechanisms but at most once per session.
package discovery
