// Package log records a machine-readable trace of everything a corelink
// session puts on and takes off the wire.
//
// Capture is independent of operational logging. slog output is meant for
// people; a capture is a stream of Event values that the "corelink log"
// command can filter, export and summarize after the fact.
//
// Sinks implement Logger:
//
//	capture, err := log.NewFileLogger(filepath.Join(dataDir, "session.clog"))
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), capture)
//
// Each Event carries a Layer and exactly one payload: raw frame bytes from
// the transport, a decoded envelope, a session state change, a ping or
// status probe answered on behalf of the Core, or an error.
//
// Capture files hold back-to-back CBOR events with integer map keys and use
// the .clog extension. Reader and FilteredReader stream them back.
package log
