// Package log provides structured diagnostic logging for the uplink
// transport.
//
// The transport reports everything that happens on a connection as Event
// values: state changes, envelopes in and out, dropped frames, control
// frames and errors. Applications choose where events go by supplying a
// Logger implementation:
//
//   - NoopLogger discards everything (the default)
//   - SlogAdapter writes to a log/slog logger for console output
//   - FileLogger appends CBOR-encoded events to a file
//   - MultiLogger fans out to several of the above
//
// Reader streams events back out of a FileLogger file, optionally
// filtered, for offline analysis of a connection.
package log
