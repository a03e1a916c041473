package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the envelope protocol version stamped on every
// outbound message. Fixed per build.
const ProtocolVersion = 1

// Envelope decode errors.
var (
	ErrMissingVersion = errors.New("envelope missing version")
	ErrMissingChannel = errors.New("envelope missing channel")
	ErrMissingPayload = errors.New("envelope missing payload")
)

// Envelope is the channel-tagged message unit exchanged after connection
// establishment. Version and Payload are kept as raw JSON: peers may send
// the version as a number or a string, and the payload is opaque to the
// transport.
type Envelope struct {
	Version json.RawMessage `json:"version"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Encode builds an outbound envelope for the given channel and payload
// and serializes it to JSON.
func Encode(channel string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	env := struct {
		Version int             `json:"version"`
		Channel string          `json:"channel"`
		Payload json.RawMessage `json:"payload"`
	}{
		Version: ProtocolVersion,
		Channel: channel,
		Payload: raw,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses an inbound frame into an Envelope and validates it.
// It returns an error for malformed JSON and for envelopes missing any
// of the three required keys; such frames must not be dispatched.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks that all required envelope fields are present.
// A field set to JSON null counts as missing.
func (e *Envelope) Validate() error {
	if isAbsent(e.Version) {
		return ErrMissingVersion
	}
	if e.Channel == "" {
		return ErrMissingChannel
	}
	if isAbsent(e.Payload) {
		return ErrMissingPayload
	}
	return nil
}

// isAbsent reports whether a raw JSON field was omitted or explicitly null.
func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
