package log

import (
	"time"
)

// Event represents a diagnostic event captured by the transport.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection attempt (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// RemoteAddr is the endpoint address this connection targets.
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Envelope    *EnvelopeEvent    `cbor:"10,keyasint,omitempty"` // Channel messages
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Lifecycle transitions
	Control     *ControlEvent     `cbor:"12,keyasint,omitempty"` // Ping/close frames
	Drop        *DropEvent        `cbor:"13,keyasint,omitempty"` // Discarded frames and skipped sends
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any point
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an inbound message or signal.
	DirectionIn Direction = 0
	// DirectionOut indicates an outbound message or signal.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryEnvelope indicates a channel message envelope.
	CategoryEnvelope Category = 0
	// CategoryControl indicates a control frame (ping/close).
	CategoryControl Category = 1
	// CategoryState indicates a connection state change.
	CategoryState Category = 2
	// CategoryDrop indicates a discarded inbound frame or skipped send.
	CategoryDrop Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryEnvelope:
		return "ENVELOPE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryDrop:
		return "DROP"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// EnvelopeEvent captures a channel message crossing the transport.
type EnvelopeEvent struct {
	// Channel is the envelope's channel name.
	Channel string `cbor:"1,keyasint"`

	// Size is the serialized frame size in bytes.
	Size int `cbor:"2,keyasint"`

	// Subscribers is the number of handlers the payload was delivered to
	// (inbound only).
	Subscribers int `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures a connection lifecycle transition.
type StateChangeEvent struct {
	// OldState is the state name before the transition.
	OldState string `cbor:"1,keyasint"`

	// NewState is the state name after the transition.
	NewState string `cbor:"2,keyasint"`

	// Reason describes what drove the transition, if known.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ControlEvent captures a ping or close control frame.
type ControlEvent struct {
	// Type is the control frame type ("ping", "pong" or "close").
	Type string `cbor:"1,keyasint"`

	// Code is the close code for close frames.
	Code int `cbor:"2,keyasint,omitempty"`

	// Reason is the close reason for close frames.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// DropEvent captures a frame that was discarded rather than processed, or
// a send that was skipped because a precondition failed.
type DropEvent struct {
	// Reason describes why the frame or send was dropped.
	Reason string `cbor:"1,keyasint"`

	// Size is the discarded frame size in bytes, if applicable.
	Size int `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures an error.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes what the transport was doing.
	Context string `cbor:"2,keyasint,omitempty"`
}
