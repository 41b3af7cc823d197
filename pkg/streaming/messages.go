// Package streaming defines the wire protocol of the rendering feed.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/dfmap/dfmap/pkg/core"
)

// Outbound message types.
const (
	TypeSnapshot = "snapshot"
	TypeNotice   = "notice"
	TypeAck      = "ack"
)

// Inbound message types.
const (
	TypePointer          = "pointer"
	TypeMode             = "mode"
	TypeDecayRate        = "decay_rate"
	TypeReplay           = "replay"
	TypeTogglePermanence = "toggle_permanence"
	TypeDeleteMarker     = "delete_marker"
	TypeUpdateSignal     = "update_signal"
	TypePopup            = "popup"
	TypeSelectArea       = "select_area"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Type, err)
	}
	return nil
}

// AckMessage is the server's acknowledgement of an inbound command.
type AckMessage struct {
	Type   string `json:"type"` // always "ack"
	For    string `json:"for"`  // the message type being acknowledged
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// NoticePayload reports a transient backend problem to subscribers.
type NoticePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ModePayload selects the interaction mode.
type ModePayload struct {
	Mode core.Mode `json:"mode"`
}

// DecayRatePayload sets the decay rate in milliseconds. Zero or negative
// disables decay.
type DecayRatePayload struct {
	Millis int64 `json:"ms"`
}

// Replay actions.
const (
	ReplayStart  = "start"
	ReplayPause  = "pause"
	ReplayResume = "resume"
	ReplayStop   = "stop"
)

// ReplayPayload controls the replay scheduler.
type ReplayPayload struct {
	Action string `json:"action"`
}

// EntityPayload references a single entity.
type EntityPayload struct {
	Kind core.EntityKind `json:"kind,omitempty"`
	ID   string          `json:"id"`
}

// UpdateSignalPayload edits a signal's backend record.
type UpdateSignalPayload struct {
	ID     string            `json:"id"`
	Update core.SignalUpdate `json:"update"`
}

// PopupPayload opens or clears the popup.
type PopupPayload struct {
	Kind core.PopupKind `json:"kind"`
}
