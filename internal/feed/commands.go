package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dfmap/dfmap/pkg/core"
	"github.com/dfmap/dfmap/pkg/streaming"
)

// Handle applies one inbound envelope and returns its acknowledgement.
func (h *Hub) Handle(env streaming.Envelope) streaming.AckMessage {
	result, err := h.apply(env)
	ack := streaming.AckMessage{Type: streaming.TypeAck, For: env.Type, OK: err == nil, Result: result}
	if err != nil {
		ack.Error = err.Error()
		h.logger.Debug("feed command rejected", "type", env.Type, "error", err)
	}
	return ack
}

func (h *Hub) apply(env streaming.Envelope) (any, error) {
	switch env.Type {
	case streaming.TypePointer:
		var e core.PointerEvent
		if err := env.Decode(&e); err != nil {
			return nil, err
		}
		return h.ctrl.Pointer(e)

	case streaming.TypeMode:
		var p streaming.ModePayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return nil, h.ctrl.SetMode(p.Mode)

	case streaming.TypeDecayRate:
		var p streaming.DecayRatePayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		h.ctrl.SetDecayRate(time.Duration(p.Millis) * time.Millisecond)
		return nil, nil

	case streaming.TypeReplay:
		var p streaming.ReplayPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return h.ctrl.Replay(p.Action)

	case streaming.TypeTogglePermanence:
		var p streaming.EntityPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		permanent, err := h.ctrl.TogglePermanence(p.Kind, p.ID)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"permanent": permanent}, nil

	case streaming.TypeDeleteMarker:
		var p streaming.EntityPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": h.ctrl.DeleteMarker(p.ID)}, nil

	case streaming.TypeUpdateSignal:
		var p streaming.UpdateSignalPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return nil, h.ctrl.UpdateSignal(p.ID, p.Update)

	case streaming.TypePopup:
		var p streaming.PopupPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return nil, h.ctrl.ShowPopup(p.Kind)

	case streaming.TypeSelectArea:
		var p streaming.EntityPayload
		if err := env.Decode(&p); err != nil {
			return nil, err
		}
		return h.ctrl.SelectArea(p.ID)
	}
	return nil, fmt.Errorf("unknown message type %q", env.Type)
}

func (h *Hub) handleRaw(raw []byte) streaming.AckMessage {
	var env streaming.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return streaming.AckMessage{Type: streaming.TypeAck, Error: fmt.Sprintf("invalid envelope: %v", err)}
	}
	return h.Handle(env)
}
