package ws

import (
	"encoding/json"

	"github.com/fathima-sithara/libamarket/internal/domain"
)

type envelope struct {
	Type    domain.EventType `json:"type"`
	Payload domain.Event     `json:"payload"`
}

// Encode wraps an event as {"type": ..., "payload": ...}.
func Encode(ev domain.Event) ([]byte, error) {
	return json.Marshal(envelope{Type: ev.Type(), Payload: ev})
}
