package broadcast

import (
	"encoding/json"
	"errors"
	"time"
)

// Type tags a broadcast message.
type Type string

const (
	TypeLogout         Type = "logout"
	TypeRefresh        Type = "refresh"
	TypeActivity       Type = "activity"
	TypeTimeoutWarning Type = "timeout_warning"
)

// Message is a one-shot notification. It is never mutated after send.
type Message struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	TabID     string          `json:"tab_id"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Join(ErrInvalidMessage, err)
	}
	if msg.Type == "" || msg.TabID == "" {
		return Message{}, ErrInvalidMessage
	}
	return msg, nil
}
