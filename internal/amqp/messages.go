package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ResultMessage wraps one report result.
type ResultMessage struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	RunID     string          `json:"run_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewResultMessage(kind, runID string, payload any) (*ResultMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &ResultMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		RunID:     runID,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Payload:   body,
	}, nil
}

func (m *ResultMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ResultMessageFromJSON(data []byte) (*ResultMessage, error) {
	var msg ResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
