package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ReloadMessage asks the dashboard to rebuild its snapshot from the ledger.
// It carries no data; the consumer reads the ledger source itself.
type ReloadMessage struct {
	ID          string    `json:"id"`
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewReloadMessage(requestedBy, reason string) *ReloadMessage {
	return &ReloadMessage{
		ID:          uuid.NewString(),
		RequestedBy: requestedBy,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *ReloadMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReloadMessageFromJSON(data []byte) (*ReloadMessage, error) {
	var msg ReloadMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("reload message has no id")
	}
	return &msg, nil
}
