package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"bilancio/internal/core"
)

// ErrInvalidEvent marks an event that can never be processed. Consumers
// drop such messages instead of requeueing them.
var ErrInvalidEvent = errors.New("invalid transaction event")

// EventType names the mutation that produced a TransactionEvent.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// TransactionEvent announces a change to the transaction collection.
// Version is the collection version the change produced; it counts from
// zero again whenever Epoch changes.
type TransactionEvent struct {
	Type        EventType `json:"type"`
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Epoch       string    `json:"epoch"`
	Version     uint64    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewTransactionEvent builds an event for t.
func NewTransactionEvent(typ EventType, t core.Transaction, epoch string, version uint64) *TransactionEvent {
	return &TransactionEvent{
		Type:        typ,
		ID:          t.ID,
		Description: t.Description,
		Amount:      t.Amount,
		Category:    t.Category,
		Epoch:       epoch,
		Version:     version,
		Timestamp:   time.Now().UTC(),
	}
}

// RoutingKey is the topic routing key, e.g. "transaction.created".
func (e *TransactionEvent) RoutingKey() string {
	return "transaction." + string(e.Type)
}

// ToJSON converts the event to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes an event
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Join(ErrInvalidEvent, err)
	}
	return &e, nil
}
