// Package events delivers committed ledger changes to downstream systems.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// Payload is the wire form of a ledger event.
type Payload struct {
	EventID        string          `json:"eventId"`
	Kind           string          `json:"kind"`
	MovementID     string          `json:"movementId"`
	AccountNumber  string          `json:"accountNumber"`
	Seq            int64           `json:"seq"`
	Date           string          `json:"date"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	Balance        decimal.Decimal `json:"balance"`
	StaleFollowers int             `json:"staleFollowers,omitempty"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// NewPayload converts a ledger event, assigning it a sortable event id.
func NewPayload(e ledger.Event) Payload {
	m := e.Movement
	return Payload{
		EventID:        ulid.Make().String(),
		Kind:           string(e.Kind),
		MovementID:     m.ID,
		AccountNumber:  m.AccountNumber,
		Seq:            m.Seq,
		Date:           ledger.FormatDate(m.Date),
		Type:           m.Type,
		Value:          m.Value,
		Balance:        m.Balance,
		StaleFollowers: e.StaleFollowers,
		OccurredAt:     e.OccurredAt.UTC(),
	}
}

func encode(e ledger.Event) (Payload, []byte, error) {
	p := NewPayload(e)
	b, err := json.Marshal(p)
	return p, b, err
}

// LogPublisher writes events to the structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a publisher that only logs.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the event to the logger.
func (p *LogPublisher) Publish(_ context.Context, e ledger.Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("ledger event",
		slog.String("kind", string(e.Kind)),
		slog.String("movement_id", e.Movement.ID),
		slog.String("account", e.Movement.AccountNumber),
		slog.String("value", e.Movement.Value.String()),
		slog.String("balance", e.Movement.Balance.String()),
		slog.Int("stale_followers", e.StaleFollowers))
	return nil
}
