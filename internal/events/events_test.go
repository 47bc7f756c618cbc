package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/accountledger/internal/ledger"
)

func sampleEvent() ledger.Event {
	return ledger.Event{
		Kind: ledger.EventMovementRecorded,
		Movement: ledger.Movement{
			ID:            "01HV0000000000000000000000",
			AccountNumber: "001",
			Seq:           2,
			Date:          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			Type:          "deposit",
			Value:         decimal.RequireFromString("500"),
			Balance:       decimal.RequireFromString("1500"),
		},
		OccurredAt: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "ledger.movements")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := NewRedisPublisher(client, "ledger.movements").Publish(ctx, sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var p Payload
		if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if p.Kind != "movement.recorded" || p.AccountNumber != "001" || p.Date != "2024-03-15" {
			t.Fatalf("unexpected payload: %+v", p)
		}
		if !p.Balance.Equal(decimal.RequireFromString("1500")) {
			t.Fatalf("expected balance 1500, got %s", p.Balance)
		}
		if p.EventID == "" {
			t.Fatalf("expected an event id")
		}
	case <-ctx.Done():
		t.Fatalf("no message received")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaPublisherKeysByAccount(t *testing.T) {
	w := &fakeWriter{}
	if err := NewKafkaPublisher(w).Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "001" {
		t.Fatalf("expected key 001, got %q", msg.Key)
	}
	if !bytes.Contains(msg.Value, []byte(`"movementId":"01HV0000000000000000000000"`)) {
		t.Fatalf("unexpected value: %s", msg.Value)
	}
}

func TestKafkaPublisherWrapsError(t *testing.T) {
	boom := errors.New("broker unavailable")
	err := NewKafkaPublisher(&fakeWriter{err: boom}).Publish(context.Background(), sampleEvent())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	if err := NewLogPublisher(logger).Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(buf.String(), `"kind":"movement.recorded"`) {
		t.Fatalf("expected kind in log output, got %s", buf.String())
	}
}
