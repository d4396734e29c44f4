// Package kafka streams snapshots to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"streetlight-server/internal/modules/airquality/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the record value written per snapshot.
type Message struct {
	Time    time.Time `json:"time"`
	Samples uint64    `json:"samples"`
	types.Payload
}

type Sink struct {
	writer messageWriter
	key    []byte
	now    func() time.Time
	logger *slog.Logger
}

// NewSink builds a sink writing to topic. Every record is keyed by the
// topic name so snapshots stay ordered within one partition.
func NewSink(brokers []string, topic string, logger *slog.Logger) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newSink(w, topic, logger), nil
}

func newSink(w messageWriter, topic string, logger *slog.Logger) *Sink {
	return &Sink{writer: w, key: []byte(topic), now: time.Now, logger: logger}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Publish(ctx context.Context, snap types.Snapshot) error {
	value, err := json.Marshal(Message{
		Time:    s.now().UTC(),
		Samples: snap.Samples,
		Payload: snap.ToPayload(),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: s.key, Value: value}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	s.logger.Debug("snapshot written to kafka", "samples", snap.Samples)
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
