package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"streetlight-server/internal/modules/airquality/ingest"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	lineBufferSize = 64
	connectTimeout = 5 * time.Second
)

// Source delivers "MQ:<n>" records published to a topic. One message may
// carry several newline-separated records.
type Source struct {
	client *Client
	topic  string
	poll   time.Duration
	lines  chan string
	logger *slog.Logger
}

func NewSource(client *Client, topic string, poll time.Duration, logger *slog.Logger) *Source {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Source{
		client: client,
		topic:  topic,
		poll:   poll,
		lines:  make(chan string, lineBufferSize),
		logger: logger,
	}
}

func (s *Source) Name() string { return "mqtt:" + s.topic }

func (s *Source) Open(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := s.client.Connect(connectCtx); err != nil {
		return &ingest.TransportError{Op: "mqtt connect", Err: err}
	}
	if err := s.client.Subscribe(s.topic, s.handleMessage); err != nil {
		return &ingest.TransportError{Op: "mqtt subscribe", Err: err}
	}
	return nil
}

func (s *Source) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.logger.Debug("received mqtt message", "topic", msg.Topic(), "size", len(msg.Payload()))
	for _, line := range strings.Split(string(msg.Payload()), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		select {
		case s.lines <- line:
		default:
			s.logger.Warn("mqtt line buffer full, dropping record", "topic", msg.Topic())
		}
	}
}

// ReadLine waits one poll interval for a record.
func (s *Source) ReadLine(ctx context.Context) (string, error) {
	select {
	case line := <-s.lines:
		return line, nil
	default:
	}
	t := time.NewTimer(s.poll)
	defer t.Stop()
	select {
	case line := <-s.lines:
		return line, nil
	case <-t.C:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	// A lost broker connection surfaces once per poll interval.
	if !s.client.IsConnected() {
		return "", &ingest.TransportError{Op: "mqtt read", Err: errors.New("not connected")}
	}
	return "", ingest.ErrNoData
}

func (s *Source) Close() error {
	s.client.Unsubscribe(s.topic)
	return nil
}
