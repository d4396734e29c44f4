package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"streetlight-server/internal/modules/airquality/types"
)

// Publisher is a snapshot sink. Messages are retained so late subscribers
// see the current air quality immediately.
type Publisher struct {
	client *Client
	topic  string
}

func NewPublisher(client *Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Name() string { return "mqtt" }

func (p *Publisher) Publish(ctx context.Context, snap types.Snapshot) error {
	data, err := json.Marshal(snap.ToPayload())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return p.client.Publish(ctx, p.topic, true, data)
}
