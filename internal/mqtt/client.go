package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"streetlight-server/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps a paho client shared by the inbound line source and the
// snapshot publisher. Subscriptions are replayed after every reconnect.
type Client struct {
	client    mqtt.Client
	broker    string
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	subs      map[string]mqtt.MessageHandler

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	c := &Client{
		broker: fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort),
		logger: logger,
		subs:   make(map[string]mqtt.MessageHandler),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(cfg.ReconnectRetry)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// paho runs this in its own goroutine, so waiting on tokens is fine.
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", c.broker)
		c.resubscribe()
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect waits for the initial connection, respecting ctx and Disconnect.
// When ctx expires first, paho keeps retrying in the background.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	// Only the on-connect handler marks the client connected. A token can
	// complete without a session while paho is still retrying in the
	// background, so wait for the handler too.
	const poll = 200 * time.Millisecond
	tokenDone := false
	for {
		if !tokenDone && token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			tokenDone = true
		}
		if tokenDone {
			if c.IsConnected() {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Subscribe registers handler for topic and subscribes now if connected.
func (c *Client) Subscribe(topic string, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler mqtt.MessageHandler) error {
	qos := byte(1) // At least once delivery
	token := c.client.Subscribe(topic, qos, handler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	c.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (c *Client) resubscribe() {
	c.mu.RLock()
	subs := make(map[string]mqtt.MessageHandler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	c.mu.RUnlock()

	for topic, h := range subs {
		if err := c.subscribe(topic, h); err != nil {
			c.logger.Warn("mqtt resubscribe failed", "topic", topic, "error", err)
		}
	}
}

// Unsubscribe drops topic; it is not replayed on reconnect.
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	if c.IsConnected() {
		token := c.client.Unsubscribe(topic)
		token.WaitTimeout(2 * time.Second)
	}
}

// Publish sends payload with QoS 1.
func (c *Client) Publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	token := c.client.Publish(topic, 1, retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent. After Disconnect, Connect returns "client stopped".
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	// Disconnect without holding c.mu to avoid lock contention/deadlocks.
	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
