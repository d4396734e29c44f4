package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	"streetlight-server/internal/config"
	"streetlight-server/internal/modules/airquality/ingest"
	"streetlight-server/internal/modules/airquality/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startBroker runs an in-process broker on a free loopback port.
func startBroker(t *testing.T) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "test",
		Address: addr.String(),
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	return "127.0.0.1", addr.Port
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(host string, port int, clientID string) config.Config {
	return config.Config{
		MQTTBroker:     host,
		MQTTPort:       port,
		MQTTClientID:   clientID,
		ReconnectRetry: 100 * time.Millisecond,
	}
}

func connectedClient(t *testing.T, host string, port int, id string) *Client {
	t.Helper()
	c := NewClient(testConfig(host, port, id), discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(c.Disconnect)
	return c
}

func TestSource_ReceivesRecords(t *testing.T) {
	host, port := startBroker(t)

	sub := NewClient(testConfig(host, port, "sub"), discardLogger())
	t.Cleanup(sub.Disconnect)
	src := NewSource(sub, "streetlight/mq", 50*time.Millisecond, discardLogger())
	require.Equal(t, "mqtt:streetlight/mq", src.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, src.Open(ctx))

	pub := connectedClient(t, host, port, "pub")
	require.NoError(t, pub.Publish(ctx, "streetlight/mq", false, []byte("MQ:412\r\nMQ:415\n")))

	var got []string
	for len(got) < 2 && ctx.Err() == nil {
		line, err := src.ReadLine(ctx)
		if errors.Is(err, ingest.ErrNoData) {
			continue
		}
		require.NoError(t, err)
		got = append(got, line)
	}
	require.Equal(t, []string{"MQ:412", "MQ:415"}, got)

	require.NoError(t, src.Close())
}

func TestSource_NoDataWithinPoll(t *testing.T) {
	host, port := startBroker(t)
	c := connectedClient(t, host, port, "idle")
	src := NewSource(c, "streetlight/mq", 20*time.Millisecond, discardLogger())
	require.NoError(t, src.Open(context.Background()))

	_, err := src.ReadLine(context.Background())
	require.ErrorIs(t, err, ingest.ErrNoData)
}

func TestSource_NotConnected(t *testing.T) {
	c := NewClient(testConfig("127.0.0.1", 1, "nobody"), discardLogger())
	src := NewSource(c, "streetlight/mq", 10*time.Millisecond, discardLogger())

	_, err := src.ReadLine(context.Background())
	var te *ingest.TransportError
	require.ErrorAs(t, err, &te)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.ErrorAs(t, src.Open(ctx), &te)
	c.Disconnect()
}

func TestPublisher_PublishesRetainedPayload(t *testing.T) {
	host, port := startBroker(t)
	c := connectedClient(t, host, port, "publisher")
	p := NewPublisher(c, "streetlight/snapshot")
	require.Equal(t, "mqtt", p.Name())

	snap := types.Snapshot{
		Window:         []int{100, 200},
		Latest:         200,
		Classification: types.Classification{Index: 45, Category: types.Good},
	}
	require.NoError(t, p.Publish(context.Background(), snap))

	// Retained: a subscriber arriving later still gets it.
	reader := connectedClient(t, host, port, "reader")
	got := make(chan []byte, 1)
	require.NoError(t, reader.Subscribe("streetlight/snapshot", func(_ paho.Client, m paho.Message) {
		select {
		case got <- m.Payload():
		default:
		}
	}))

	select {
	case data := <-got:
		var payload types.Payload
		require.NoError(t, json.Unmarshal(data, &payload))
		require.Equal(t, 200, payload.LatestMQ)
		require.Equal(t, []int{100, 200}, payload.MQValues)
		require.Equal(t, 45, payload.AQI)
		require.Equal(t, types.Good.String(), payload.AQILevel)
	case <-time.After(5 * time.Second):
		t.Fatal("no retained snapshot received")
	}
}

func TestClient_RepeatedConnectWithoutBroker(t *testing.T) {
	c := NewClient(testConfig("127.0.0.1", freePort(t), "unreachable"), discardLogger())
	t.Cleanup(c.Disconnect)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		err := c.Connect(ctx)
		cancel()
		require.Error(t, err, "attempt %d", i+1)

		c.mu.RLock()
		flagged := c.connected
		c.mu.RUnlock()
		require.False(t, flagged, "attempt %d marked the client connected", i+1)
		require.False(t, c.IsConnected())
	}
}

func TestClient_ConnectAfterDisconnect(t *testing.T) {
	c := NewClient(testConfig("127.0.0.1", 1, "stopped"), discardLogger())
	c.Disconnect()
	require.Error(t, c.Connect(context.Background()))
	require.False(t, c.IsConnected())
	require.Error(t, c.Publish(context.Background(), "x", false, []byte("1")))
}
