package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"streetlight-server/internal/modules/airquality/types"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { w.closed = true; return nil }

func TestSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, "streetlight.snapshots", slog.New(slog.NewTextHandler(io.Discard, nil)))
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	snap := types.Snapshot{
		Window:         []int{300},
		Latest:         300,
		Classification: types.Classification{Index: 80, Category: types.Moderate},
		Samples:        7,
	}
	require.NoError(t, s.Publish(context.Background(), snap))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "streetlight.snapshots", string(w.msgs[0].Key))

	var got Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	require.Equal(t, fixed, got.Time)
	require.Equal(t, uint64(7), got.Samples)
	require.Equal(t, 300, got.LatestMQ)
	require.Equal(t, "Moderate", got.AQILevel)

	require.NoError(t, s.Close())
	require.True(t, w.closed)
}

func TestSink_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	s := newSink(w, "t", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := s.Publish(context.Background(), types.DefaultSnapshot())
	require.ErrorContains(t, err, "broker down")
}

func TestNewSink_Validation(t *testing.T) {
	_, err := NewSink(nil, "t", slog.Default())
	require.Error(t, err)
	_, err = NewSink([]string{"localhost:9092"}, " ", slog.Default())
	require.Error(t, err)

	s, err := NewSink([]string{"localhost:9092"}, "t", slog.Default())
	require.NoError(t, err)
	require.Equal(t, "kafka", s.Name())
	require.NoError(t, s.Close())
}
