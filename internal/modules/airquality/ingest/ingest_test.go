package ingest

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"streetlight-server/internal/modules/airquality/aqi"
	"streetlight-server/internal/modules/airquality/types"
)

type fakeStore struct {
	mu     sync.Mutex
	values []int
	snap   types.Snapshot
}

func (f *fakeStore) Append(raw int, _ time.Time) types.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = append(f.values, raw)
	f.snap = types.Snapshot{
		Window:         append([]int(nil), f.values...),
		Latest:         raw,
		Classification: aqi.NewClassifier(nil).Classify(raw),
		Samples:        uint64(len(f.values)),
	}
	return f.snap
}

type fakeJournal struct {
	mu     sync.Mutex
	events []types.IngestEvent
	err    error
}

func (f *fakeJournal) RecordEvent(ev types.IngestEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

type fakeObserver struct {
	accepted, transport, reconnects int
	rejected                        map[string]int
}

func (f *fakeObserver) ObserveAccepted(types.Snapshot) { f.accepted++ }
func (f *fakeObserver) ObserveRejected(reason string) {
	if f.rejected == nil {
		f.rejected = map[string]int{}
	}
	f.rejected[reason]++
}
func (f *fakeObserver) ObserveTransportError() { f.transport++ }
func (f *fakeObserver) ObserveReconnect()      { f.reconnects++ }

func newTestIngestor(store Appender, threshold int) (*Ingestor, *fakeJournal, *fakeObserver) {
	j := &fakeJournal{}
	o := &fakeObserver{}
	ing := New(store, Options{
		DeviceMax:        1023,
		FailureThreshold: threshold,
		Journal:          j,
		Observer:         o,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:              func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	})
	return ing, j, o
}

func TestIngestLine_AcceptsRecord(t *testing.T) {
	store := &fakeStore{}
	ing, _, obs := newTestIngestor(store, 10)

	res := ing.IngestLine("MQ:500")
	if res.Outcome != Accepted {
		t.Fatalf("outcome = %v, want accepted (err %v)", res.Outcome, res.Err)
	}
	if res.Snapshot.Latest != 500 {
		t.Errorf("latest = %d, want 500", res.Snapshot.Latest)
	}
	if res.Snapshot.Classification.Category != types.Unhealthy {
		t.Errorf("category = %v, want Unhealthy", res.Snapshot.Classification.Category)
	}
	if res.Snapshot.Classification.Index != 130 {
		t.Errorf("index = %d, want 130", res.Snapshot.Classification.Index)
	}
	if got := ing.Stats().Accepted; got != 1 {
		t.Errorf("accepted = %d, want 1", got)
	}
	if obs.accepted != 1 {
		t.Errorf("observer accepted = %d, want 1", obs.accepted)
	}
}

func TestIngestLine_MalformedLeavesStateUnchanged(t *testing.T) {
	store := &fakeStore{}
	ing, journal, obs := newTestIngestor(store, 10)
	ing.IngestLine("MQ:200")

	res := ing.IngestLine("MQ:abc")
	if res.Outcome != Rejected {
		t.Fatalf("outcome = %v, want rejected", res.Outcome)
	}
	var pe *ParseError
	if !errors.As(res.Err, &pe) {
		t.Fatalf("err = %v, want *ParseError", res.Err)
	}
	if len(store.values) != 1 || store.values[0] != 200 {
		t.Errorf("store values = %v, want [200]", store.values)
	}
	st := ing.Stats()
	if st.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", st.Rejected)
	}
	if obs.rejected[types.EventParse] != 1 {
		t.Errorf("observer parse rejections = %d, want 1", obs.rejected[types.EventParse])
	}
	if len(journal.events) != 1 || journal.events[0].Kind != types.EventParse {
		t.Errorf("journal = %+v, want one parse event", journal.events)
	}
}

func TestIngest_RangeRejected(t *testing.T) {
	for _, code := range []int{-1, 1024, 5000} {
		store := &fakeStore{}
		ing, journal, _ := newTestIngestor(store, 10)

		res := ing.Ingest(code)
		if res.Outcome != Rejected {
			t.Fatalf("Ingest(%d) outcome = %v, want rejected", code, res.Outcome)
		}
		var re *RangeError
		if !errors.As(res.Err, &re) || re.Value != code || re.Max != 1023 {
			t.Fatalf("Ingest(%d) err = %v, want RangeError", code, res.Err)
		}
		if len(store.values) != 0 {
			t.Errorf("Ingest(%d) appended %v", code, store.values)
		}
		if len(journal.events) != 1 || journal.events[0].Value == nil || *journal.events[0].Value != code {
			t.Errorf("Ingest(%d) journal = %+v", code, journal.events)
		}
	}
}

func TestIngest_Boundaries(t *testing.T) {
	store := &fakeStore{}
	ing, _, _ := newTestIngestor(store, 10)
	for _, code := range []int{0, 1023} {
		if res := ing.Ingest(code); res.Outcome != Accepted {
			t.Errorf("Ingest(%d) = %v, want accepted", code, res.Outcome)
		}
	}
}

func TestThreshold_SignalsReconnectAndResets(t *testing.T) {
	store := &fakeStore{}
	ing, _, _ := newTestIngestor(store, 3)

	if r := ing.IngestLine("garbage"); r.Reconnect {
		t.Fatal("reconnect after 1 failure")
	}
	if r := ing.TransportFailure(errors.New("read timeout")); r.Reconnect {
		t.Fatal("reconnect after 2 failures")
	}
	r := ing.IngestLine("MQ:9999")
	if !r.Reconnect {
		t.Fatal("no reconnect after 3 consecutive failures")
	}
	if got := ing.Stats().ConsecutiveFailures; got != 0 {
		t.Errorf("consecutive after reconnect signal = %d, want 0", got)
	}
}

func TestThreshold_SuccessResetsCounter(t *testing.T) {
	store := &fakeStore{}
	ing, _, _ := newTestIngestor(store, 3)

	ing.IngestLine("bad")
	ing.IngestLine("bad")
	ing.IngestLine("MQ:100")
	if got := ing.Stats().ConsecutiveFailures; got != 0 {
		t.Fatalf("consecutive = %d, want 0", got)
	}
	if r := ing.IngestLine("bad"); r.Reconnect {
		t.Error("reconnect signalled after counter reset")
	}
}

func TestTransportFailure_WrapsPlainErrors(t *testing.T) {
	store := &fakeStore{}
	ing, journal, obs := newTestIngestor(store, 10)
	cause := errors.New("device unplugged")

	res := ing.TransportFailure(cause)
	var te *TransportError
	if !errors.As(res.Err, &te) {
		t.Fatalf("err = %v, want *TransportError", res.Err)
	}
	if !errors.Is(res.Err, cause) {
		t.Error("TransportError does not unwrap to the cause")
	}
	if obs.transport != 1 || ing.Stats().TransportErrors != 1 {
		t.Errorf("transport counters = %d/%d, want 1/1", obs.transport, ing.Stats().TransportErrors)
	}
	if len(journal.events) != 1 || journal.events[0].Kind != types.EventTransport {
		t.Errorf("journal = %+v", journal.events)
	}
}

func TestReconnected_Recorded(t *testing.T) {
	ing, journal, obs := newTestIngestor(&fakeStore{}, 10)
	ing.Reconnected(nil)
	ing.Reconnected(errors.New("no port"))

	if ing.Stats().Reconnects != 2 || obs.reconnects != 2 {
		t.Errorf("reconnects = %d/%d, want 2/2", ing.Stats().Reconnects, obs.reconnects)
	}
	if len(journal.events) != 2 || journal.events[1].Detail != "reconnect failed: no port" {
		t.Errorf("journal = %+v", journal.events)
	}
}

func TestJournalErrorIsNotFatal(t *testing.T) {
	store := &fakeStore{}
	ing, journal, _ := newTestIngestor(store, 10)
	journal.err = errors.New("disk full")

	res := ing.IngestLine("nope")
	if res.Outcome != Rejected {
		t.Fatalf("outcome = %v, want rejected", res.Outcome)
	}
	if res := ing.IngestLine("MQ:10"); res.Outcome != Accepted {
		t.Fatalf("outcome after journal error = %v", res.Outcome)
	}
}
