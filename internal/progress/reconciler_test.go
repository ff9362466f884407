package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/pkg/errors"
)

const testInterval = 10 * time.Millisecond

type fakeSource struct {
	mu        sync.Mutex
	status    string
	statusErr error
	counts    map[model.ItemStatus]int
	countErr  map[model.ItemStatus]error
	polls     int
	batches   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		status:   "PENDING",
		counts:   map[model.ItemStatus]int{},
		countErr: map[model.ItemStatus]error{},
	}
}

func (f *fakeSource) GetBatchStatus(ctx context.Context, batchID string) (model.ProgressSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	f.batches = append(f.batches, batchID)
	if f.statusErr != nil {
		return model.ProgressSnapshot{}, f.statusErr
	}
	return model.ProgressSnapshot{Status: f.status, TotalItems: 10}, nil
}

func (f *fakeSource) CountBatchItems(ctx context.Context, batchID string, status model.ItemStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.countErr[status]; err != nil {
		return 0, err
	}
	return f.counts[status], nil
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeStream struct {
	snaps  chan model.ProgressSnapshot
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Next(ctx context.Context) (model.ProgressSnapshot, error) {
	select {
	case <-ctx.Done():
		return model.ProgressSnapshot{}, ctx.Err()
	case snap := <-s.snaps:
		return snap, nil
	case err := <-s.errs:
		return model.ProgressSnapshot{}, err
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	streams []*fakeStream
	opened  chan *fakeStream
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{opened: make(chan *fakeStream, 4)}
}

func (o *fakeOpener) OpenProgressStream(ctx context.Context, batchID string) (Stream, error) {
	s := &fakeStream{
		snaps:  make(chan model.ProgressSnapshot),
		errs:   make(chan error),
		closed: make(chan struct{}),
	}
	o.mu.Lock()
	o.streams = append(o.streams, s)
	o.mu.Unlock()
	o.opened <- s
	return s, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func effectiveIs(h *Handle, source model.SnapshotSource, status string) func() bool {
	return func() bool {
		snap, ok := h.Effective()
		return ok && snap.Source == source && snap.Status == status
	}
}

func TestHandle_PollPopulatesCounts(t *testing.T) {
	source := newFakeSource()
	source.counts[model.ItemSuccess] = 7
	source.counts[model.ItemError] = 2

	h := NewReconciler(source, nil, testInterval).Start(context.Background(), Session{BatchID: "b-1"})
	defer h.Stop()

	waitFor(t, "first poll", effectiveIs(h, model.SourcePoll, "PENDING"))

	snap, _ := h.Effective()
	if snap.BatchID != "b-1" {
		t.Fatalf("expected batch id b-1, got %q", snap.BatchID)
	}
	if snap.StatusCounts["SUCCESS"] != 7 || snap.StatusCounts["ERROR"] != 2 || len(snap.StatusCounts) != 5 {
		t.Fatalf("unexpected counts %v", snap.StatusCounts)
	}
}

func TestHandle_FailedCountKeepsPreviousValue(t *testing.T) {
	source := newFakeSource()
	source.counts[model.ItemPending] = 3

	h := NewReconciler(source, nil, testInterval).Start(context.Background(), Session{BatchID: "b-1"})
	defer h.Stop()

	waitFor(t, "first poll", effectiveIs(h, model.SourcePoll, "PENDING"))

	source.set(func(f *fakeSource) {
		f.countErr[model.ItemPending] = errors.New("timeout")
		f.counts[model.ItemSuccess] = 4
		f.status = "VALIDATING"
	})
	waitFor(t, "poll after count failure", func() bool {
		snap, ok := h.Effective()
		return ok && snap.Status == "VALIDATING" && snap.StatusCounts["SUCCESS"] == 4
	})

	snap, _ := h.Effective()
	if snap.StatusCounts["PENDING"] != 3 {
		t.Fatalf("failed count should keep previous value, got %d", snap.StatusCounts["PENDING"])
	}
}

func TestHandle_FailedStatusSkipsTick(t *testing.T) {
	source := newFakeSource()
	source.statusErr = errors.New("unavailable")

	h := NewReconciler(source, nil, testInterval).Start(context.Background(), Session{BatchID: "b-1"})
	defer h.Stop()

	waitFor(t, "several polls", func() bool { return source.pollCount() >= 3 })
	if _, ok := h.Effective(); ok {
		t.Fatalf("no snapshot expected while status polls fail")
	}
}

func TestHandle_StreamTakesPrecedenceThenFallsBack(t *testing.T) {
	source := newFakeSource()
	source.status = "POLL"
	opener := newFakeOpener()

	h := NewReconciler(source, opener, testInterval).Start(context.Background(), Session{BatchID: "b-1", StreamEnabled: true})
	defer h.Stop()

	stream := <-opener.opened
	stream.snaps <- model.ProgressSnapshot{Status: "STREAM", TotalItems: 10, NewCount: 4}
	waitFor(t, "stream snapshot", effectiveIs(h, model.SourceStream, "STREAM"))

	// Later polls must not overwrite the stream value.
	seen := source.pollCount()
	waitFor(t, "two more polls", func() bool { return source.pollCount() >= seen+2 })
	if snap, _ := h.Effective(); snap.Source != model.SourceStream || snap.NewCount != 4 {
		t.Fatalf("stale poll overwrote stream snapshot: %+v", snap)
	}

	stream.errs <- errors.New("connection reset")
	waitFor(t, "stream toggle reset", func() bool { return !h.StreamEnabled() })
	<-stream.closed

	waitFor(t, "poll takes over", effectiveIs(h, model.SourcePoll, "POLL"))
}

func TestHandle_DisableStreamReturnsToPolling(t *testing.T) {
	source := newFakeSource()
	opener := newFakeOpener()

	h := NewReconciler(source, opener, testInterval).Start(context.Background(), Session{BatchID: "b-1"})
	defer h.Stop()

	h.EnableStream()
	h.EnableStream()
	stream := <-opener.opened
	stream.snaps <- model.ProgressSnapshot{Status: "STREAM"}
	waitFor(t, "stream snapshot", effectiveIs(h, model.SourceStream, "STREAM"))

	h.DisableStream()
	select {
	case <-stream.closed:
	default:
		t.Fatalf("stream must be closed when DisableStream returns")
	}
	waitFor(t, "poll takes over", effectiveIs(h, model.SourcePoll, "PENDING"))

	opener.mu.Lock()
	defer opener.mu.Unlock()
	if len(opener.streams) != 1 {
		t.Fatalf("second EnableStream must not open another stream, got %d", len(opener.streams))
	}
}

func TestHandle_EnableStreamWithoutTransport(t *testing.T) {
	h := NewReconciler(newFakeSource(), nil, testInterval).Start(context.Background(), Session{BatchID: "b-1", StreamEnabled: true})
	defer h.Stop()

	if h.StreamEnabled() {
		t.Fatalf("stream cannot be enabled without a transport")
	}
}

func TestHandle_StopEndsPollingAndClosesUpdates(t *testing.T) {
	source := newFakeSource()
	h := NewReconciler(source, newFakeOpener(), testInterval).Start(context.Background(), Session{BatchID: "b-1", StreamEnabled: true})

	waitFor(t, "first poll", func() bool { return source.pollCount() >= 1 })
	h.Stop()
	h.Stop()

	stopped := source.pollCount()
	time.Sleep(5 * testInterval)
	if source.pollCount() != stopped {
		t.Fatalf("polling continued after Stop")
	}
	if h.StreamEnabled() {
		t.Fatalf("stream should be off after Stop")
	}

	for range h.Updates() {
	}
}

func TestHandle_UpdatesKeepLatest(t *testing.T) {
	source := newFakeSource()
	h := NewReconciler(source, nil, testInterval).Start(context.Background(), Session{BatchID: "b-1"})
	defer h.Stop()

	waitFor(t, "several polls", func() bool { return source.pollCount() >= 3 })
	source.set(func(f *fakeSource) { f.status = "COMMITTED" })
	waitFor(t, "committed", effectiveIs(h, model.SourcePoll, "COMMITTED"))

	select {
	case snap := <-h.Updates():
		if snap.BatchID != "b-1" {
			t.Fatalf("unexpected update %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a pending update")
	}
}

func TestMonitor_SelectSwitchesBatches(t *testing.T) {
	source := newFakeSource()
	m := NewMonitor(context.Background(), NewReconciler(source, nil, testInterval))

	first := m.Select(Session{BatchID: "b-1"})
	waitFor(t, "b-1 polled", func() bool { return source.pollCount() >= 1 })

	second := m.Select(Session{BatchID: "b-2"})
	if first == second || m.Current() != second {
		t.Fatalf("expected a new handle for b-2")
	}
	source.set(func(f *fakeSource) { f.batches = nil })
	seen := source.pollCount()

	waitFor(t, "b-2 polled twice", func() bool { return source.pollCount() >= seen+2 })
	source.set(func(f *fakeSource) {
		for _, id := range f.batches {
			if id != "b-2" {
				t.Errorf("poll for %s after switching to b-2", id)
			}
		}
	})

	if again := m.Select(Session{BatchID: "b-2"}); again != second {
		t.Fatalf("reselecting the same batch should keep the handle")
	}

	m.Clear()
	if m.Current() != nil {
		t.Fatalf("Clear should drop the handle")
	}
	stopped := source.pollCount()
	time.Sleep(5 * testInterval)
	if source.pollCount() != stopped {
		t.Fatalf("polling continued after Clear")
	}
}
