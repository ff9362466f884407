package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/model"
	"school-identity-onboarding/pkg/errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// StatusSource answers the periodic poll.
type StatusSource interface {
	GetBatchStatus(ctx context.Context, batchID string) (model.ProgressSnapshot, error)
	CountBatchItems(ctx context.Context, batchID string, status model.ItemStatus) (int, error)
}

// Stream is an open push channel of snapshots for one batch.
type Stream interface {
	Next(ctx context.Context) (model.ProgressSnapshot, error)
	Close() error
}

type StreamOpener interface {
	OpenProgressStream(ctx context.Context, batchID string) (Stream, error)
}

// Session describes what one view observes.
type Session struct {
	BatchID       string
	StreamEnabled bool
}

type Reconciler struct {
	source   StatusSource
	streams  StreamOpener
	interval time.Duration
	log      zerolog.Logger
}

// NewReconciler builds a reconciler polling every interval. A nil opener
// leaves progress on polling alone.
func NewReconciler(source StatusSource, streams StreamOpener, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Reconciler{
		source:   source,
		streams:  streams,
		interval: interval,
		log:      logger.Component("progress"),
	}
}

func (r *Reconciler) StreamAvailable() bool {
	return r.streams != nil
}

// Start begins observing session.BatchID until Stop is called or ctx ends.
func (r *Reconciler) Start(ctx context.Context, session Session) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		r:       r,
		batchID: session.BatchID,
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan model.ProgressSnapshot, 1),
		counts:  make(map[string]int),
		log:     r.log.With().Str("batch_id", session.BatchID).Logger(),
	}

	h.wg.Add(1)
	go h.pollLoop()

	if session.StreamEnabled {
		h.EnableStream()
	}
	return h
}

// Handle is one running observation. Effective progress is the stream
// snapshot while one is held, the poll snapshot otherwise. Snapshots are
// replaced whole, never merged field by field.
type Handle struct {
	r       *Reconciler
	batchID string
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once

	mu           sync.Mutex
	stopped      bool
	pollSnap     *model.ProgressSnapshot
	streamSnap   *model.ProgressSnapshot
	effective    *model.ProgressSnapshot
	counts       map[string]int
	streamOn     bool
	streamCancel context.CancelFunc
	streamDone   chan struct{}
	updates      chan model.ProgressSnapshot

	log zerolog.Logger
}

func (h *Handle) BatchID() string {
	return h.batchID
}

// Effective returns the current progress and false when nothing arrived yet.
func (h *Handle) Effective() (model.ProgressSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.effective == nil {
		return model.ProgressSnapshot{}, false
	}
	return h.effective.Clone(), true
}

// Updates delivers effective progress changes. Only the latest unread
// value is kept. The channel is closed by Stop.
func (h *Handle) Updates() <-chan model.ProgressSnapshot {
	return h.updates
}

func (h *Handle) StreamEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streamOn
}

// EnableStream opens the push channel. It is a no-op when already on,
// when the handle is stopped or when no stream transport is configured.
func (h *Handle) EnableStream() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || h.streamOn || h.r.streams == nil {
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	done := make(chan struct{})
	h.streamOn = true
	h.streamCancel = cancel
	h.streamDone = done

	h.wg.Add(1)
	go h.streamLoop(ctx, done)
}

// DisableStream closes the push channel and waits for it to be released.
// Effective progress returns to polling on the next tick.
func (h *Handle) DisableStream() {
	h.mu.Lock()
	if !h.streamOn {
		h.mu.Unlock()
		return
	}
	cancel, done := h.streamCancel, h.streamDone
	h.streamOn = false
	h.streamSnap = nil
	h.streamCancel = nil
	h.streamDone = nil
	h.mu.Unlock()

	cancel()
	<-done
}

// Stop ends polling and streaming and waits for both to exit.
func (h *Handle) Stop() {
	h.once.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.streamOn = false
		h.mu.Unlock()

		h.cancel()
		h.wg.Wait()
		close(h.updates)
		h.log.Debug().Msg("Progress observation stopped")
	})
}

func (h *Handle) pollLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.r.interval)
	defer ticker.Stop()

	h.poll()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.poll()
		}
	}
}

// poll reads the batch status plus one total per item status. A failed
// status read skips the tick; a failed count keeps its previous value.
func (h *Handle) poll() {
	ctx := h.ctx
	status, err := h.r.source.GetBatchStatus(ctx, h.batchID)
	if err != nil {
		if ctx.Err() == nil {
			h.log.Warn().Err(err).Msg("Batch status poll failed")
		}
		return
	}

	statuses := model.IdentityItemStatuses()
	totals := make([]int, len(statuses))
	fetched := make([]bool, len(statuses))

	var g errgroup.Group
	for i, st := range statuses {
		i, st := i, st
		g.Go(func() error {
			n, err := h.r.source.CountBatchItems(ctx, h.batchID, st)
			if err != nil {
				return fmt.Errorf("count %s: %w", st, err)
			}
			totals[i] = n
			fetched[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		h.log.Warn().Err(err).Msg("Item count poll failed, keeping previous totals")
	}
	if ctx.Err() != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}

	counts := make(map[string]int, len(statuses))
	for i, st := range statuses {
		key := string(st)
		if fetched[i] {
			counts[key] = totals[i]
		} else if prev, ok := h.counts[key]; ok {
			counts[key] = prev
		}
	}
	h.counts = counts

	snap := status.Clone()
	if snap.BatchID == "" {
		snap.BatchID = h.batchID
	}
	snap.StatusCounts = make(map[string]int, len(counts))
	for k, v := range counts {
		snap.StatusCounts[k] = v
	}
	snap.Source = model.SourcePoll
	snap.ReceivedAt = time.Now().UTC()

	h.pollSnap = &snap
	h.reconcileLocked()
}

func (h *Handle) streamLoop(ctx context.Context, done chan struct{}) {
	defer h.wg.Done()
	defer close(done)

	stream, err := h.r.streams.OpenProgressStream(ctx, h.batchID)
	if err != nil {
		if ctx.Err() == nil {
			h.streamFailed(done, errors.StreamTransportError{BatchID: h.batchID, Err: err})
		}
		return
	}
	defer stream.Close()

	h.log.Debug().Msg("Progress stream enabled")
	for {
		snap, err := stream.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			h.streamFailed(done, errors.StreamTransportError{BatchID: h.batchID, Err: err})
			return
		}

		snap = snap.Clone()
		if snap.BatchID == "" {
			snap.BatchID = h.batchID
		}
		snap.Source = model.SourceStream
		snap.ReceivedAt = time.Now().UTC()

		h.mu.Lock()
		if h.stopped || h.streamDone != done {
			h.mu.Unlock()
			return
		}
		h.streamSnap = &snap
		h.reconcileLocked()
		h.mu.Unlock()
	}
}

// streamFailed drops the stream snapshot and resets the toggle. The
// effective value is left alone so the next poll takes over.
func (h *Handle) streamFailed(done chan struct{}, err error) {
	h.log.Warn().Err(err).Msg("Progress stream lost, falling back to polling")

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streamDone != done {
		return
	}
	h.streamOn = false
	h.streamSnap = nil
	h.streamCancel = nil
	h.streamDone = nil
}

func (h *Handle) reconcileLocked() {
	next := h.streamSnap
	if next == nil {
		next = h.pollSnap
	}
	if next == nil || next == h.effective {
		return
	}
	h.effective = next

	select {
	case <-h.updates:
	default:
	}
	h.updates <- next.Clone()
}
