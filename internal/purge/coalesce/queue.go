// Package coalesce batches selective purge URLs over a short window.
package coalesce

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/purge/metrics"
)

// MaxFilesPerPurge is the provider's limit on files per purge call
const MaxFilesPerPurge = 30

// FlushFunc sends one purge call for at most MaxFilesPerPurge URLs.
type FlushFunc func(ctx context.Context, urls []string) bool

// Queue collects URLs for window after the first Add, then flushes them
// deduplicated and split into chunks.
type Queue struct {
	window  time.Duration
	flush   FlushFunc
	metrics metrics.Recorder
	logger  *zap.Logger

	mu      sync.Mutex
	seen    map[uint64]struct{}
	pending []string
	timer   *time.Timer
	closed  bool

	// serializes flushes so chunks of one window are sent in order
	flushMu sync.Mutex

	// bounds window flushes; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc
}

func NewQueue(window time.Duration, flush FlushFunc, recorder metrics.Recorder, logger *zap.Logger) *Queue {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		window:  window,
		flush:   flush,
		metrics: recorder,
		logger:  logger,
		seen:    make(map[uint64]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add buffers urls. After Close the urls are flushed immediately under ctx.
func (q *Queue) Add(ctx context.Context, urls []string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.send(ctx, dedupe(urls))
		return
	}

	for _, u := range urls {
		h := xxhash.Sum64String(u)
		if _, dup := q.seen[h]; dup {
			continue
		}
		q.seen[h] = struct{}{}
		q.pending = append(q.pending, u)
	}
	q.metrics.SetCoalescePending(len(q.pending))

	if q.timer == nil && len(q.pending) > 0 {
		q.timer = time.AfterFunc(q.window, q.Flush)
	}
	q.mu.Unlock()
}

// Pending returns the number of buffered URLs.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush sends everything buffered now.
func (q *Queue) Flush() {
	q.send(q.ctx, q.take())
}

func (q *Queue) take() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	urls := q.pending
	q.pending = nil
	q.seen = make(map[uint64]struct{})
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.metrics.SetCoalescePending(0)
	return urls
}

// Close flushes pending URLs under ctx; later Adds bypass the buffer. When ctx
// ends, window flushes still in flight are cancelled as well.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	stop := context.AfterFunc(ctx, q.cancel)
	defer stop()
	defer q.cancel()

	q.send(ctx, q.take())
	return ctx.Err()
}

func (q *Queue) send(ctx context.Context, urls []string) {
	if len(urls) == 0 {
		return
	}

	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	chunks := 0
	failed := 0
	for start := 0; start < len(urls); start += MaxFilesPerPurge {
		end := min(start+MaxFilesPerPurge, len(urls))
		chunks++
		if !q.flush(ctx, urls[start:end]) {
			failed++
		}
	}

	q.logger.Debug("Coalesced purge flushed",
		zap.Int("urls", len(urls)),
		zap.Int("chunks", chunks),
		zap.Int("failed_chunks", failed))
}

func dedupe(urls []string) []string {
	seen := make(map[uint64]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		h := xxhash.Sum64String(u)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, u)
	}
	return out
}
