package services

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/poyrazK/desecdesk/internal/core/domain"
	"github.com/poyrazK/desecdesk/internal/core/ports"
	"github.com/poyrazK/desecdesk/internal/infrastructure/fsutil"
	"github.com/poyrazK/desecdesk/internal/infrastructure/metrics"
)

const (
	// maxRetries bounds automatic retries after short rate limits.
	maxRetries = 3
	// cooldownThreshold is the advertised delay beyond which the queue
	// gives up retrying and enters cooldown instead.
	cooldownThreshold = 60 * time.Second
	// defaultHistoryLimit caps the audit trail.
	defaultHistoryLimit = 5000
)

// Callback receives a queue item's terminal state on the UI-owning
// goroutine, exactly once.
type Callback func(domain.QueueItem)

// queuedItem is the queue's internal wrapper around a QueueItem.
type queuedItem struct {
	item      domain.QueueItem
	seq       uint64
	callback  Callback
	cancelled bool
	heapIndex int // -1 while not in the pending heap
}

// itemHeap orders pending items by (priority, sequence): strict priority
// across tiers, strict FIFO within a tier.
type itemHeap []*queuedItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].item.Priority != h[j].item.Priority {
		return h[i].item.Priority < h[j].item.Priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *itemHeap) Push(x any) {
	qi := x.(*queuedItem)
	qi.heapIndex = len(*h)
	*h = append(*h, qi)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	qi := old[n-1]
	old[n-1] = nil
	qi.heapIndex = -1
	*h = old[:n-1]
	return qi
}

// Queue is the single-writer serializer for all outbound API calls. One
// background worker drains a priority queue, applies retry and cooldown
// on rate limits, and delivers terminal items through the dispatcher.
type Queue struct {
	client     ports.APIClient
	dispatcher ports.Dispatcher
	clock      ports.Clock
	logger     *slog.Logger

	mu             sync.Mutex
	cond           *sync.Cond
	pending        itemHeap
	byID           map[uint64]*queuedItem
	history        []domain.QueueItem
	historyLimit   int
	paused         bool
	closed         bool
	nextID         uint64
	nextSeq        uint64
	cancelCooldown func()

	onRateLimited func(retryAfter time.Duration)
	onChanged     func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue builds and starts the queue worker. historyLimit <= 0 uses the
// default cap.
func NewQueue(client ports.APIClient, dispatcher ports.Dispatcher, clock ports.Clock, historyLimit int) *Queue {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		client:       client,
		dispatcher:   dispatcher,
		clock:        clock,
		logger:       slog.Default(),
		byID:         make(map[uint64]*queuedItem),
		historyLimit: historyLimit,
		nextID:       1,
		ctx:          ctx,
		cancel:       cancel,
	}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(1)
	go q.worker()
	return q
}

// OnRateLimited registers the cooldown signal sink. The callback runs on
// the dispatcher.
func (q *Queue) OnRateLimited(fn func(retryAfter time.Duration)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onRateLimited = fn
}

// OnChanged registers the queue-changed signal sink.
func (q *Queue) OnChanged(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChanged = fn
}

// Handle refers to a submitted item and allows cancellation.
type Handle struct {
	q  *Queue
	id uint64
}

// ID returns the item's queue id.
func (h *Handle) ID() uint64 { return h.id }

// Cancel removes a pending item synchronously; a running item is flagged
// and reports cancelled unless its response was already classified.
func (h *Handle) Cancel() bool { return h.q.cancelItem(h.id) }

// Submit enqueues a request. The callback, if non-nil, receives the
// item's terminal state on the dispatcher.
func (q *Queue) Submit(priority domain.Priority, category, action string, req domain.Request, cb Callback) (*Handle, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("queue is closed")
	}
	id := q.nextID
	q.nextID++
	qi := &queuedItem{
		item: domain.QueueItem{
			ID:        id,
			Priority:  priority,
			Category:  category,
			Action:    action,
			Request:   req,
			CreatedAt: q.clock.Now(),
			Status:    domain.StatusPending,
		},
		seq:       q.nextSeq,
		callback:  cb,
		heapIndex: -1,
	}
	q.nextSeq++
	heap.Push(&q.pending, qi)
	q.byID[id] = qi
	metrics.QueueDepth.WithLabelValues(priority.String()).Inc()
	q.cond.Broadcast()
	q.mu.Unlock()

	q.emitChanged()
	return &Handle{q: q, id: id}, nil
}

// Pause stops dispatching. The running item, if any, completes; pending
// items stay queued and new submissions still enqueue.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.emitChanged()
}

// Resume restarts dispatching and cancels any scheduled cooldown wakeup.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	if q.cancelCooldown != nil {
		q.cancelCooldown()
		q.cancelCooldown = nil
	}
	q.cond.Broadcast()
	q.mu.Unlock()
	q.emitChanged()
}

// Paused reports whether dispatch is currently suspended.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Snapshot returns a structural copy of the pending queue (in dispatch
// order) and the history.
func (q *Queue) Snapshot() domain.QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	// The heap slice is not fully ordered; sort a copy the way the
	// worker would drain it.
	type ordered struct {
		item domain.QueueItem
		seq  uint64
	}
	pending := make([]ordered, 0, len(q.pending))
	for _, qi := range q.pending {
		pending = append(pending, ordered{item: qi.item.Clone(), seq: qi.seq})
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].item.Priority != pending[j].item.Priority {
			return pending[i].item.Priority < pending[j].item.Priority
		}
		return pending[i].seq < pending[j].seq
	})
	snap := domain.QueueSnapshot{Paused: q.paused}
	for _, o := range pending {
		snap.Pending = append(snap.Pending, o.item)
	}
	snap.History = make([]domain.QueueItem, 0, len(q.history))
	for _, it := range q.history {
		snap.History = append(snap.History, it.Clone())
	}
	return snap
}

// Close stops the worker. In-flight work is abandoned; pending items are
// not delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.cancelCooldown != nil {
		q.cancelCooldown()
		q.cancelCooldown = nil
	}
	q.cond.Broadcast()
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

// SaveHistory persists the audit trail atomically.
func (q *Queue) SaveHistory(path string) error {
	snap := q.Snapshot()
	data, err := json.MarshalIndent(snap.History, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue history: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0o600)
}

// LoadHistory restores a previously persisted audit trail. Loaded items
// count against the history cap.
func (q *Queue) LoadHistory(path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read queue history: %w", err)
	}
	var items []domain.QueueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode queue history: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.history = items
	q.truncateHistoryLocked()
	for _, it := range items {
		if it.ID >= q.nextID {
			q.nextID = it.ID + 1
		}
	}
	return nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for !q.closed && (q.paused || q.pending.Len() == 0) {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		qi := heap.Pop(&q.pending).(*queuedItem)
		metrics.QueueDepth.WithLabelValues(qi.item.Priority.String()).Dec()
		if qi.cancelled {
			q.finalizeLocked(qi, domain.StatusCancelled, nil)
			q.mu.Unlock()
			q.emitChanged()
			continue
		}
		now := q.clock.Now()
		qi.item.Status = domain.StatusRunning
		qi.item.StartedAt = &now
		q.mu.Unlock()
		q.emitChanged()

		res := q.client.Do(q.ctx, qi.item.Request)

		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if qi.cancelled {
			// The response arrived after cancellation: discard it.
			q.finalizeLocked(qi, domain.StatusCancelled, nil)
			q.mu.Unlock()
			q.emitChanged()
			continue
		}
		q.mu.Unlock()
		q.handleResult(qi, res)
	}
}

func (q *Queue) handleResult(qi *queuedItem, res domain.Result) {
	if res.Kind == domain.KindRateLimited {
		q.client.AdaptRateLimit(res.RetryAfter)
		if res.RetryAfter <= cooldownThreshold && qi.item.RetryCount < maxRetries {
			q.retry(qi, res)
			return
		}
		q.mu.Lock()
		r := res
		q.finalizeLocked(qi, domain.StatusRateLimited, &r)
		q.enterCooldownLocked(res.RetryAfter)
		q.mu.Unlock()
		q.emitChanged()
		return
	}

	status := domain.StatusFailed
	if res.OK() {
		status = domain.StatusOK
	}
	q.mu.Lock()
	r := res
	q.finalizeLocked(qi, status, &r)
	q.mu.Unlock()
	q.emitChanged()
}

// retry sleeps out the advertised delay, then re-enqueues the item at the
// same priority with a fresh sequence number (back of its tier).
func (q *Queue) retry(qi *queuedItem, res domain.Result) {
	metrics.RetriesTotal.Inc()
	q.logger.Info("rate limited, retrying",
		"item", qi.item.ID, "retry_after", res.RetryAfter, "retry_count", qi.item.RetryCount+1)
	q.clock.Sleep(q.ctx, res.RetryAfter)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if qi.cancelled {
		q.finalizeLocked(qi, domain.StatusCancelled, nil)
		q.mu.Unlock()
		q.emitChanged()
		return
	}
	qi.item.RetryCount++
	qi.item.Status = domain.StatusPending
	qi.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.pending, qi)
	metrics.QueueDepth.WithLabelValues(qi.item.Priority.String()).Inc()
	q.cond.Broadcast()
	q.mu.Unlock()
	q.emitChanged()
}

// enterCooldownLocked pauses the queue and schedules the auto-resume.
func (q *Queue) enterCooldownLocked(retryAfter time.Duration) {
	metrics.CooldownsTotal.Inc()
	q.paused = true
	if q.cancelCooldown != nil {
		q.cancelCooldown()
	}
	q.cancelCooldown = q.clock.AfterFunc(retryAfter, q.Resume)
	q.logger.Warn("entering cooldown after extended rate limit", "retry_after", retryAfter)
	if fn := q.onRateLimited; fn != nil {
		q.dispatcher.Post(func() { fn(retryAfter) })
	}
}

// finalizeLocked records the terminal state, moves the item to history
// and schedules the callback delivery.
func (q *Queue) finalizeLocked(qi *queuedItem, status domain.Status, res *domain.Result) {
	now := q.clock.Now()
	qi.item.Status = status
	qi.item.CompletedAt = &now
	qi.item.Result = res
	delete(q.byID, qi.item.ID)

	q.history = append(q.history, qi.item.Clone())
	q.truncateHistoryLocked()

	if cb := qi.callback; cb != nil {
		delivered := qi.item.Clone()
		q.dispatcher.Post(func() { cb(delivered) })
	}
}

func (q *Queue) truncateHistoryLocked() {
	if over := len(q.history) - q.historyLimit; over > 0 {
		q.history = append([]domain.QueueItem(nil), q.history[over:]...)
	}
}

func (q *Queue) cancelItem(id uint64) bool {
	q.mu.Lock()
	qi, ok := q.byID[id]
	if !ok {
		q.mu.Unlock()
		return false
	}
	if qi.heapIndex >= 0 {
		// Pending: removal is synchronous and guaranteed.
		heap.Remove(&q.pending, qi.heapIndex)
		metrics.QueueDepth.WithLabelValues(qi.item.Priority.String()).Dec()
		q.finalizeLocked(qi, domain.StatusCancelled, nil)
		q.mu.Unlock()
		q.emitChanged()
		return true
	}
	// Running or sleeping before a retry: cooperative flag.
	qi.cancelled = true
	q.mu.Unlock()
	return true
}

func (q *Queue) emitChanged() {
	q.mu.Lock()
	fn := q.onChanged
	q.mu.Unlock()
	if fn != nil {
		q.dispatcher.Post(fn)
	}
}
