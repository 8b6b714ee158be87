// Package worker provides an asynchronous worker pool that applies record
// mutation events to the vector index.
//
// Events are routed to a worker by their record key, so the events of one
// record are applied in the order they were received while unrelated records
// are indexed concurrently.
package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/eventstream"
	"github.com/papercomputeco/vecindex/pkg/indexer"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool closed")

// Indexer is the part of the index service the pool drives.
type Indexer interface {
	IndexRecord(ctx context.Context, ref indexer.RecordRef) (indexer.Outcome, error)
	DeleteRecord(ctx context.Context, ref indexer.RecordRef) error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Indexer applies the events.
	Indexer Indexer

	// Gate decides whether events may touch the index. It is consulted when
	// an event is applied, not when it is queued. A nil Gate lets every
	// event through.
	Gate *eventstream.Gate

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of each worker's queue (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool applies mutation events asynchronously.
type Pool struct {
	config *Config
	queues []chan *eventstream.RecordEvent
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Indexer == nil {
		return nil, errors.New("worker pool requires an indexer")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queues: make([]chan *eventstream.RecordEvent, c.NumWorkers),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		wp.queues[i] = make(chan *eventstream.RecordEvent, c.QueueSize)
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits an event without blocking.
// Returns true if enqueued, false if the event is invalid, the worker's queue
// is full or the pool is closed, resulting in the event being dropped.
func (p *Pool) Enqueue(event *eventstream.RecordEvent) bool {
	if err := event.Validate(); err != nil {
		p.logger.Warn("event not queued, invalid", zap.Error(err))
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queueFor(event) <- event:
		p.logger.Debug("event queued", eventFields(event)...)
		return true
	default:
		p.logger.Error("event not queued, queue full, event dropped", eventFields(event)...)
		return false
	}
}

// Handle submits an event, waiting for room in the worker's queue until ctx
// is done. It satisfies eventstream.Handler so a Subscriber can feed the
// pool directly and get backpressure instead of drops.
func (p *Pool) Handle(ctx context.Context, event *eventstream.RecordEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queueFor(event) <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals workers to stop and waits for queued events to drain.
// Call this after the subscriber and HTTP server have stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) queueFor(event *eventstream.RecordEvent) chan *eventstream.RecordEvent {
	h := fnv.New32a()
	_, _ = h.Write([]byte(event.Key()))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

// worker is the inner worker thread that continuously pulls events off its queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for event := range p.queues[id] {
		p.apply(context.Background(), event)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

// apply runs one event against the indexer. Failures are logged; the index
// heals on the next event for the record, a reindex or search.
func (p *Pool) apply(ctx context.Context, event *eventstream.RecordEvent) {
	if p.config.Gate != nil && !p.config.Gate.Enabled() {
		p.logger.Debug("automatic indexing disabled, event skipped", eventFields(event)...)
		return
	}

	ref := indexer.RecordRef{
		EntityID:       event.EntityID,
		RecordID:       event.RecordID,
		TenantID:       event.TenantID,
		OrganizationID: event.OrganizationID,
	}

	switch event.EventType {
	case eventstream.EventTypeDeleted:
		if err := p.config.Indexer.DeleteRecord(ctx, ref); err != nil {
			p.logger.Warn("deleting document failed", append(eventFields(event), zap.Error(err))...)
			return
		}
		p.logger.Debug("document deleted", eventFields(event)...)
	default:
		outcome, err := p.config.Indexer.IndexRecord(ctx, ref)
		if err != nil {
			p.logger.Warn("indexing record failed", append(eventFields(event), zap.Error(err))...)
			return
		}
		p.logger.Debug("record applied", append(eventFields(event), zap.String("outcome", string(outcome)))...)
	}
}

func eventFields(event *eventstream.RecordEvent) []zap.Field {
	return []zap.Field{
		zap.String("event_type", event.EventType),
		zap.String("entity_id", event.EntityID),
		zap.String("record_id", event.RecordID),
	}
}

var _ eventstream.Handler = (*Pool)(nil).Handle
