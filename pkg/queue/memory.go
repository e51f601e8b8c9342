package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ChainCast/pkg/logger"
)

// MemoryQueue is an in-process queue with the same job contract as the
// Redis queue. Training jobs run here by default: they mutate in-memory
// model state, so the work is bound to this node anyway.
type MemoryQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	jobs      map[string]Job
	ch        chan Message
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewMemoryQueue creates an in-process queue.
func NewMemoryQueue(lgr *logger.Logger, config *QueueConfig) *MemoryQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		logger: lgr,
		config: config,
		jobs:   make(map[string]Job),
		ch:     make(chan Message, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJobs registers multiple jobs.
func (q *MemoryQueue) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		q.RegisterJob(job)
	}
}

// RegisterJob registers a single job.
func (q *MemoryQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.Type()]; exists {
		q.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
	q.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start starts the queue workers.
func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return fmt.Errorf("queue already running")
	}
	q.isRunning = true

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("memory queue started", logger.Int("workers", q.config.Workers))
	return nil
}

// Stop drains running work and shuts the queue down.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.cancel()
	q.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		q.logger.Info("memory queue stopped")
		return nil
	}
}

// Enqueue adds a message. It never blocks: a full queue rejects the
// message so callers on the hot path stay responsive.
func (q *MemoryQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.isRunning {
		return fmt.Errorf("queue not running")
	}
	if _, exists := q.jobs[msgType]; !exists {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg := Message{
		ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return fmt.Errorf("queue full, dropped %s", msgType)
	}
}

// PublishMessage publishes a message (implements QueueService).
func (q *MemoryQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return q.Enqueue(ctx, msgType, payload)
}

func (q *MemoryQueue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.ch:
			q.processMessage(msg)
		}
	}
}

func (q *MemoryQueue) processMessage(msg Message) {
	q.mu.RLock()
	job, exists := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !exists {
		q.logger.Error("no job found", logger.String("type", msg.Type))
		return
	}

	start := time.Now()
	err := job.Handle(q.ctx, msg.Payload)
	elapsed := time.Since(start)
	if err == nil {
		return
	}

	q.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Int64("elapsed_ms", elapsed.Milliseconds()),
		logger.Error(err))

	if msg.Attempts < q.config.RetryLimit {
		msg.Attempts++
		retry := msg
		time.AfterFunc(q.config.RetryDelay, func() {
			select {
			case q.ch <- retry:
			default:
				q.logger.Error("retry dropped, queue full", logger.String("id", retry.ID))
			}
		})
	}
}
