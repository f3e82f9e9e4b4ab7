package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_publish_attempts_total",
		Help: "Total number of order event publish attempts from the outbox grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_pending_records",
		Help: "Current number of undelivered order events in the outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest undelivered order event.",
	})
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DeadLetter     domain.OrderEventPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDeadLetter задаёт паблишер для событий, не доставленных за MaxAttempts попыток.
func WithDeadLetter(publisher domain.OrderEventPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DeadLetter = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт число событий за один цикл.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовую задержку exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker доставляет события из Outbox в брокеры.
type Worker struct {
	outbox         *Outbox
	publisher      domain.OrderEventPublisher
	deadLetter     domain.OrderEventPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт outbox worker.
func NewWorker(outbox *Outbox, publisher domain.OrderEventPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		outbox:         outbox,
		publisher:      publisher,
		deadLetter:     opts.DeadLetter,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.outbox == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: outbox or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce доставляет до batchSize событий. Подтверждаются только доставленные
// события и события, принятые dead letter. Остальные переносятся в конец очереди
// и ждут следующего прохода. При отмене ctx обработанная часть батча всё равно фиксируется.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	records, err := w.outbox.Pending(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to read outbox")
		return
	}
	w.refreshBacklogMetrics(records)
	if len(records) == 0 {
		return
	}
	if len(records) > w.batchSize {
		records = records[:w.batchSize]
	}

	done := make([]string, 0, len(records))
	failed := make(map[string]string)
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		event := record.Event
		fields := log.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"order_id":   event.OrderID,
		}

		err := w.publishWithRetry(ctx, event)
		if err == nil {
			done = append(done, event.ID)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		w.logger.WithError(err).WithFields(fields).Error("order event publish failed after retries")
		outboxPublishAttempts.WithLabelValues("failed").Inc()

		if w.deadLetter == nil {
			failed[event.ID] = err.Error()
			outboxPublishAttempts.WithLabelValues("requeued").Inc()
			continue
		}
		if dlqErr := w.publishDeadLetter(ctx, event); dlqErr != nil {
			w.logger.WithError(dlqErr).WithFields(fields).Warn("failed to publish to dead letter, keeping event")
			outboxPublishAttempts.WithLabelValues("dlq_failed").Inc()
			failed[event.ID] = dlqErr.Error()
			continue
		}
		outboxPublishAttempts.WithLabelValues("dead_lettered").Inc()
		done = append(done, event.ID)
	}

	// Фиксация не должна зависеть от отменённого ctx, иначе доставленные события уйдут повторно.
	settleCtx := context.WithoutCancel(ctx)
	if err := w.outbox.Ack(settleCtx, done); err != nil {
		w.logger.WithError(err).WithField("count", len(done)).Warn("failed to ack outbox events")
		return
	}
	if err := w.outbox.Requeue(settleCtx, failed); err != nil {
		w.logger.WithError(err).WithField("count", len(failed)).Warn("failed to requeue outbox events")
	}

	if remaining, err := w.outbox.Pending(ctx); err == nil {
		w.refreshBacklogMetrics(remaining)
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OrderEvent) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.PublishOrderEvent(ctx, event)
		if err == nil {
			outboxPublishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		outboxPublishAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) refreshBacklogMetrics(records []Record) {
	outboxPendingRecords.Set(float64(len(records)))
	if len(records) == 0 {
		outboxOldestPendingAge.Set(0)
		return
	}

	age := time.Since(records[0].EnqueuedAt).Seconds()
	if age < 0 {
		age = 0
	}
	outboxOldestPendingAge.Set(age)
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) publishDeadLetter(ctx context.Context, event domain.OrderEvent) error {
	if err := w.deadLetter.PublishOrderEvent(ctx, event); err != nil {
		return fmt.Errorf("publish to dead letter: %w", err)
	}
	return nil
}
