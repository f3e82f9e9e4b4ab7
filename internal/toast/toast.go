// Package toast реализует очередь коротких уведомлений с автоматическим скрытием.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/metrics"
)

const (
	defaultVisibleFor = 3 * time.Second
	defaultExitDelay  = 300 * time.Millisecond
)

// Toast — снимок уведомления для отрисовки.
type Toast struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Kind      domain.ToastKind `json:"kind"`
	Icon      string           `json:"icon"`
	Leaving   bool             `json:"leaving"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Icon возвращает значок для типа уведомления.
func Icon(kind domain.ToastKind) string {
	switch kind {
	case domain.ToastSuccess:
		return "✓"
	case domain.ToastError:
		return "✕"
	default:
		return "ℹ"
	}
}

// Options задаёт параметры очереди.
type Options struct {
	Logger     *log.Entry
	Metrics    *metrics.StorefrontMetrics
	VisibleFor time.Duration
	ExitDelay  time.Duration
}

// Option настраивает Queue.
type Option func(*Options)

// WithLogger задаёт logger очереди.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics включает учёт показанных уведомлений.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithVisibleFor задаёт время показа до начала анимации скрытия.
func WithVisibleFor(d time.Duration) Option {
	return func(o *Options) { o.VisibleFor = d }
}

// WithExitDelay задаёт длительность анимации скрытия.
func WithExitDelay(d time.Duration) Option {
	return func(o *Options) { o.ExitDelay = d }
}

type entry struct {
	toast Toast
	timer *time.Timer
}

// Queue хранит видимые уведомления. Каждое уведомление удаляется по таймеру,
// который можно отменить через Dismiss или Close.
type Queue struct {
	mu         sync.Mutex
	entries    []*entry
	closed     bool
	visibleFor time.Duration
	exitDelay  time.Duration
	logger     *log.Entry
	metrics    *metrics.StorefrontMetrics
}

// NewQueue создаёт очередь уведомлений.
func NewQueue(options ...Option) *Queue {
	opts := Options{
		VisibleFor: defaultVisibleFor,
		ExitDelay:  defaultExitDelay,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "toast")
	}
	if opts.VisibleFor <= 0 {
		opts.VisibleFor = defaultVisibleFor
	}
	if opts.ExitDelay < 0 {
		opts.ExitDelay = 0
	}

	return &Queue{
		visibleFor: opts.VisibleFor,
		exitDelay:  opts.ExitDelay,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Show добавляет уведомление и планирует его скрытие.
func (q *Queue) Show(message string, kind domain.ToastKind) Toast {
	switch kind {
	case domain.ToastSuccess, domain.ToastError, domain.ToastInfo:
	default:
		kind = domain.ToastInfo
	}

	t := Toast{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		Icon:      Icon(kind),
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.WithField("message", message).Debug("toast queue is closed, dropping toast")
		return t
	}

	e := &entry{toast: t}
	e.timer = time.AfterFunc(q.visibleFor, func() { q.beginExit(t.ID) })
	q.entries = append(q.entries, e)
	q.metrics.RecordToast(string(kind))

	q.logger.WithFields(log.Fields{
		"toast_id": t.ID,
		"kind":     kind,
	}).Debug("toast shown")
	return t
}

// Success показывает уведомление об успехе.
func (q *Queue) Success(message string) { q.Show(message, domain.ToastSuccess) }

// Error показывает уведомление об ошибке.
func (q *Queue) Error(message string) { q.Show(message, domain.ToastError) }

// Info показывает информационное уведомление.
func (q *Queue) Info(message string) { q.Show(message, domain.ToastInfo) }

// Active возвращает снимок видимых уведомлений в порядке появления.
func (q *Queue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]Toast, 0, len(q.entries))
	for _, e := range q.entries {
		result = append(result, e.toast)
	}
	return result
}

// Dismiss отменяет запланированные таймеры и сразу убирает уведомление.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOf(id)
	if idx < 0 {
		return false
	}
	q.entries[idx].timer.Stop()
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	return true
}

// Close отменяет все таймеры и очищает очередь. Последующие Show не сохраняются.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		e.timer.Stop()
	}
	q.entries = nil
	q.closed = true
}

func (q *Queue) beginExit(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOf(id)
	if idx < 0 {
		return
	}
	e := q.entries[idx]
	e.toast.Leaving = true
	e.timer = time.AfterFunc(q.exitDelay, func() { q.remove(id) })
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if idx := q.indexOf(id); idx >= 0 {
		q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	}
}

// indexOf вызывается под q.mu.
func (q *Queue) indexOf(id string) int {
	for i, e := range q.entries {
		if e.toast.ID == id {
			return i
		}
	}
	return -1
}

var _ domain.Notifier = (*Queue)(nil)
