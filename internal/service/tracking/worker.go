// Package tracking продвигает заказы по шагам cooking → shipped → delivered по времени.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
)

const (
	defaultInterval         = 15 * time.Second
	defaultCookingDuration  = 10 * time.Minute
	defaultShippingDuration = 20 * time.Minute
)

var (
	trackingRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_tracking_runs_total",
		Help: "Total number of order tracking runs grouped by result.",
	}, []string{"result"})
	trackingAdvancedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_tracking_advanced_total",
		Help: "Total number of orders advanced by the tracking worker grouped by new status.",
	}, []string{"status"})
	trackingLastAdvanced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_tracking_last_advanced",
		Help: "Number of orders advanced during the last tracking run.",
	})
)

// Advancer переводит на следующий шаг заказы, для которых due вернула true.
type Advancer interface {
	AdvanceDue(ctx context.Context, due func(order domain.Order, now time.Time) bool) ([]domain.Order, error)
}

// Options задает параметры воркера.
type Options struct {
	Logger           *log.Entry
	Interval         time.Duration
	CookingDuration  time.Duration
	ShippingDuration time.Duration
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между проверками.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithCookingDuration задает, сколько заказ остается в статусе cooking.
func WithCookingDuration(d time.Duration) Option {
	return func(opts *Options) {
		opts.CookingDuration = d
	}
}

// WithShippingDuration задает, сколько заказ остается в статусе shipped.
func WithShippingDuration(d time.Duration) Option {
	return func(opts *Options) {
		opts.ShippingDuration = d
	}
}

// Worker периодически продвигает заказы, простоявшие в текущем статусе дольше заданного.
type Worker struct {
	orders   Advancer
	logger   *log.Entry
	interval time.Duration
	stay     map[domain.OrderStatus]time.Duration
}

// NewWorker создает воркер трекинга.
func NewWorker(orders Advancer, options ...Option) *Worker {
	opts := Options{
		Interval:         defaultInterval,
		CookingDuration:  defaultCookingDuration,
		ShippingDuration: defaultShippingDuration,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "tracking-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.CookingDuration < 0 {
		opts.CookingDuration = defaultCookingDuration
	}
	if opts.ShippingDuration < 0 {
		opts.ShippingDuration = defaultShippingDuration
	}

	return &Worker{
		orders:   orders,
		logger:   logger,
		interval: opts.Interval,
		stay: map[domain.OrderStatus]time.Duration{
			domain.OrderStatusCooking: opts.CookingDuration,
			domain.OrderStatusShipped: opts.ShippingDuration,
		},
	}
}

// Run запускает периодическую проверку до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.orders == nil {
		w.logger.Warn("tracking worker is disabled: orders service is nil")
		return
	}

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	advanced, err := w.AdvanceDue(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		trackingRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("order tracking run failed")
		return
	}

	trackingRunsTotal.WithLabelValues("ok").Inc()
	trackingLastAdvanced.Set(float64(len(advanced)))
	if len(advanced) > 0 {
		w.logger.WithField("advanced", len(advanced)).Info("order tracking completed")
	}
}

// AdvanceDue выполняет одну проверку и возвращает продвинутые заказы.
func (w *Worker) AdvanceDue(ctx context.Context) ([]domain.Order, error) {
	advanced, err := w.orders.AdvanceDue(ctx, w.due)
	if err != nil {
		return nil, err
	}
	for _, order := range advanced {
		trackingAdvancedTotal.WithLabelValues(string(order.Status)).Inc()
	}
	return advanced, nil
}

func (w *Worker) due(order domain.Order, now time.Time) bool {
	stay, ok := w.stay[order.Status]
	if !ok {
		return false
	}
	return now.Sub(order.UpdatedAt) >= stay
}
