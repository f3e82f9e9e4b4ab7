// Package outbox сохраняет события заказов в хранилище витрины и доставляет их в брокеры фоновым воркером.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
	"github.com/vladislavdragonenkov/digidine/internal/storage/collection"
)

// ErrFull возвращается, когда в outbox уже лежит maxPending недоставленных событий.
var ErrFull = errors.New("outbox is full")

// Record — событие, ожидающее доставки.
type Record struct {
	Event      domain.OrderEvent `json:"event"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	// Failures считает проходы воркера, в которых событие не удалось ни доставить, ни отправить в dead letter.
	Failures  int    `json:"failures,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Outbox — очередь событий под ключом domain.KeyEventOutbox. Реализует
// domain.OrderEventPublisher, поэтому подключается к заказам вместо брокера.
type Outbox struct {
	records    *collection.Collection[Record]
	maxPending int
	now        func() time.Time
}

// StoreOption настраивает Outbox.
type StoreOption func(*Outbox)

// WithMaxPending ограничивает размер очереди; 0 снимает ограничение.
func WithMaxPending(n int) StoreOption {
	return func(o *Outbox) {
		if n >= 0 {
			o.maxPending = n
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) StoreOption {
	return func(o *Outbox) {
		if now != nil {
			o.now = now
		}
	}
}

// New создаёт outbox поверх store.
func New(store storage.Store, logger *log.Entry, opts ...StoreOption) *Outbox {
	if logger == nil {
		logger = log.WithField("component", "outbox")
	}
	o := &Outbox{
		records: collection.New[Record](store, domain.KeyEventOutbox, collection.WithLogger(logger)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PublishOrderEvent ставит событие в очередь.
func (o *Outbox) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	_, err := o.records.Update(ctx, func(records []Record) ([]Record, error) {
		if o.maxPending > 0 && len(records) >= o.maxPending {
			return nil, ErrFull
		}
		return append(records, Record{Event: event, EnqueuedAt: o.now().UTC()}), nil
	})
	if err != nil {
		return fmt.Errorf("enqueue order event %s: %w", event.ID, err)
	}
	return nil
}

// Pending возвращает недоставленные события в порядке постановки.
func (o *Outbox) Pending(ctx context.Context) ([]Record, error) {
	return o.records.Read(ctx)
}

// Ack удаляет из очереди события с указанными ID.
func (o *Outbox) Ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}

	_, err := o.records.Update(ctx, func(records []Record) ([]Record, error) {
		kept := records[:0]
		for _, r := range records {
			if _, ok := done[r.Event.ID]; !ok {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(records) {
			return nil, collection.ErrSkipWrite
		}
		return kept, nil
	})
	if err != nil {
		return fmt.Errorf("ack outbox events: %w", err)
	}
	return nil
}

// Requeue переносит недоставленные события в конец очереди, увеличивая Failures
// и запоминая последнюю ошибку. События остаются в outbox до подтверждения.
func (o *Outbox) Requeue(ctx context.Context, failed map[string]string) error {
	if len(failed) == 0 {
		return nil
	}

	_, err := o.records.Update(ctx, func(records []Record) ([]Record, error) {
		kept := make([]Record, 0, len(records))
		var moved []Record
		for _, r := range records {
			reason, ok := failed[r.Event.ID]
			if !ok {
				kept = append(kept, r)
				continue
			}
			r.Failures++
			r.LastError = reason
			moved = append(moved, r)
		}
		if len(moved) == 0 {
			return nil, collection.ErrSkipWrite
		}
		return append(kept, moved...), nil
	})
	if err != nil {
		return fmt.Errorf("requeue outbox events: %w", err)
	}
	return nil
}

var _ domain.OrderEventPublisher = (*Outbox)(nil)
