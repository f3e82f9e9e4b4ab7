// Package collection хранит типизированные JSON-массивы под ключами storage.Store.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
)

const defaultMaxAttempts = 5

// ErrSkipWrite возвращается из функции Update, когда изменений нет и запись не нужна.
var ErrSkipWrite = errors.New("collection: skip write")

// Collection — JSON-массив элементов T под одним ключом.
type Collection[T any] struct {
	store       storage.Store
	key         string
	logger      *log.Entry
	maxAttempts int
}

// Option настраивает Collection.
type Option func(*options)

type options struct {
	logger      *log.Entry
	maxAttempts int
}

// WithLogger задаёт logger коллекции.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxAttempts ограничивает число попыток compare-and-swap в Update.
func WithMaxAttempts(attempts int) Option {
	return func(o *options) {
		o.maxAttempts = attempts
	}
}

// New создаёт коллекцию поверх store под ключом key.
func New[T any](store storage.Store, key string, opts ...Option) *Collection[T] {
	o := options{maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.WithField("component", "collection")
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = defaultMaxAttempts
	}
	return &Collection[T]{
		store:       store,
		key:         key,
		logger:      o.logger.WithField("key", key),
		maxAttempts: o.maxAttempts,
	}
}

// Key возвращает ключ хранилища.
func (c *Collection[T]) Key() string {
	return c.key
}

// Read возвращает сохранённые элементы. Отсутствующий ключ и битый JSON дают пустой срез.
func (c *Collection[T]) Read(ctx context.Context) ([]T, error) {
	items, _, err := c.load(ctx)
	return items, err
}

// Write сериализует items и заменяет значение целиком (last-write-wins).
func (c *Collection[T]) Write(ctx context.Context, items []T) error {
	data, err := encode(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	if _, err := c.store.Set(ctx, c.key, data); err != nil {
		return fmt.Errorf("write %s: %w", c.key, err)
	}
	return nil
}

// Clear удаляет ключ целиком.
func (c *Collection[T]) Clear(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("clear %s: %w", c.key, err)
	}
	return nil
}

// Update применяет fn к текущему содержимому и записывает результат через
// compare-and-swap. При конфликте ревизий чтение и fn повторяются.
// Если fn вернула ErrSkipWrite, запись пропускается и возвращается прочитанное состояние.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) ([]T, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, revision, err := c.load(ctx)
		if err != nil {
			return nil, err
		}

		next, err := fn(items)
		if errors.Is(err, ErrSkipWrite) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []T{}
		}

		data, err := encode(next)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.key, err)
		}

		_, err = c.store.CompareAndSet(ctx, c.key, data, revision)
		if err == nil {
			return next, nil
		}
		if !domain.IsRevisionConflict(err) {
			return nil, fmt.Errorf("write %s: %w", c.key, err)
		}
		c.logger.WithField("attempt", attempt).Debug("revision conflict, retrying update")
	}

	return nil, fmt.Errorf("update %s after %d attempts: %w", c.key, c.maxAttempts, domain.ErrRevisionConflict)
}

func (c *Collection[T]) load(ctx context.Context) ([]T, int64, error) {
	entry, err := c.store.Get(ctx, c.key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return []T{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", c.key, err)
	}

	items := []T{}
	if len(entry.Value) > 0 {
		if err := json.Unmarshal(entry.Value, &items); err != nil {
			c.logger.WithError(err).Debug("malformed stored value, using empty collection")
			items = []T{}
		}
	}
	if items == nil {
		items = []T{}
	}
	return items, entry.Revision, nil
}

func encode[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
