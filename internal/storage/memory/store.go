package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
)

type entry struct {
	value    []byte
	revision int64
}

// storeInMemory — in-memory реализация storage.Store для локальной разработки и тестов.
type storeInMemory struct {
	mu      sync.RWMutex
	origin  string
	items   map[string]entry
	lastRev int64
}

// NewStore возвращает пустое in-memory хранилище для origin.
func NewStore(origin string) storage.Store {
	if origin == "" {
		origin = storage.DefaultOrigin
	}
	return &storeInMemory{
		origin: origin,
		items:  make(map[string]entry),
	}
}

func (s *storeInMemory) scoped(key string) string {
	return s.origin + "\x00" + key
}

// Get возвращает копию значения или storage.ErrKeyNotFound.
func (s *storeInMemory) Get(_ context.Context, key string) (storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[s.scoped(key)]
	if !ok {
		return storage.Entry{}, storage.ErrKeyNotFound
	}
	return storage.Entry{Value: clone(e.value), Revision: e.revision}, nil
}

// Set перезаписывает значение без проверки ревизии.
func (s *storeInMemory) Set(_ context.Context, key string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(key, value), nil
}

// CompareAndSet записывает значение, только если текущая ревизия равна revision.
func (s *storeInMemory) CompareAndSet(_ context.Context, key string, value []byte, revision int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[s.scoped(key)]
	switch {
	case !ok && revision != 0:
		return 0, domain.ErrRevisionConflict
	case ok && current.revision != revision:
		return 0, domain.ErrRevisionConflict
	}
	return s.put(key, value), nil
}

// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
func (s *storeInMemory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, s.scoped(key))
	return nil
}

func (s *storeInMemory) Ping(context.Context) error { return nil }

func (s *storeInMemory) Close() error { return nil }

// put вызывается под s.mu. Ревизии глобально монотонны, поэтому
// пересозданный после удаления ключ не повторяет старую ревизию.
func (s *storeInMemory) put(key string, value []byte) int64 {
	s.lastRev++
	s.items[s.scoped(key)] = entry{value: clone(value), revision: s.lastRev}
	return s.lastRev
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ storage.Store = (*storeInMemory)(nil)
