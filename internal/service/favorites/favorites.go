// Package favorites хранит упорядоченные множества ID сохранённых ресторанов и блюд.
package favorites

import (
	"context"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
	"github.com/vladislavdragonenkov/digidine/internal/storage/collection"
)

// IDSet — список ID без повторов в порядке добавления.
type IDSet struct {
	ids    *collection.Collection[string]
	logger *log.Entry
}

// NewIDSet создаёт множество под произвольным ключом.
func NewIDSet(store storage.Store, key string, logger *log.Entry) *IDSet {
	if logger == nil {
		logger = log.WithField("component", "favorites")
	}
	return &IDSet{
		ids:    collection.New[string](store, key, collection.WithLogger(logger)),
		logger: logger,
	}
}

// NewRestaurants возвращает набор сохранённых ресторанов.
func NewRestaurants(store storage.Store, logger *log.Entry) *IDSet {
	return NewIDSet(store, domain.KeySavedRestaurants, logger)
}

// NewDishes возвращает набор сохранённых блюд.
func NewDishes(store storage.Store, logger *log.Entry) *IDSet {
	return NewIDSet(store, domain.KeySavedDishes, logger)
}

// Get возвращает сохранённые ID.
func (s *IDSet) Get(ctx context.Context) ([]string, error) {
	return s.ids.Read(ctx)
}

// Add добавляет ID в конец, если его ещё нет.
func (s *IDSet) Add(ctx context.Context, id string) ([]string, error) {
	if id == "" {
		return nil, domain.ErrSavedIDRequired
	}
	ids, err := s.ids.Update(ctx, func(ids []string) ([]string, error) {
		if slices.Contains(ids, id) {
			return nil, collection.ErrSkipWrite
		}
		return append(ids, id), nil
	})
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", s.ids.Key(), err)
	}
	return ids, nil
}

// Remove удаляет ID.
func (s *IDSet) Remove(ctx context.Context, id string) ([]string, error) {
	ids, err := s.ids.Update(ctx, func(ids []string) ([]string, error) {
		if !slices.Contains(ids, id) {
			return nil, collection.ErrSkipWrite
		}
		return slices.DeleteFunc(ids, func(v string) bool { return v == id }), nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove from %s: %w", s.ids.Key(), err)
	}
	return ids, nil
}

// IsSaved проверяет наличие ID.
func (s *IDSet) IsSaved(ctx context.Context, id string) (bool, error) {
	ids, err := s.ids.Read(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, id), nil
}

// Toggle сохраняет отсутствующий ID или удаляет присутствующий. Возвращает новое состояние.
func (s *IDSet) Toggle(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, domain.ErrSavedIDRequired
	}
	var saved bool
	_, err := s.ids.Update(ctx, func(ids []string) ([]string, error) {
		if slices.Contains(ids, id) {
			saved = false
			return slices.DeleteFunc(ids, func(v string) bool { return v == id }), nil
		}
		saved = true
		return append(ids, id), nil
	})
	if err != nil {
		return false, fmt.Errorf("toggle %s: %w", s.ids.Key(), err)
	}
	s.logger.WithFields(log.Fields{"key": s.ids.Key(), "id": id, "saved": saved}).Debug("favorite toggled")
	return saved, nil
}
