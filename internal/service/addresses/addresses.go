// Package addresses хранит адреса доставки под ключом "saved-addresses".
package addresses

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/idgen"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
	"github.com/vladislavdragonenkov/digidine/internal/storage/collection"
)

// Service управляет сохранёнными адресами.
type Service struct {
	addresses *collection.Collection[domain.SavedAddress]
	ids       *idgen.Generator
	logger    *log.Entry
}

// NewService создаёт сервис адресов. ids и logger могут быть nil.
func NewService(store storage.Store, ids *idgen.Generator, logger *log.Entry) *Service {
	if ids == nil {
		ids = idgen.New()
	}
	if logger == nil {
		logger = log.WithField("component", "addresses")
	}
	return &Service{
		addresses: collection.New[domain.SavedAddress](store, domain.KeySavedAddresses, collection.WithLogger(logger)),
		ids:       ids,
		logger:    logger,
	}
}

// Get возвращает адреса в порядке добавления.
func (s *Service) Get(ctx context.Context) ([]domain.SavedAddress, error) {
	return s.addresses.Read(ctx)
}

// Add сохраняет адрес, присваивая ему ID и createdAt.
func (s *Service) Add(ctx context.Context, address domain.SavedAddress) (domain.SavedAddress, error) {
	if strings.TrimSpace(address.Address) == "" {
		return domain.SavedAddress{}, domain.ErrAddressRequired
	}
	address.CreatedAt = s.ids.Now()

	if _, err := s.addresses.Update(ctx, func(items []domain.SavedAddress) ([]domain.SavedAddress, error) {
		var highest int64
		for _, item := range items {
			highest = max(highest, item.ID)
		}
		address.ID = s.ids.NextAfter(highest)
		return append(items, address), nil
	}); err != nil {
		return domain.SavedAddress{}, fmt.Errorf("add address: %w", err)
	}

	s.logger.WithField("address_id", address.ID).Debug("address saved")
	return address, nil
}

// Remove удаляет адрес по ID. Неизвестный ID ничего не меняет.
func (s *Service) Remove(ctx context.Context, addressID int64) ([]domain.SavedAddress, error) {
	items, err := s.addresses.Update(ctx, func(items []domain.SavedAddress) ([]domain.SavedAddress, error) {
		filtered := make([]domain.SavedAddress, 0, len(items))
		for _, item := range items {
			if item.ID != addressID {
				filtered = append(filtered, item)
			}
		}
		if len(filtered) == len(items) {
			return nil, collection.ErrSkipWrite
		}
		return filtered, nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove address: %w", err)
	}
	return items, nil
}
