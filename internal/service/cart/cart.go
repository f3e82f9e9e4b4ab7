// Package cart управляет корзиной покупателя, хранящейся под ключом "cart".
package cart

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/metrics"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
	"github.com/vladislavdragonenkov/digidine/internal/storage/collection"
)

// OrderPlacer создаёт заказ из позиций корзины.
type OrderPlacer interface {
	Add(ctx context.Context, order domain.Order) (domain.Order, error)
}

// Options задаёт зависимости сервиса корзины.
type Options struct {
	Logger  *log.Entry
	Badges  domain.BadgePublisher
	Metrics *metrics.StorefrontMetrics
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithBadgePublisher задаёт получателя обновлений счётчика корзины.
func WithBadgePublisher(badges domain.BadgePublisher) Option {
	return func(o *Options) { o.Badges = badges }
}

// WithMetrics включает метрики корзины.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// Service — операции над корзиной. Состояние целиком живёт в хранилище.
type Service struct {
	items   *collection.Collection[domain.CartItem]
	badges  domain.BadgePublisher
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
}

// NewService создаёт сервис корзины поверх store.
func NewService(store storage.Store, options ...Option) *Service {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart")
	}

	return &Service{
		items:   collection.New[domain.CartItem](store, domain.KeyCart, collection.WithLogger(logger)),
		badges:  opts.Badges,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Get возвращает позиции корзины в порядке добавления.
func (s *Service) Get(ctx context.Context) ([]domain.CartItem, error) {
	return s.items.Read(ctx)
}

// Add увеличивает количество существующей позиции на 1 или добавляет новую с quantity=1.
func (s *Service) Add(ctx context.Context, item domain.CartItem) ([]domain.CartItem, error) {
	if item.ID == "" {
		return nil, domain.ErrCartItemIDRequired
	}
	if item.Price < 0 {
		return nil, domain.ErrItemPriceInvalid
	}

	items, err := s.items.Update(ctx, func(items []domain.CartItem) ([]domain.CartItem, error) {
		for i := range items {
			if items[i].ID == item.ID {
				items[i].Quantity++
				return items, nil
			}
		}
		item.Quantity = 1
		return append(items, item), nil
	})
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	s.metrics.RecordCartItemAdded()
	s.publishBadge(items)
	return items, nil
}

// Remove удаляет позицию по ID.
func (s *Service) Remove(ctx context.Context, itemID string) ([]domain.CartItem, error) {
	items, err := s.items.Update(ctx, func(items []domain.CartItem) ([]domain.CartItem, error) {
		return removeItem(items, itemID), nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}

	s.publishBadge(items)
	return items, nil
}

// UpdateQuantity задаёт количество позиции. quantity <= 0 равносильно Remove.
// Неизвестный ID ничего не меняет.
func (s *Service) UpdateQuantity(ctx context.Context, itemID string, quantity int) ([]domain.CartItem, error) {
	items, err := s.items.Update(ctx, func(items []domain.CartItem) ([]domain.CartItem, error) {
		idx := indexOf(items, itemID)
		if idx < 0 {
			return nil, collection.ErrSkipWrite
		}
		if quantity <= 0 {
			return removeItem(items, itemID), nil
		}
		items[idx].Quantity = quantity
		return items, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update cart quantity: %w", err)
	}

	s.publishBadge(items)
	return items, nil
}

// Total возвращает сумму price*quantity.
func (s *Service) Total(ctx context.Context) (float64, error) {
	items, err := s.items.Read(ctx)
	if err != nil {
		return 0, err
	}
	return domain.CartTotal(items), nil
}

// Count возвращает суммарное количество единиц.
func (s *Service) Count(ctx context.Context) (int, error) {
	items, err := s.items.Read(ctx)
	if err != nil {
		return 0, err
	}
	return domain.CartCount(items), nil
}

// Badge возвращает состояние счётчика корзины.
func (s *Service) Badge(ctx context.Context) (domain.Badge, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return domain.Badge{}, err
	}
	return domain.NewBadge(domain.BadgeCart, count), nil
}

// UpdateBadge перечитывает корзину и публикует счётчик.
func (s *Service) UpdateBadge(ctx context.Context) error {
	badge, err := s.Badge(ctx)
	if err != nil {
		return err
	}
	if s.badges != nil {
		s.badges.PublishBadge(badge)
	}
	return nil
}

// Clear удаляет ключ корзины и обнуляет счётчик.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.items.Clear(ctx); err != nil {
		return err
	}
	s.publishBadge(nil)
	return nil
}

// Checkout забирает позиции из корзины одной compare-and-swap записью и оформляет из них заказ.
// Позиции, добавленные во время оформления, остаются в корзине. Если заказ создать не удалось,
// забранные позиции возвращаются обратно.
func (s *Service) Checkout(ctx context.Context, placer OrderPlacer, details domain.OrderDetails) (domain.Order, error) {
	var claimed []domain.CartItem
	remaining, err := s.items.Update(ctx, func(items []domain.CartItem) ([]domain.CartItem, error) {
		claimed = items
		if len(items) == 0 {
			return nil, collection.ErrSkipWrite
		}
		return []domain.CartItem{}, nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("claim cart: %w", err)
	}
	if len(claimed) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}
	s.publishBadge(remaining)

	order, err := placer.Add(ctx, domain.Order{
		Items:        claimed,
		Total:        domain.CartTotal(claimed),
		Address:      details.Address,
		RestaurantID: details.RestaurantID,
	})
	if err != nil {
		s.restore(ctx, claimed)
		return domain.Order{}, fmt.Errorf("place order: %w", err)
	}

	s.metrics.RecordCheckout()
	return order, nil
}

// restore возвращает забранные позиции в начало корзины. Количество совпадающих
// по ID позиций складывается.
func (s *Service) restore(ctx context.Context, claimed []domain.CartItem) {
	items, err := s.items.Update(context.WithoutCancel(ctx), func(items []domain.CartItem) ([]domain.CartItem, error) {
		merged := append([]domain.CartItem(nil), claimed...)
		for _, item := range items {
			if i := indexOf(merged, item.ID); i >= 0 {
				merged[i].Quantity += item.Quantity
				continue
			}
			merged = append(merged, item)
		}
		return merged, nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("items", len(claimed)).Error("failed to restore cart after checkout error")
		return
	}
	s.publishBadge(items)
}

func (s *Service) publishBadge(items []domain.CartItem) {
	if s.badges == nil {
		return
	}
	s.badges.PublishBadge(domain.NewBadge(domain.BadgeCart, domain.CartCount(items)))
}

func indexOf(items []domain.CartItem, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func removeItem(items []domain.CartItem, id string) []domain.CartItem {
	filtered := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
