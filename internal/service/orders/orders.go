// Package orders хранит оформленные заказы под ключом "orders" и ведёт их статусы.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/idgen"
	"github.com/vladislavdragonenkov/digidine/internal/metrics"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
	"github.com/vladislavdragonenkov/digidine/internal/storage/collection"
)

// Options задаёт зависимости сервиса заказов.
type Options struct {
	Logger  *log.Entry
	Badges  domain.BadgePublisher
	Events  domain.OrderEventPublisher
	Metrics *metrics.StorefrontMetrics
	IDs     *idgen.Generator
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithBadgePublisher задаёт получателя счётчиков активных заказов.
func WithBadgePublisher(badges domain.BadgePublisher) Option {
	return func(o *Options) { o.Badges = badges }
}

// WithEventPublisher включает публикацию событий заказа.
func WithEventPublisher(events domain.OrderEventPublisher) Option {
	return func(o *Options) { o.Events = events }
}

// WithMetrics включает метрики заказов.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithIDGenerator подменяет генератор ID и часы сервиса.
func WithIDGenerator(ids *idgen.Generator) Option {
	return func(o *Options) { o.IDs = ids }
}

// Service управляет списком заказов. Список всегда упорядочен от новых к старым.
type Service struct {
	orders  *collection.Collection[domain.Order]
	ids     *idgen.Generator
	badges  domain.BadgePublisher
	events  domain.OrderEventPublisher
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
}

// NewService создаёт сервис заказов поверх store.
func NewService(store storage.Store, options ...Option) *Service {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	ids := opts.IDs
	if ids == nil {
		ids = idgen.New()
	}

	return &Service{
		orders:  collection.New[domain.Order](store, domain.KeyOrders, collection.WithLogger(logger)),
		ids:     ids,
		badges:  opts.Badges,
		events:  opts.Events,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Add присваивает заказу ID, статус cooking и отметки времени и кладёт его в начало списка.
func (s *Service) Add(ctx context.Context, order domain.Order) (domain.Order, error) {
	now := s.ids.Now()
	order.Status = domain.OrderStatusCooking
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Items = append([]domain.CartItem(nil), order.Items...)
	if order.Items == nil {
		order.Items = []domain.CartItem{}
	}
	if order.Total == 0 && len(order.Items) > 0 {
		order.Total = domain.CartTotal(order.Items)
	}

	orders, err := s.orders.Update(ctx, func(orders []domain.Order) ([]domain.Order, error) {
		var highest int64
		for _, o := range orders {
			highest = max(highest, o.ID)
		}
		order.ID = s.ids.NextAfter(highest)
		return append([]domain.Order{order}, orders...), nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("add order: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"total":    order.Total,
	}).Info("order placed")
	s.metrics.RecordOrderPlaced()
	s.publish(ctx, domain.OrderEventCreated, order, "")
	s.publishBadges(orders)
	return order, nil
}

// Get возвращает все заказы.
func (s *Service) Get(ctx context.Context) ([]domain.Order, error) {
	return s.orders.Read(ctx)
}

// AllOrders возвращает все заказы без фильтрации.
func (s *Service) AllOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.Read(ctx)
}

// ActiveOrders возвращает заказы, которые ещё не доставлены.
func (s *Service) ActiveOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.orders.Read(ctx)
	if err != nil {
		return nil, err
	}
	return activeOnly(orders), nil
}

// Find возвращает заказ по ID.
func (s *Service) Find(ctx context.Context, orderID int64) (domain.Order, error) {
	orders, err := s.orders.Read(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	for _, order := range orders {
		if order.ID == orderID {
			return order, nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// UpdateStatus меняет статус и updatedAt заказа. Статус должен быть одним из шагов трекера.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, fmt.Errorf("update order %d: %w: %q", orderID, domain.ErrInvalidOrderStatus, status)
	}
	return s.transition(ctx, orderID, func(current domain.OrderStatus) (domain.OrderStatus, error) {
		return status, nil
	})
}

// Advance переводит заказ на следующий шаг cooking → shipped → delivered.
func (s *Service) Advance(ctx context.Context, orderID int64) (domain.Order, error) {
	return s.transition(ctx, orderID, func(current domain.OrderStatus) (domain.OrderStatus, error) {
		next, ok := current.Next()
		if !ok {
			if current.Valid() {
				return "", domain.ErrOrderFinalized
			}
			return "", domain.ErrInvalidOrderStatus
		}
		return next, nil
	})
}

// AdvanceDue за одну запись переводит на следующий шаг все активные заказы, для которых due вернула true.
func (s *Service) AdvanceDue(ctx context.Context, due func(order domain.Order, now time.Time) bool) ([]domain.Order, error) {
	var changed []domain.Order
	var previous []domain.OrderStatus

	orders, err := s.orders.Update(ctx, func(orders []domain.Order) ([]domain.Order, error) {
		changed, previous = changed[:0], previous[:0]
		now := s.ids.Now()
		for i := range orders {
			next, ok := orders[i].Status.Next()
			if !ok || !due(orders[i], now) {
				continue
			}
			previous = append(previous, orders[i].Status)
			orders[i].Status = next
			orders[i].UpdatedAt = now
			changed = append(changed, orders[i])
		}
		if len(changed) == 0 {
			return nil, collection.ErrSkipWrite
		}
		return orders, nil
	})
	if err != nil {
		return nil, fmt.Errorf("advance due orders: %w", err)
	}

	for i, order := range changed {
		s.statusChanged(ctx, order, previous[i])
	}
	if len(changed) > 0 {
		s.publishBadges(orders)
	}
	return changed, nil
}

// Badges возвращает счётчики активных заказов для order-badge и orders-badge.
func (s *Service) Badges(ctx context.Context) ([]domain.Badge, error) {
	active, err := s.ActiveOrders(ctx)
	if err != nil {
		return nil, err
	}
	return badgesFor(len(active)), nil
}

// UpdateBadges перечитывает заказы и публикует счётчики.
func (s *Service) UpdateBadges(ctx context.Context) error {
	orders, err := s.orders.Read(ctx)
	if err != nil {
		return err
	}
	s.publishBadges(orders)
	return nil
}

func (s *Service) transition(
	ctx context.Context,
	orderID int64,
	next func(current domain.OrderStatus) (domain.OrderStatus, error),
) (domain.Order, error) {
	var updated domain.Order
	var prev domain.OrderStatus

	orders, err := s.orders.Update(ctx, func(orders []domain.Order) ([]domain.Order, error) {
		for i := range orders {
			if orders[i].ID != orderID {
				continue
			}
			status, err := next(orders[i].Status)
			if err != nil {
				return nil, err
			}
			prev = orders[i].Status
			orders[i].Status = status
			orders[i].UpdatedAt = s.ids.Now()
			updated = orders[i]
			return orders, nil
		}
		return nil, domain.ErrOrderNotFound
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %d: %w", orderID, err)
	}

	s.statusChanged(ctx, updated, prev)
	s.publishBadges(orders)
	return updated, nil
}

func (s *Service) statusChanged(ctx context.Context, order domain.Order, prev domain.OrderStatus) {
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"prev_status": prev,
		"status":      order.Status,
	}).Info("order status changed")
	s.metrics.RecordStatusChange(string(order.Status))
	s.publish(ctx, domain.OrderEventStatusChanged, order, prev)
}

func (s *Service) publish(ctx context.Context, eventType domain.OrderEventType, order domain.Order, prev domain.OrderStatus) {
	if s.events == nil {
		return
	}
	event := domain.OrderEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OrderID:    order.ID,
		Status:     order.Status,
		PrevStatus: prev,
		Total:      order.Total,
		Occurred:   order.UpdatedAt,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":   order.ID,
			"event_type": eventType,
		}).Warn("failed to publish order event")
	}
}

func (s *Service) publishBadges(orders []domain.Order) {
	active := len(activeOnly(orders))
	s.metrics.SetActiveOrders(active)
	if s.badges == nil {
		return
	}
	for _, badge := range badgesFor(active) {
		s.badges.PublishBadge(badge)
	}
}

func badgesFor(active int) []domain.Badge {
	return []domain.Badge{
		domain.NewBadge(domain.BadgeOrder, active),
		domain.NewBadge(domain.BadgeOrdersPanel, active),
	}
}

func activeOnly(orders []domain.Order) []domain.Order {
	active := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if order.Active() {
			active = append(active, order)
		}
	}
	return active
}
