package domain

import (
	"context"
	"time"
)

// Ключи хранилища, принадлежащие менеджерам витрины.
const (
	KeyCart             = "cart"
	KeyOrders           = "orders"
	KeySavedAddresses   = "saved-addresses"
	KeySavedRestaurants = "saved-restaurants"
	KeySavedDishes      = "saved-dishes"
	KeyEventOutbox      = "order-events-outbox"
	// KeyAuth принадлежит внешнему модулю авторизации; витрина только очищает его при logout.
	KeyAuth = "restaurant-auth"
)

// BadgeTarget идентифицирует элемент интерфейса со счётчиком.
type BadgeTarget string

const (
	BadgeCart        BadgeTarget = ".cart-badge"
	BadgeOrder       BadgeTarget = "order-badge"
	BadgeOrdersPanel BadgeTarget = "orders-badge"
)

// Badge — состояние счётчика: значение и видимость.
type Badge struct {
	Target  BadgeTarget `json:"target"`
	Count   int         `json:"count"`
	Visible bool        `json:"visible"`
}

// NewBadge строит счётчик, видимый только при count > 0.
func NewBadge(target BadgeTarget, count int) Badge {
	return Badge{Target: target, Count: count, Visible: count > 0}
}

// BadgePublisher принимает обновления счётчиков.
type BadgePublisher interface {
	PublishBadge(badge Badge)
}

// ToastKind — тип всплывающего уведомления.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// Notifier показывает пользователю короткие уведомления.
type Notifier interface {
	Success(message string)
	Error(message string)
	Info(message string)
}

// OrderEventType задаёт тип события заказа.
type OrderEventType string

const (
	OrderEventCreated       OrderEventType = "order.created"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
)

// OrderEvent описывает изменение заказа для внешних подписчиков.
type OrderEvent struct {
	ID         string         `json:"id"`
	Type       OrderEventType `json:"event_type"`
	OrderID    int64          `json:"order_id"`
	Status     OrderStatus    `json:"status"`
	PrevStatus OrderStatus    `json:"prev_status,omitempty"`
	Total      float64        `json:"total"`
	Occurred   time.Time      `json:"occurred_at"`
}

// OrderEventPublisher публикует события заказов во внешний брокер.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}
