package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics содержит метрики корзины, заказов и уведомлений.
// Все методы безопасны для nil-получателя: метрики опциональны для сервисов.
type StorefrontMetrics struct {
	cartItemsAdded prometheus.Counter
	cartCheckouts  prometheus.Counter
	ordersPlaced   prometheus.Counter

	orderStatusChanges *prometheus.CounterVec
	toastsShown        *prometheus.CounterVec
	fetchFailures      *prometheus.CounterVec

	activeOrders prometheus.Gauge
}

// NewStorefrontMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewStorefrontMetrics() *StorefrontMetrics {
	return NewStorefrontMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStorefrontMetricsWithRegisterer регистрирует метрики в registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewStorefrontMetricsWithRegisterer(registerer prometheus.Registerer) *StorefrontMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StorefrontMetrics{
		cartItemsAdded: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_cart_items_added_total",
			Help: "Total number of cart add operations",
		})),
		cartCheckouts: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_cart_checkouts_total",
			Help: "Total number of carts converted into orders",
		})),
		ordersPlaced: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed",
		})),
		orderStatusChanges: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_status_changes_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"status"})),
		toastsShown: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_toasts_shown_total",
			Help: "Total number of toast notifications grouped by kind",
		}, []string{"kind"})),
		fetchFailures: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_fetch_failures_total",
			Help: "Total number of failed remote fetch operations grouped by method",
		}, []string{"method"})),
		activeOrders: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_active_orders",
			Help: "Number of orders that are not delivered yet",
		})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordCartItemAdded увеличивает счётчик добавлений в корзину.
func (m *StorefrontMetrics) RecordCartItemAdded() {
	if m == nil {
		return
	}
	m.cartItemsAdded.Inc()
}

// RecordCheckout увеличивает счётчик оформленных корзин.
func (m *StorefrontMetrics) RecordCheckout() {
	if m == nil {
		return
	}
	m.cartCheckouts.Inc()
}

// RecordOrderPlaced увеличивает счётчик созданных заказов.
func (m *StorefrontMetrics) RecordOrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// RecordStatusChange учитывает переход заказа в status.
func (m *StorefrontMetrics) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.orderStatusChanges.WithLabelValues(status).Inc()
}

// RecordToast учитывает показанное уведомление.
func (m *StorefrontMetrics) RecordToast(kind string) {
	if m == nil {
		return
	}
	m.toastsShown.WithLabelValues(kind).Inc()
}

// RecordFetchFailure учитывает неудачный вызов RemoteFetch.
func (m *StorefrontMetrics) RecordFetchFailure(method string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(method).Inc()
}

// SetActiveOrders обновляет число недоставленных заказов.
func (m *StorefrontMetrics) SetActiveOrders(n int) {
	if m == nil {
		return
	}
	m.activeOrders.Set(float64(n))
}
