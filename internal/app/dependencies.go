package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/idgen"
	"github.com/vladislavdragonenkov/digidine/internal/metrics"
	"github.com/vladislavdragonenkov/digidine/internal/remote"
	"github.com/vladislavdragonenkov/digidine/internal/service/addresses"
	"github.com/vladislavdragonenkov/digidine/internal/service/cart"
	"github.com/vladislavdragonenkov/digidine/internal/service/favorites"
	grpcsvc "github.com/vladislavdragonenkov/digidine/internal/service/grpc"
	"github.com/vladislavdragonenkov/digidine/internal/service/orders"
	"github.com/vladislavdragonenkov/digidine/internal/sidebar"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
	"github.com/vladislavdragonenkov/digidine/internal/toast"
)

// Dependencies содержит сервисы витрины, собранные поверх одного хранилища.
type Dependencies struct {
	Store       storage.Store
	Metrics     *metrics.StorefrontMetrics
	Toasts      *toast.Queue
	Cart        *cart.Service
	Orders      *orders.Service
	Addresses   *addresses.Service
	Restaurants *favorites.IDSet
	Dishes      *favorites.IDSet
	Sidebar     *sidebar.Controller
	Remote      *remote.Client
	Logger      *log.Entry
}

// NewDependencies создаёт сервисы витрины. events может быть nil.
// registerer=nil означает prometheus.DefaultRegisterer.
func NewDependencies(
	cfg Config,
	store storage.Store,
	events domain.OrderEventPublisher,
	registerer prometheus.Registerer,
	logger *log.Entry,
) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	m := metrics.NewStorefrontMetricsWithRegisterer(registerer)
	ids := idgen.New()
	badges := badgeLogger{logger: logger.WithField("component", "badges")}
	toasts := toast.NewQueue(
		toast.WithLogger(logger.WithField("component", "toast")),
		toast.WithMetrics(m),
	)

	cartSvc := cart.NewService(store,
		cart.WithLogger(logger.WithField("component", "cart")),
		cart.WithBadgePublisher(badges),
		cart.WithMetrics(m),
	)
	orderSvc := orders.NewService(store,
		orders.WithLogger(logger.WithField("component", "orders")),
		orders.WithBadgePublisher(badges),
		orders.WithEventPublisher(events),
		orders.WithMetrics(m),
		orders.WithIDGenerator(ids),
	)
	addressSvc := addresses.NewService(store, ids, logger.WithField("component", "addresses"))
	restaurants := favorites.NewRestaurants(store, logger.WithField("component", "saved-restaurants"))
	dishes := favorites.NewDishes(store, logger.WithField("component", "saved-dishes"))

	sidebarCtl := sidebar.NewController(sidebar.Deps{
		Cart:        cartSvc,
		Orders:      orderSvc,
		Addresses:   addressSvc,
		Restaurants: restaurants,
		Dishes:      dishes,
		Store:       store,
		Notifier:    toasts,
	}, sidebar.WithLogger(logger.WithField("component", "sidebar")), sidebar.WithLocation(loc))

	remoteClient := remote.NewClient(store, toasts,
		remote.WithTimeout(cfg.FetchTimeout),
		remote.WithLogger(logger.WithField("component", "remote")),
		remote.WithMetrics(m),
		remote.WithIDGenerator(ids),
	)

	return &Dependencies{
		Store:       store,
		Metrics:     m,
		Toasts:      toasts,
		Cart:        cartSvc,
		Orders:      orderSvc,
		Addresses:   addressSvc,
		Restaurants: restaurants,
		Dishes:      dishes,
		Sidebar:     sidebarCtl,
		Remote:      remoteClient,
		Logger:      logger,
	}, nil
}

// GRPCDeps возвращает набор сервисов для StorefrontService.
func (d *Dependencies) GRPCDeps() grpcsvc.Deps {
	return grpcsvc.Deps{
		Cart:        d.Cart,
		Orders:      d.Orders,
		Addresses:   d.Addresses,
		Restaurants: d.Restaurants,
		Dishes:      d.Dishes,
		Sidebar:     d.Sidebar,
		Toasts:      d.Toasts,
		Remote:      d.Remote,
	}
}

// Close останавливает таймеры уведомлений и закрывает хранилище.
func (d *Dependencies) Close() error {
	d.Toasts.Close()
	if err := d.Store.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}

// badgeLogger пишет обновления счётчиков в debug-лог; клиенты читают
// актуальные значения через Badges.
type badgeLogger struct {
	logger *log.Entry
}

func (b badgeLogger) PublishBadge(badge domain.Badge) {
	b.logger.WithFields(log.Fields{
		"target":  badge.Target,
		"count":   badge.Count,
		"visible": badge.Visible,
	}).Debug("badge updated")
}
