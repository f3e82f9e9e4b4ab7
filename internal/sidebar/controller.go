// Package sidebar строит модели представления бокового меню витрины:
// список заказов с трекером, адреса, избранное и справку.
package sidebar

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
)

// Сообщения пользователю.
const (
	MessageLoggedOut    = "Logged out successfully"
	MessageAddressSaved = "Address saved successfully!"
)

// CartBadger отдаёт счётчик корзины.
type CartBadger interface {
	Badge(ctx context.Context) (domain.Badge, error)
}

// OrderLister читает заказы и их счётчики.
type OrderLister interface {
	AllOrders(ctx context.Context) ([]domain.Order, error)
	Badges(ctx context.Context) ([]domain.Badge, error)
}

// AddressBook читает и пополняет сохранённые адреса.
type AddressBook interface {
	Get(ctx context.Context) ([]domain.SavedAddress, error)
	Add(ctx context.Context, address domain.SavedAddress) (domain.SavedAddress, error)
}

// SavedIDs читает сохранённые ID.
type SavedIDs interface {
	Get(ctx context.Context) ([]string, error)
}

// Deps — источники данных контроллера.
type Deps struct {
	Cart        CartBadger
	Orders      OrderLister
	Addresses   AddressBook
	Restaurants SavedIDs
	Dishes      SavedIDs
	// Store нужен только для очистки ключа авторизации при выходе.
	Store    storage.Store
	Notifier domain.Notifier
}

// Option настраивает Controller.
type Option func(*Controller)

// WithLogger задаёт logger контроллера.
func WithLogger(logger *log.Entry) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithLocation задаёт часовой пояс дат в карточках заказов.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.format = NewFormatter(loc) }
}

// Controller хранит состояние меню и подменяет содержимое единственного слота.
type Controller struct {
	mu     sync.Mutex
	state  State
	deps   Deps
	format *Formatter
	logger *log.Entry
}

// NewController создаёт контроллер с закрытым меню.
func NewController(deps Deps, opts ...Option) *Controller {
	c := &Controller{deps: deps}
	for _, opt := range opts {
		opt(c)
	}
	if c.format == nil {
		c.format = NewFormatter(nil)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "sidebar")
	}
	return c
}

// State возвращает текущее состояние.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ToggleMenu открывает или закрывает меню. При закрытии слот с содержимым скрывается.
func (c *Controller) ToggleMenu() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.MenuOpen = !c.state.MenuOpen
	if !c.state.MenuOpen {
		c.state.ContentVisible = false
	}
	return c.state
}

// ShowSection показывает раздел по имени.
func (c *Controller) ShowSection(ctx context.Context, section Section) (State, error) {
	switch section {
	case SectionOrders:
		return c.ShowOrders(ctx)
	case SectionAddresses:
		return c.ShowSavedAddresses(ctx)
	case SectionRestaurants:
		return c.ShowSavedRestaurants(ctx)
	case SectionDishes:
		return c.ShowSavedDishes(ctx)
	case SectionHelp:
		return c.ShowHelp(), nil
	default:
		return c.State(), fmt.Errorf("%w: %q", domain.ErrUnknownSection, section)
	}
}

// ShowOrders показывает все заказы с трекером статуса.
func (c *Controller) ShowOrders(ctx context.Context) (State, error) {
	orders, err := c.deps.Orders.AllOrders(ctx)
	if err != nil {
		return c.State(), fmt.Errorf("load orders: %w", err)
	}
	return c.show(c.ordersPanel(orders)), nil
}

// ShowSavedAddresses показывает сохранённые адреса и кнопку добавления.
func (c *Controller) ShowSavedAddresses(ctx context.Context) (State, error) {
	addresses, err := c.deps.Addresses.Get(ctx)
	if err != nil {
		return c.State(), fmt.Errorf("load addresses: %w", err)
	}
	return c.show(addressesPanel(addresses)), nil
}

// ShowSavedRestaurants показывает избранные рестораны.
func (c *Controller) ShowSavedRestaurants(ctx context.Context) (State, error) {
	ids, err := c.deps.Restaurants.Get(ctx)
	if err != nil {
		return c.State(), fmt.Errorf("load saved restaurants: %w", err)
	}
	return c.show(restaurantsPanel(ids)), nil
}

// ShowSavedDishes показывает избранные блюда.
func (c *Controller) ShowSavedDishes(ctx context.Context) (State, error) {
	ids, err := c.deps.Dishes.Get(ctx)
	if err != nil {
		return c.State(), fmt.Errorf("load saved dishes: %w", err)
	}
	return c.show(dishesPanel(ids)), nil
}

// ShowHelp показывает справку.
func (c *Controller) ShowHelp() State {
	return c.show(helpPanel())
}

// HandleLogout удаляет ключ авторизации и закрывает меню. Без подтверждения ничего не делает.
func (c *Controller) HandleLogout(ctx context.Context, confirmed bool) (State, error) {
	if !confirmed {
		return c.State(), nil
	}
	if err := c.deps.Store.Delete(ctx, domain.KeyAuth); err != nil {
		return c.State(), fmt.Errorf("clear auth: %w", err)
	}
	c.logger.Info("user logged out")
	c.notify(MessageLoggedOut)
	return c.ToggleMenu(), nil
}

// AddNewAddress сохраняет адрес и перерисовывает раздел адресов.
// Пустое имя или адрес отменяют операцию без ошибки.
func (c *Controller) AddNewAddress(ctx context.Context, name, address, phone string) (State, error) {
	if name == "" || address == "" {
		return c.State(), nil
	}
	if _, err := c.deps.Addresses.Add(ctx, domain.SavedAddress{Name: name, Address: address, Phone: phone}); err != nil {
		return c.State(), fmt.Errorf("save address: %w", err)
	}
	c.notify(MessageAddressSaved)
	return c.ShowSavedAddresses(ctx)
}

// Badges возвращает счётчики корзины и активных заказов для загрузки страницы.
func (c *Controller) Badges(ctx context.Context) ([]domain.Badge, error) {
	cartBadge, err := c.deps.Cart.Badge(ctx)
	if err != nil {
		return nil, fmt.Errorf("cart badge: %w", err)
	}
	orderBadges, err := c.deps.Orders.Badges(ctx)
	if err != nil {
		return nil, fmt.Errorf("order badges: %w", err)
	}
	return append([]domain.Badge{cartBadge}, orderBadges...), nil
}

func (c *Controller) show(panel *Panel) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ContentVisible = true
	c.state.Panel = panel
	return c.state
}

func (c *Controller) notify(message string) {
	if c.deps.Notifier != nil {
		c.deps.Notifier.Success(message)
	}
}
