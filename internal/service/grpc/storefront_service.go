package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/remote"
	"github.com/vladislavdragonenkov/digidine/internal/service/addresses"
	"github.com/vladislavdragonenkov/digidine/internal/service/cart"
	"github.com/vladislavdragonenkov/digidine/internal/service/favorites"
	"github.com/vladislavdragonenkov/digidine/internal/service/orders"
	"github.com/vladislavdragonenkov/digidine/internal/sidebar"
	"github.com/vladislavdragonenkov/digidine/internal/toast"
)

// Deps — сервисы, которые StorefrontService отдаёт по gRPC.
type Deps struct {
	Cart        *cart.Service
	Orders      *orders.Service
	Addresses   *addresses.Service
	Restaurants *favorites.IDSet
	Dishes      *favorites.IDSet
	Sidebar     *sidebar.Controller
	Toasts      *toast.Queue
	// Remote необязателен; без него Fetch/Save/UpdateRemote отвечают Unimplemented.
	Remote *remote.Client
}

// StorefrontService реализует digidine.v1.StorefrontService поверх сервисов витрины.
type StorefrontService struct {
	deps   Deps
	logger *log.Entry
}

// NewStorefrontService конструирует сервис с зависимостями.
func NewStorefrontService(deps Deps, logger *log.Entry) *StorefrontService {
	if logger == nil {
		logger = log.New().WithField("component", "storefront-service")
	}
	return &StorefrontService{deps: deps, logger: logger}
}

// Register регистрирует сервис на gRPC-сервере.
func (s *StorefrontService) Register(server grpc.ServiceRegistrar) {
	server.RegisterService(&serviceDesc, s)
}

type cartRequest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type orderRequest struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type addressRequest struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type savedRequest struct {
	ID string `json:"id"`
}

type sectionRequest struct {
	Section string `json:"section"`
}

type remoteRequest struct {
	URL  string        `json:"url"`
	Data remote.Record `json:"data"`
}

type logoutRequest struct {
	Confirmed bool `json:"confirmed"`
}

type cartView struct {
	Items []domain.CartItem `json:"items"`
	Total float64           `json:"total"`
	Count int               `json:"count"`
}

func newCartView(items []domain.CartItem) cartView {
	if items == nil {
		items = []domain.CartItem{}
	}
	return cartView{Items: items, Total: domain.CartTotal(items), Count: domain.CartCount(items)}
}

// GetCart возвращает корзину с суммой и количеством.
func (s *StorefrontService) GetCart(ctx context.Context, _ struct{}) (cartView, error) {
	items, err := s.deps.Cart.Get(ctx)
	return newCartView(items), err
}

// AddCartItem добавляет позицию или увеличивает её количество.
func (s *StorefrontService) AddCartItem(ctx context.Context, req cartRequest) (cartView, error) {
	items, err := s.deps.Cart.Add(ctx, domain.CartItem{ID: req.ID, Name: req.Name, Price: req.Price})
	return newCartView(items), err
}

// RemoveCartItem удаляет позицию.
func (s *StorefrontService) RemoveCartItem(ctx context.Context, req cartRequest) (cartView, error) {
	items, err := s.deps.Cart.Remove(ctx, req.ID)
	return newCartView(items), err
}

// UpdateCartQuantity задаёт количество позиции.
func (s *StorefrontService) UpdateCartQuantity(ctx context.Context, req cartRequest) (cartView, error) {
	items, err := s.deps.Cart.UpdateQuantity(ctx, req.ID, req.Quantity)
	return newCartView(items), err
}

// ClearCart очищает корзину.
func (s *StorefrontService) ClearCart(ctx context.Context, _ struct{}) (cartView, error) {
	return newCartView(nil), s.deps.Cart.Clear(ctx)
}

// Checkout оформляет заказ из корзины.
func (s *StorefrontService) Checkout(ctx context.Context, req domain.OrderDetails) (map[string]any, error) {
	order, err := s.deps.Cart.Checkout(ctx, s.deps.Orders, req)
	if err != nil {
		return nil, err
	}
	s.deps.Toasts.Success("Order placed successfully!")
	return map[string]any{"order": order}, nil
}

// ListOrders возвращает все заказы, новые первыми.
func (s *StorefrontService) ListOrders(ctx context.Context, _ struct{}) (map[string]any, error) {
	all, err := s.deps.Orders.AllOrders(ctx)
	return map[string]any{"orders": all}, err
}

// ListActiveOrders возвращает недоставленные заказы.
func (s *StorefrontService) ListActiveOrders(ctx context.Context, _ struct{}) (map[string]any, error) {
	active, err := s.deps.Orders.ActiveOrders(ctx)
	return map[string]any{"orders": active}, err
}

// UpdateOrderStatus задаёт статус заказа.
func (s *StorefrontService) UpdateOrderStatus(ctx context.Context, req orderRequest) (map[string]any, error) {
	order, err := s.deps.Orders.UpdateStatus(ctx, req.ID, domain.OrderStatus(req.Status))
	return map[string]any{"order": order}, err
}

// AdvanceOrder переводит заказ на следующий шаг.
func (s *StorefrontService) AdvanceOrder(ctx context.Context, req orderRequest) (map[string]any, error) {
	order, err := s.deps.Orders.Advance(ctx, req.ID)
	return map[string]any{"order": order}, err
}

// ListAddresses возвращает сохранённые адреса.
func (s *StorefrontService) ListAddresses(ctx context.Context, _ struct{}) (map[string]any, error) {
	list, err := s.deps.Addresses.Get(ctx)
	return map[string]any{"addresses": list}, err
}

// AddAddress сохраняет адрес.
func (s *StorefrontService) AddAddress(ctx context.Context, req addressRequest) (map[string]any, error) {
	saved, err := s.deps.Addresses.Add(ctx, domain.SavedAddress{Name: req.Name, Address: req.Address, Phone: req.Phone})
	return map[string]any{"address": saved}, err
}

// RemoveAddress удаляет адрес.
func (s *StorefrontService) RemoveAddress(ctx context.Context, req addressRequest) (map[string]any, error) {
	list, err := s.deps.Addresses.Remove(ctx, req.ID)
	return map[string]any{"addresses": list}, err
}

func listIDs(ctx context.Context, set *favorites.IDSet) (map[string]any, error) {
	ids, err := set.Get(ctx)
	return map[string]any{"ids": ids}, err
}

// ListSavedRestaurants возвращает ID избранных ресторанов.
func (s *StorefrontService) ListSavedRestaurants(ctx context.Context, _ struct{}) (map[string]any, error) {
	return listIDs(ctx, s.deps.Restaurants)
}

// SaveRestaurant добавляет ресторан в избранное.
func (s *StorefrontService) SaveRestaurant(ctx context.Context, req savedRequest) (map[string]any, error) {
	ids, err := s.deps.Restaurants.Add(ctx, req.ID)
	return map[string]any{"ids": ids}, err
}

// RemoveRestaurant удаляет ресторан из избранного.
func (s *StorefrontService) RemoveRestaurant(ctx context.Context, req savedRequest) (map[string]any, error) {
	ids, err := s.deps.Restaurants.Remove(ctx, req.ID)
	return map[string]any{"ids": ids}, err
}

// ListSavedDishes возвращает ID избранных блюд.
func (s *StorefrontService) ListSavedDishes(ctx context.Context, _ struct{}) (map[string]any, error) {
	return listIDs(ctx, s.deps.Dishes)
}

// SaveDish добавляет блюдо в избранное.
func (s *StorefrontService) SaveDish(ctx context.Context, req savedRequest) (map[string]any, error) {
	ids, err := s.deps.Dishes.Add(ctx, req.ID)
	return map[string]any{"ids": ids}, err
}

// RemoveDish удаляет блюдо из избранного.
func (s *StorefrontService) RemoveDish(ctx context.Context, req savedRequest) (map[string]any, error) {
	ids, err := s.deps.Dishes.Remove(ctx, req.ID)
	return map[string]any{"ids": ids}, err
}

// ToggleMenu открывает или закрывает меню.
func (s *StorefrontService) ToggleMenu(_ context.Context, _ struct{}) (map[string]any, error) {
	return map[string]any{"state": s.deps.Sidebar.ToggleMenu()}, nil
}

// ShowSection показывает раздел сайдбара.
func (s *StorefrontService) ShowSection(ctx context.Context, req sectionRequest) (map[string]any, error) {
	section, err := sidebar.ParseSection(req.Section)
	if err != nil {
		return nil, err
	}
	state, err := s.deps.Sidebar.ShowSection(ctx, section)
	return map[string]any{"state": state}, err
}

// Logout выполняет выход, если confirmed.
func (s *StorefrontService) Logout(ctx context.Context, req logoutRequest) (map[string]any, error) {
	state, err := s.deps.Sidebar.HandleLogout(ctx, req.Confirmed)
	return map[string]any{"state": state}, err
}

// AddNewAddress сохраняет адрес из формы сайдбара.
func (s *StorefrontService) AddNewAddress(ctx context.Context, req addressRequest) (map[string]any, error) {
	state, err := s.deps.Sidebar.AddNewAddress(ctx, req.Name, req.Address, req.Phone)
	return map[string]any{"state": state}, err
}

// Badges возвращает все счётчики.
func (s *StorefrontService) Badges(ctx context.Context, _ struct{}) (map[string]any, error) {
	badges, err := s.deps.Sidebar.Badges(ctx)
	return map[string]any{"badges": badges}, err
}

// Toasts возвращает видимые уведомления.
func (s *StorefrontService) Toasts(_ context.Context, _ struct{}) (map[string]any, error) {
	return map[string]any{"toasts": s.deps.Toasts.Active()}, nil
}

func (s *StorefrontService) remote() (*remote.Client, error) {
	if s.deps.Remote == nil {
		return nil, status.Error(codes.Unimplemented, "remote fetch is not configured")
	}
	return s.deps.Remote, nil
}

// FetchRemote загружает JSON-массив по url.
func (s *StorefrontService) FetchRemote(ctx context.Context, req remoteRequest) (map[string]any, error) {
	client, err := s.remote()
	if err != nil {
		return nil, err
	}
	var records []remote.Record
	if err := client.Get(ctx, req.URL, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []remote.Record{}
	}
	return map[string]any{"records": records}, nil
}

// SaveRemote добавляет запись в локальный массив url.
func (s *StorefrontService) SaveRemote(ctx context.Context, req remoteRequest) (map[string]any, error) {
	client, err := s.remote()
	if err != nil {
		return nil, err
	}
	record, err := client.Post(ctx, req.URL, req.Data)
	return map[string]any{"record": record}, err
}

// UpdateRemote сливает поля в запись локального массива url с тем же id.
func (s *StorefrontService) UpdateRemote(ctx context.Context, req remoteRequest) (map[string]any, error) {
	client, err := s.remote()
	if err != nil {
		return nil, err
	}
	record, err := client.Put(ctx, req.URL, req.Data)
	return map[string]any{"record": record}, err
}

// toStatus переводит доменные ошибки в коды gRPC.
func (s *StorefrontService) toStatus(method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidOrderStatus),
		errors.Is(err, domain.ErrCartItemIDRequired),
		errors.Is(err, domain.ErrItemPriceInvalid),
		errors.Is(err, domain.ErrAddressRequired),
		errors.Is(err, domain.ErrSavedIDRequired),
		errors.Is(err, domain.ErrUnknownSection):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrFetchFailed):
		return status.Error(codes.Unavailable, err.Error())
	case domain.IsRevisionConflict(err):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrOrderFinalized), errors.Is(err, domain.ErrCartEmpty):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithError(err).WithField("method", method).Error("storefront call failed")
		return status.Error(codes.Internal, "internal error")
	}
}
