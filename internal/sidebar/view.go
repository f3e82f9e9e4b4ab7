package sidebar

import (
	"fmt"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
)

// Section — раздел, который можно открыть в слоте sidebar-section-content.
type Section string

// Разделы сайдбара. Одновременно в слоте показан только один.
const (
	// SectionOrders показывает заказы с трекером статуса.
	SectionOrders Section = "orders"
	// SectionAddresses показывает сохранённые адреса и кнопку добавления.
	SectionAddresses Section = "addresses"
	// SectionRestaurants показывает сохранённые рестораны.
	SectionRestaurants Section = "restaurants"
	// SectionDishes показывает сохранённые блюда.
	SectionDishes Section = "dishes"
	// SectionHelp показывает контакты поддержки.
	SectionHelp Section = "help"
)

// ParseSection проверяет имя раздела.
func ParseSection(raw string) (Section, error) {
	switch s := Section(raw); s {
	case SectionOrders, SectionAddresses, SectionRestaurants, SectionDishes, SectionHelp:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownSection, raw)
	}
}

// ActionAddAddress — идентификатор кнопки добавления адреса.
const ActionAddAddress = "add-new-address"

// State — состояние сайдбара: открыто ли меню и что показано в слоте.
type State struct {
	MenuOpen       bool   `json:"menuOpen"`
	ContentVisible bool   `json:"contentVisible"`
	Panel          *Panel `json:"panel,omitempty"`
}

// Panel — содержимое слота. Заполнено только поле, соответствующее Section.
type Panel struct {
	Section     Section       `json:"section"`
	Title       string        `json:"title"`
	Empty       *EmptyState   `json:"empty,omitempty"`
	Orders      []OrderCard   `json:"orders,omitempty"`
	Addresses   []AddressCard `json:"addresses,omitempty"`
	SavedIDs    []string      `json:"savedIds,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Help        *HelpContent  `json:"help,omitempty"`
	Actions     []Action      `json:"actions,omitempty"`
}

// EmptyState описывает заглушку пустого раздела.
type EmptyState struct {
	Icon  string `json:"icon"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// OrderCard — карточка заказа с трекером статуса.
type OrderCard struct {
	ID      int64         `json:"id"`
	Label   string        `json:"label"`
	Date    string        `json:"date"`
	Items   []OrderLine   `json:"items"`
	Tracker []TrackerStep `json:"tracker"`
	Total   string        `json:"total"`
}

// OrderLine описывает позицию заказа: название и количество в виде "× 2".
type OrderLine struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
}

// TrackerStep — шаг трекера. Шаги до текущего завершены, текущий активен.
type TrackerStep struct {
	Status    domain.OrderStatus `json:"status"`
	Label     string             `json:"label"`
	Icon      string             `json:"icon"`
	Active    bool               `json:"active"`
	Completed bool               `json:"completed"`
}

// AddressCard описывает карточку сохранённого адреса. Name уже заменён на "Address", если пуст.
type AddressCard struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone,omitempty"`
}

// HelpContent содержит контакты поддержки и частые вопросы.
type HelpContent struct {
	Heading string   `json:"heading"`
	Email   string   `json:"email"`
	Phone   string   `json:"phone"`
	FAQs    []string `json:"faqs"`
}

// Action описывает кнопку внутри панели, например ActionAddAddress.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var trackerSteps = []struct {
	label string
	icon  string
}{
	{label: "Cooking", icon: "👨‍🍳"},
	{label: "Shipped", icon: "🚚"},
	{label: "Delivered", icon: "✓"},
}

// Tracker строит шаги трекера для статуса. Для неизвестного статуса ни один шаг не отмечен.
func Tracker(status domain.OrderStatus) []TrackerStep {
	current := status.Index()
	steps := make([]TrackerStep, len(domain.OrderStatusSteps))
	for i, step := range domain.OrderStatusSteps {
		steps[i] = TrackerStep{
			Status:    step,
			Label:     trackerSteps[i].label,
			Icon:      trackerSteps[i].icon,
			Active:    i == current,
			Completed: i < current,
		}
	}
	return steps
}

func (c *Controller) ordersPanel(orders []domain.Order) *Panel {
	if len(orders) == 0 {
		return &Panel{
			Section: SectionOrders,
			Title:   "My Orders",
			Empty:   &EmptyState{Icon: "📦", Title: "No orders yet", Text: "Your orders will appear here"},
		}
	}

	cards := make([]OrderCard, 0, len(orders))
	for _, order := range orders {
		lines := make([]OrderLine, 0, len(order.Items))
		for _, item := range order.Items {
			lines = append(lines, OrderLine{Name: item.Name, Quantity: fmt.Sprintf("× %d", item.Quantity)})
		}
		cards = append(cards, OrderCard{
			ID:      order.ID,
			Label:   fmt.Sprintf("Order #%d", order.ID),
			Date:    c.format.Date(order.CreatedAt),
			Items:   lines,
			Tracker: Tracker(order.Status),
			Total:   c.format.Currency(order.Total),
		})
	}
	return &Panel{Section: SectionOrders, Title: "My Orders", Orders: cards}
}

func addressesPanel(addresses []domain.SavedAddress) *Panel {
	panel := &Panel{
		Section: SectionAddresses,
		Title:   "Saved Addresses",
		Actions: []Action{{ID: ActionAddAddress, Label: "Add New Address"}},
	}
	if len(addresses) == 0 {
		panel.Empty = &EmptyState{Icon: "📍", Title: "No saved addresses", Text: "Add addresses for faster checkout"}
		return panel
	}
	for _, addr := range addresses {
		panel.Addresses = append(panel.Addresses, AddressCard{
			ID:      addr.ID,
			Name:    addr.DisplayName(),
			Address: addr.Address,
			Phone:   addr.Phone,
		})
	}
	return panel
}

func restaurantsPanel(ids []string) *Panel {
	panel := &Panel{Section: SectionRestaurants, Title: "Saved Restaurants"}
	if len(ids) == 0 {
		panel.Empty = &EmptyState{Icon: "❤️", Title: "No saved restaurants", Text: "Save your favorite restaurants"}
		return panel
	}
	panel.SavedIDs = ids
	panel.Placeholder = "Restaurants will be loaded here"
	return panel
}

func dishesPanel(ids []string) *Panel {
	panel := &Panel{Section: SectionDishes, Title: "Saved Dishes"}
	if len(ids) == 0 {
		panel.Empty = &EmptyState{Icon: "🍽️", Title: "No saved dishes", Text: "Save your favorite dishes"}
		return panel
	}
	panel.SavedIDs = ids
	panel.Placeholder = "Dishes will be loaded here"
	return panel
}

func helpPanel() *Panel {
	return &Panel{
		Section: SectionHelp,
		Title:   "Help & Support",
		Help: &HelpContent{
			Heading: "Need Help?",
			Email:   "support@digidine.com",
			Phone:   "+91 1800-123-4567",
			FAQs: []string{
				"How to place an order?",
				"How to track my order?",
				"How to cancel an order?",
				"Payment options",
			},
		},
	}
}
