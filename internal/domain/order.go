package domain

import "time"

// OrderStatus описывает шаг жизненного цикла заказа.
type OrderStatus string

const (
	// OrderStatusCooking: заказ принят и готовится.
	OrderStatusCooking OrderStatus = "cooking"
	// OrderStatusShipped: заказ передан курьеру.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered конечный, дальнейших переходов нет.
	OrderStatusDelivered OrderStatus = "delivered"
)

// OrderStatusSteps фиксирует порядок шагов трекера статуса.
var OrderStatusSteps = []OrderStatus{
	OrderStatusCooking,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	return s.Index() >= 0
}

// Index возвращает позицию статуса в трекере или -1 для неизвестного значения.
func (s OrderStatus) Index() int {
	for i, step := range OrderStatusSteps {
		if step == s {
			return i
		}
	}
	return -1
}

// Next возвращает следующий шаг трекера. ok=false для финального или неизвестного статуса.
func (s OrderStatus) Next() (OrderStatus, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(OrderStatusSteps) {
		return s, false
	}
	return OrderStatusSteps[idx+1], true
}

// ParseOrderStatus приводит строку к OrderStatus или возвращает ErrInvalidOrderStatus.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", ErrInvalidOrderStatus
	}
	return status, nil
}

// Order — оформленный заказ. ID выводится из времени создания.
type Order struct {
	ID           int64       `json:"id"`
	Items        []CartItem  `json:"items"`
	Total        float64     `json:"total"`
	Status       OrderStatus `json:"status"`
	Address      string      `json:"address,omitempty"`
	RestaurantID string      `json:"restaurantId,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Active сообщает, что заказ ещё не доставлен.
func (o Order) Active() bool {
	return o.Status != OrderStatusDelivered
}

// OrderDetails — данные оформления, которые пользователь передаёт при checkout.
type OrderDetails struct {
	Address      string `json:"address,omitempty"`
	RestaurantID string `json:"restaurantId,omitempty"`
}
