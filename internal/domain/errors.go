package domain

import "errors"

var (
	// ErrInvalidOrderStatus возвращается для статуса вне cooking/shipped/delivered.
	ErrInvalidOrderStatus = errors.New("invalid order status")
	// ErrOrderNotFound возвращается, если заказа с таким ID нет.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderFinalized: заказ уже доставлен, следующего шага нет.
	ErrOrderFinalized = errors.New("order is already delivered")
	// ErrCartEmpty возвращает checkout пустой корзины.
	ErrCartEmpty          = errors.New("cart is empty")
	ErrCartItemIDRequired = errors.New("cart item id is required")
	ErrItemPriceInvalid   = errors.New("item price must be non-negative")
	ErrAddressRequired    = errors.New("address is required")
	ErrSavedIDRequired    = errors.New("saved id is required")
	// ErrRecordNotFound: симулированный PUT не нашёл запись с таким id.
	ErrRecordNotFound = errors.New("item not found")
	// ErrFetchFailed оборачивает ошибку сети или неуспешный статус HTTP GET.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrRevisionConflict: значение ключа изменилось между чтением и записью.
	ErrRevisionConflict = errors.New("store revision conflict")
	ErrUnknownSection   = errors.New("unknown sidebar section")
)

// IsRevisionConflict проверяет, является ли ошибка конфликтом ревизий.
func IsRevisionConflict(err error) bool {
	return errors.Is(err, ErrRevisionConflict)
}

// IsNotFound объединяет ошибки отсутствующих записей.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrRecordNotFound)
}
