package domain

import "time"

// SavedAddress — адрес доставки, сохранённый пользователем.
type SavedAddress struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayName возвращает имя адреса или "Address", если имя не задано.
func (a SavedAddress) DisplayName() string {
	if a.Name == "" {
		return "Address"
	}
	return a.Name
}
