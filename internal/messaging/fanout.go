// Package messaging объединяет брокеры событий заказов.
package messaging

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
)

// Fanout отправляет событие во все паблишеры и собирает ошибки.
type Fanout []domain.OrderEventPublisher

// PublishOrderEvent вызывает каждый паблишер, даже если предыдущий вернул ошибку.
func (f Fanout) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishOrderEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
