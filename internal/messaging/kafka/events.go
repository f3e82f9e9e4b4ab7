package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "digidine.order.events"
	TopicStatusUpdates   = "digidine.order.status"
	TopicDeadLetterQueue = "digidine.dlq"
	// TopicOrderEventsDLQ принимает события заказов, которые outbox не смог доставить.
	TopicOrderEventsDLQ = "digidine.order.events.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount = "x-retry-count"
	HeaderEventType  = "x-event-type"
)

// StatusUpdate — внешнее обновление статуса заказа (кухня, курьер).
type StatusUpdate struct {
	OrderID   int64     `json:"order_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseStatusUpdate парсит StatusUpdate из сообщения.
func ParseStatusUpdate(message *sarama.ConsumerMessage) (*StatusUpdate, error) {
	var update StatusUpdate
	if err := json.Unmarshal(message.Value, &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status update: %w", err)
	}
	if update.OrderID == 0 {
		return nil, fmt.Errorf("status update without order_id: %w", domain.ErrOrderNotFound)
	}
	return &update, nil
}
