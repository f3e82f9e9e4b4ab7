package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
)

// OrderEventPublisher публикует события заказов в Kafka topic. Ключ сообщения — ID заказа,
// поэтому события одного заказа попадают в одну партицию.
type OrderEventPublisher struct {
	producer *Producer
	topic    string
}

// NewOrderEventPublisher создаёт паблишер событий заказов.
func NewOrderEventPublisher(producer *Producer, topic string) *OrderEventPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OrderEventPublisher{
		producer: producer,
		topic:    topic,
	}
}

// PublishOrderEvent отправляет событие. ctx не прерывает синхронную отправку sarama.
func (p *OrderEventPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka order event publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return p.producer.PublishEvent(
		p.topic,
		strconv.FormatInt(event.OrderID, 10),
		event,
		sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(event.Type)},
	)
}

var _ domain.OrderEventPublisher = (*OrderEventPublisher)(nil)
