package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	"github.com/vladislavdragonenkov/digidine/internal/messaging"
	"github.com/vladislavdragonenkov/digidine/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/digidine/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/digidine/internal/service/outbox"
	"github.com/vladislavdragonenkov/digidine/internal/storage"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, clientID string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers,
		kafka.WithClientID(clientID),
		kafka.WithLogger(logger.WithField("component", "kafka-producer")))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithFields(log.Fields{"brokers": brokers, "client_id": clientID}).Info("kafka producer initialized")
	return producer, nil
}

// initRabbitPublisher подключается к RabbitMQ если url не пустой.
func initRabbitPublisher(url, exchange string, logger *log.Entry) (*rabbitmq.Publisher, error) {
	if url == "" {
		return nil, nil
	}

	publisher, err := rabbitmq.Dial(url, exchange)
	if err != nil {
		logger.WithError(err).Warn("failed to connect to rabbitmq, continuing without rabbitmq")
		return nil, err
	}

	logger.WithField("exchange", exchange).Info("rabbitmq publisher initialized")
	return publisher, nil
}

// newEventPublisher собирает паблишер событий заказов из доступных брокеров.
// Без брокеров возвращает nil, и заказы живут без внешних событий.
func newEventPublisher(producer *kafka.Producer, topic string, rabbit *rabbitmq.Publisher) domain.OrderEventPublisher {
	var fanout messaging.Fanout
	if producer != nil {
		fanout = append(fanout, kafka.NewOrderEventPublisher(producer, topic))
	}
	if rabbit != nil {
		fanout = append(fanout, rabbit)
	}

	switch len(fanout) {
	case 0:
		return nil
	case 1:
		return fanout[0]
	default:
		return fanout
	}
}

// newOutbox ставит outbox между заказами и брокерами: заказы пишут события в
// хранилище, воркер доставляет их в brokers. Без брокеров возвращает nil.
// Недоставленные события уходят в Kafka topic KafkaDeadLetterTopic, если есть producer.
func newOutbox(cfg Config, store storage.Store, brokers domain.OrderEventPublisher, producer *kafka.Producer, logger *log.Entry) (*outbox.Outbox, *outbox.Worker) {
	if brokers == nil {
		return nil, nil
	}

	box := outbox.New(store, logger.WithField("component", "outbox"), outbox.WithMaxPending(cfg.OutboxMaxPending))
	options := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if producer != nil && cfg.KafkaDeadLetterTopic != "" {
		options = append(options, outbox.WithDeadLetter(kafka.NewOrderEventPublisher(producer, cfg.KafkaDeadLetterTopic)))
	}
	return box, outbox.NewWorker(box, brokers, options...)
}

// initStatusConsumer подписывается на внешние обновления статусов заказов.
// Сообщения, исчерпавшие повторы, уходят в DLQ через producer.
func initStatusConsumer(cfg Config, orders kafka.StatusUpdater, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaStatusTopic == "" {
		return nil, nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		cfg.KafkaBrokers,
		cfg.KafkaGroupID,
		[]string{cfg.KafkaStatusTopic},
		kafka.NewStatusHandler(orders),
		producer,
		cfg.KafkaMaxRetries,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka status consumer, continuing without it")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"topic":    cfg.KafkaStatusTopic,
		"group_id": cfg.KafkaGroupID,
	}).Info("kafka status consumer initialized")
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// closeRabbit закрывает соединение с RabbitMQ если оно открыто.
func closeRabbit(publisher *rabbitmq.Publisher, logger *log.Entry) {
	if publisher == nil {
		return
	}

	if err := publisher.Close(); err != nil {
		logger.WithError(err).Warn("failed to close rabbitmq publisher")
	} else {
		logger.Info("rabbitmq publisher closed")
	}
}

// stopConsumer останавливает consumer если он запущен.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}

	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
