package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/SumonaSupto/AgriBusket-sub001/config"
)

const (
	// For publisher confirms
	publishTimeout = 5 * time.Second
)

// MessageHandler processes a received amqp.Delivery. Returning an error nacks
// the message for retry; returning ErrPermanentFailure sends it straight to
// the DLQ without further attempts.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// ErrPermanentFailure marks a message that cannot ever be processed (e.g.
// malformed JSON) and must not be retried.
var ErrPermanentFailure = errors.New("permanent failure processing message")

// RabbitMQManager handles RabbitMQ connections, channels, and operations.
// It publishes ledger events and consumes shipment confirmations from the
// logistics collaborator.
type RabbitMQManager struct {
	config          config.Config
	connection      *amqp.Connection
	consumerChan    *amqp.Channel
	producerChan    *amqp.Channel
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	isReady         atomic.Bool // read from consumer and publisher goroutines
	isConnecting    atomic.Bool
	connectMutex    chan struct{} // buffered channel of size 1 as a mutex
}

// NewRabbitMQManager connects and sets up topology. On initial failure it
// still starts the reconnect monitor before returning the error.
func NewRabbitMQManager(cfg config.Config) (*RabbitMQManager, error) {
	rmq := &RabbitMQManager{
		config:       cfg,
		connectMutex: make(chan struct{}, 1),
	}
	rmq.connectMutex <- struct{}{}

	if err := rmq.connect(); err != nil {
		go rmq.handleReconnect()
		return nil, fmt.Errorf("initial RabbitMQ connection failed: %w. Will attempt to reconnect", err)
	}
	go rmq.handleReconnect()
	return rmq, nil
}

func (rmq *RabbitMQManager) connect() error {
	if !rmq.isConnecting.CompareAndSwap(false, true) {
		log.Warn().Msg("RabbitMQ connection attempt already in progress.")
		return errors.New("connection attempt in progress")
	}
	defer rmq.isConnecting.Store(false)

	<-rmq.connectMutex
	defer func() { rmq.connectMutex <- struct{}{} }()

	log.Info().Str("url", rmq.config.RabbitMQURL).Msg("Attempting to connect to RabbitMQ")
	conn, err := amqp.Dial(rmq.config.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	rmq.connection = conn
	rmq.notifyConnClose = make(chan *amqp.Error)
	rmq.connection.NotifyClose(rmq.notifyConnClose)

	if err := rmq.setupProducerChannel(); err != nil {
		return fmt.Errorf("failed to setup producer channel: %w", err)
	}

	if err := rmq.setupConsumerChannelAndTopology(); err != nil {
		return fmt.Errorf("failed to setup consumer channel and topology: %w", err)
	}

	rmq.isReady.Store(true)
	log.Info().Msg("RabbitMQ connected and channels initialized successfully")
	return nil
}

func (rmq *RabbitMQManager) setupProducerChannel() error {
	var err error
	rmq.producerChan, err = rmq.connection.Channel()
	if err != nil {
		return fmt.Errorf("failed to open producer channel: %w", err)
	}

	// Enable publisher confirms on this channel
	if err := rmq.producerChan.Confirm(false); err != nil {
		return fmt.Errorf("producer channel could not be put into confirm mode: %w", err)
	}
	rmq.notifyConfirm = make(chan amqp.Confirmation, 1)
	rmq.producerChan.NotifyPublish(rmq.notifyConfirm)

	log.Info().Str("exchange", rmq.config.OutgoingExchangeName).Str("type", rmq.config.RabbitMQExchangeType).Msg("Declaring outgoing exchange")
	err = rmq.producerChan.ExchangeDeclare(
		rmq.config.OutgoingExchangeName, // name
		rmq.config.RabbitMQExchangeType, // type
		true,                            // durable
		false,                           // auto-deleted
		false,                           // internal
		false,                           // no-wait
		nil,                             // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare outgoing exchange %s: %w", rmq.config.OutgoingExchangeName, err)
	}
	return nil
}

func (rmq *RabbitMQManager) setupConsumerChannelAndTopology() error {
	var err error
	rmq.consumerChan, err = rmq.connection.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	rmq.notifyChanClose = make(chan *amqp.Error)
	rmq.consumerChan.NotifyClose(rmq.notifyChanClose)

	if err := rmq.consumerChan.Qos(rmq.config.RabbitMQPrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS on consumer channel: %w", err)
	}

	// Dead Letter Exchange for messages that exhaust their retries.
	log.Info().Str("dlx_exchange", rmq.config.DLXName).Msg("Declaring Dead Letter Exchange (DLX)")
	err = rmq.consumerChan.ExchangeDeclare(rmq.config.DLXName, "direct", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare DLX %s: %w", rmq.config.DLXName, err)
	}

	dlqName := rmq.config.IncomingQueueName + ".dlq"
	log.Info().Str("dlq_name", dlqName).Msg("Declaring Dead Letter Queue (DLQ)")
	_, err = rmq.consumerChan.QueueDeclare(dlqName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ %s: %w", dlqName, err)
	}
	err = rmq.consumerChan.QueueBind(dlqName, rmq.config.DLQRoutingKey, rmq.config.DLXName, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind DLQ %s to DLX %s: %w", dlqName, rmq.config.DLXName, err)
	}

	// Main incoming exchange and queue for shipment confirmations.
	log.Info().Str("exchange", rmq.config.IncomingExchangeName).Str("type", rmq.config.RabbitMQExchangeType).Msg("Declaring incoming exchange")
	err = rmq.consumerChan.ExchangeDeclare(rmq.config.IncomingExchangeName, rmq.config.RabbitMQExchangeType, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare incoming exchange %s: %w", rmq.config.IncomingExchangeName, err)
	}

	queueArgs := amqp.Table{
		"x-dead-letter-exchange":    rmq.config.DLXName,
		"x-dead-letter-routing-key": rmq.config.DLQRoutingKey,
	}
	_, err = rmq.consumerChan.QueueDeclare(rmq.config.IncomingQueueName, true, false, false, false, queueArgs)
	if err != nil {
		return fmt.Errorf("failed to declare incoming queue %s: %w", rmq.config.IncomingQueueName, err)
	}

	err = rmq.consumerChan.QueueBind(rmq.config.IncomingQueueName, rmq.config.IncomingRoutingKey, rmq.config.IncomingExchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind incoming queue %s with key %s to exchange %s: %w",
			rmq.config.IncomingQueueName, rmq.config.IncomingRoutingKey, rmq.config.IncomingExchangeName, err)
	}
	log.Info().Str("queue", rmq.config.IncomingQueueName).Msg("Consumer topology setup complete.")
	return nil
}

// Publish sends a message to the configured outgoing exchange under the
// given routing key and waits for the broker's confirm.
func (rmq *RabbitMQManager) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	if !rmq.isReady.Load() || rmq.producerChan == nil {
		log.Error().Msg("RabbitMQ producer not ready or channel is nil. Cannot publish message.")
		return errors.New("producer not ready")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	log.Debug().Str("exchange", rmq.config.OutgoingExchangeName).Str("routingKey", routingKey).RawJSON("body", body).Msg("Publishing message")

	err = rmq.producerChan.Publish(
		rmq.config.OutgoingExchangeName, // exchange
		routingKey,                      // routing key
		false,                           // mandatory
		false,                           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirm := <-rmq.notifyConfirm:
		if confirm.Ack {
			log.Debug().Uint64("tag", confirm.DeliveryTag).Msg("Message published and confirmed")
			return nil
		}
		return errors.New("message published but not confirmed by broker")
	case <-time.After(publishTimeout):
		return errors.New("publish confirmation timeout")
	}
}

// StartConsuming consumes messages from the incoming queue and passes them
// to the handler with bounded application-level retries.
func (rmq *RabbitMQManager) StartConsuming(ctx context.Context, handler MessageHandler) error {
	if !rmq.isReady.Load() || rmq.consumerChan == nil {
		return errors.New("RabbitMQ consumer not ready or channel is nil")
	}

	msgs, err := rmq.consumerChan.Consume(
		rmq.config.IncomingQueueName, // queue
		rmq.config.ConsumerTag,       // consumer tag
		false,                        // auto-ack (false means we manually ack/nack)
		false,                        // exclusive
		false,                        // no-local
		false,                        // no-wait
		nil,                          // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Info().Str("queue", rmq.config.IncomingQueueName).Str("tag", rmq.config.ConsumerTag).Msg("Consumer started, waiting for messages...")

	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Context cancelled, stopping consumer.")
				return
			case delivery, ok := <-msgs:
				if !ok {
					log.Warn().Msg("Delivery channel was closed. Marking bus not ready.")
					rmq.isReady.Store(false) // handleReconnect will re-establish
					return
				}
				rmq.processMessageWithRetries(ctx, delivery, handler)
			}
		}
	}()

	return nil
}

func (rmq *RabbitMQManager) processMessageWithRetries(ctx context.Context, delivery amqp.Delivery, handler MessageHandler) {
	var processingErr error
	maxRetries := rmq.config.MaxProcessingRetries

	for attempt := 0; attempt < maxRetries; attempt++ {
		processingErr = handler(ctx, delivery)
		if processingErr == nil {
			if err := delivery.Ack(false); err != nil {
				log.Error().Err(err).Uint64("deliveryTag", delivery.DeliveryTag).Msg("Failed to ACK message")
			}
			return
		}

		if errors.Is(processingErr, ErrPermanentFailure) {
			log.Error().Err(processingErr).Uint64("deliveryTag", delivery.DeliveryTag).Msg("Permanent failure processing message. NACKing to DLQ.")
			delivery.Nack(false, false) // goes to DLX as per queue config
			return
		}

		log.Warn().Err(processingErr).Uint64("deliveryTag", delivery.DeliveryTag).Int("attempt", attempt+1).Int("maxRetries", maxRetries).Msg("Transient error processing message. Will retry if attempts remain.")
		if attempt+1 < maxRetries {
			time.Sleep(time.Second * time.Duration(attempt+1))
		}
	}

	log.Error().Err(processingErr).Uint64("deliveryTag", delivery.DeliveryTag).Int("retries", maxRetries).Msg("Max processing retries exceeded. NACKing message to DLQ.")
	if err := delivery.Nack(false, false); err != nil {
		log.Error().Err(err).Uint64("deliveryTag", delivery.DeliveryTag).Msg("Failed to NACK message after max retries")
	}
}

func (rmq *RabbitMQManager) handleReconnect() {
	log.Info().Msg("RabbitMQ connection monitor started.")
	for {
		if rmq.isReady.Load() {
			select {
			case err, ok := <-rmq.notifyConnClose:
				if !ok {
					log.Info().Msg("RabbitMQ connection close notification channel closed. Exiting reconnect handler.")
					return
				}
				log.Error().Err(err).Msg("RabbitMQ connection lost. Attempting to reconnect...")
				rmq.isReady.Store(false)
			case err, ok := <-rmq.notifyChanClose:
				if !ok {
					log.Info().Msg("RabbitMQ channel close notification channel closed. Exiting reconnect handler.")
					return
				}
				log.Error().Err(err).Msg("RabbitMQ channel lost. Attempting to re-establish...")
				rmq.isReady.Store(false)
			}
		}

		if !rmq.isReady.Load() {
			attempts := 0
			for attempts < rmq.config.MaxReconnectAttempts || rmq.config.MaxReconnectAttempts == 0 { // 0 for infinite
				attempts++
				log.Info().Int("attempt", attempts).Msg("Attempting RabbitMQ reconnection...")
				if err := rmq.connect(); err == nil {
					log.Info().Msg("RabbitMQ reconnected successfully.")
					break
				}
				if attempts >= rmq.config.MaxReconnectAttempts && rmq.config.MaxReconnectAttempts != 0 {
					log.Error().Int("attempts", attempts).Msg("Max reconnection attempts reached. Waiting for next close event.")
					break
				}
				time.Sleep(rmq.config.ReconnectDelay)
			}
		}
		if !rmq.isReady.Load() {
			time.Sleep(rmq.config.ReconnectDelay * 2)
		}
	}
}

// Close gracefully shuts down the RabbitMQ connection and channels.
func (rmq *RabbitMQManager) Close() {
	log.Info().Msg("Closing RabbitMQ manager...")
	rmq.isReady.Store(false)

	// The notify channels are owned by the amqp library: it closes them when
	// the registered connection or channel shuts down. Closing them here too
	// would panic on a double close.
	if rmq.consumerChan != nil {
		if err := rmq.consumerChan.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing consumer channel")
		}
		rmq.consumerChan = nil
	}

	if rmq.producerChan != nil {
		if err := rmq.producerChan.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing producer channel")
		}
		rmq.producerChan = nil
	}

	if rmq.connection != nil && !rmq.connection.IsClosed() {
		if err := rmq.connection.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing RabbitMQ connection")
		}
		rmq.connection = nil
	}
	log.Info().Msg("RabbitMQ manager closed.")
}

// IsReady checks if the RabbitMQ manager is connected and channels are set up.
func (rmq *RabbitMQManager) IsReady() bool {
	return rmq.isReady.Load() && rmq.connection != nil && !rmq.connection.IsClosed() && rmq.producerChan != nil && rmq.consumerChan != nil
}
