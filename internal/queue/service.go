package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mahirjain10/image-resizer/config"
	"github.com/mahirjain10/image-resizer/internal/handlers"
	"github.com/mahirjain10/image-resizer/internal/logger"
	"github.com/mahirjain10/image-resizer/internal/utils"
)

const statusRoutingKey = "status"

// EventProcessor handles one bucket notification.
type EventProcessor interface {
	Process(ctx context.Context, event events.S3Event) handlers.Result
}

// Publisher is satisfied by *amqp.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type RabbitMqService struct {
	config    *config.Config
	processor EventProcessor

	mu            sync.Mutex
	publisher     Publisher
	openPublisher func() (Publisher, error)
}

func NewRabbitMqService(config *config.Config, processor EventProcessor) *RabbitMqService {
	return &RabbitMqService{
		config:    config,
		processor: processor,
	}
}

// statusPublisher returns the open status channel, re-opening it after a
// channel-level error. It returns nil when status publishing is not set up.
func (rabbitMqService *RabbitMqService) statusPublisher() (Publisher, error) {
	rabbitMqService.mu.Lock()
	defer rabbitMqService.mu.Unlock()

	if rabbitMqService.publisher != nil && !rabbitMqService.publisher.IsClosed() {
		return rabbitMqService.publisher, nil
	}
	if rabbitMqService.openPublisher == nil {
		return nil, nil
	}

	publisher, err := rabbitMqService.openPublisher()
	if err != nil {
		return nil, fmt.Errorf("failed to open status channel: %w", err)
	}
	rabbitMqService.publisher = publisher
	return publisher, nil
}

func (rabbitMqService *RabbitMqService) closePublisher() {
	rabbitMqService.mu.Lock()
	defer rabbitMqService.mu.Unlock()

	if rabbitMqService.publisher != nil {
		rabbitMqService.publisher.Close()
		rabbitMqService.publisher = nil
	}
}

func (rabbitMqService *RabbitMqService) PublishStatus(ctx context.Context, result handlers.Result) error {
	if rabbitMqService.config.StatusExchange == "" {
		return nil
	}
	publisher, err := rabbitMqService.statusPublisher()
	if err != nil || publisher == nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	statusData := utils.InitStatusData(result.Bucket, result.Key, result.OutputKey, result.Response)
	serializedMessage, err := utils.SerializeJSON(utils.InitStatusMessage(statusData))
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	err = publisher.PublishWithContext(ctx,
		rabbitMqService.config.StatusExchange,
		statusRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        serializedMessage,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// ProcessMessage runs one delivery through the processor. A returned error is
// always a ProcessingError telling the caller whether to requeue.
func (rabbitMqService *RabbitMqService) ProcessMessage(ctx context.Context, d amqp.Delivery) error {
	l := logger.Ctx(ctx)

	var event events.S3Event
	if err := utils.ParseJSON(d.Body, &event); err != nil {
		return ProcessingError{Err: fmt.Errorf("failed to parse bucket notification: %w", err), Requeue: false}
	}

	result := rabbitMqService.processor.Process(ctx, event)

	if err := rabbitMqService.PublishStatus(ctx, result); err != nil {
		l.Warn().Err(err).Msg("failed to publish status")
	}

	if result.Response.StatusCode >= http.StatusInternalServerError {
		// one redelivery; a second failure is dropped
		return ProcessingError{
			Err:     fmt.Errorf("processing s3://%s/%s failed with status %d", result.Bucket, result.Key, result.Response.StatusCode),
			Requeue: !d.Redelivered,
		}
	}
	return nil
}

// HandleDelivery processes d and acknowledges it according to the outcome.
func (rabbitMqService *RabbitMqService) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	requestID := d.MessageId
	if requestID == "" {
		requestID = strconv.FormatUint(d.DeliveryTag, 10)
	}
	ctx = logger.WithRequestID(ctx, requestID)
	l := logger.Ctx(ctx)

	err := rabbitMqService.ProcessMessage(ctx, d)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			l.Error().Err(ackErr).Msg("failed to ack message")
		}
		return
	}

	requeue := false
	var procErr ProcessingError
	if errors.As(err, &procErr) {
		requeue = procErr.Requeue
	}
	l.Error().Err(err).Bool("requeue", requeue).Msg("error processing message")
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		l.Error().Err(nackErr).Msg("failed to nack message")
	}
}

// Start declares the queue (and the status exchange when configured), runs the
// configured number of consumers and blocks until ctx is cancelled or the
// connection is lost.
func (rabbitMqService *RabbitMqService) Start(parentCtx context.Context, conn *amqp.Connection) error {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	l := logger.Ctx(ctx)
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	queueName := rabbitMqService.config.RabbitMqQueue

	ch, err := NewChannel(conn)
	if err != nil {
		return err
	}
	if _, err := NewQueue(ch, queueName); err != nil {
		ch.Close()
		return err
	}
	ch.Close()
	l.Info().Str("queue", queueName).Msg("queue declared")

	if exchange := rabbitMqService.config.StatusExchange; exchange != "" {
		rabbitMqService.openPublisher = func() (Publisher, error) {
			statusCh, err := NewChannel(conn)
			if err != nil {
				return nil, err
			}
			if err := DeclareStatusExchange(statusCh, exchange); err != nil {
				statusCh.Close()
				return nil, err
			}
			return statusCh, nil
		}
		if _, err := rabbitMqService.statusPublisher(); err != nil {
			return err
		}
		defer rabbitMqService.closePublisher()
		l.Info().Str("exchange", exchange).Msg("status exchange declared")
	}

	var wg sync.WaitGroup
	for i := 0; i < rabbitMqService.config.AmqpWorkers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rabbitMqService.consume(ctx, conn, queueName, worker)
		}(i + 1)
	}

	var connErr error
	select {
	case <-ctx.Done():
	case amqpErr := <-connClosed:
		connErr = fmt.Errorf("rabbitmq connection closed: %v", amqpErr)
		cancel()
	}

	l.Info().Msg("Shutting down all consumers gracefully...")
	wg.Wait()
	return connErr
}

func (rabbitMqService *RabbitMqService) consume(ctx context.Context, conn *amqp.Connection, queueName string, worker int) {
	l := logger.Ctx(ctx).With().Str("queue", queueName).Int("worker", worker).Logger()

	var consumerCh *amqp.Channel
	defer func() {
		if consumerCh != nil {
			consumerCh.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if consumerCh == nil || consumerCh.IsClosed() {
			newCh, err := NewChannel(conn)
			if err != nil {
				l.Error().Err(err).Msg("failed to create channel")
				if !sleepCtx(ctx, 5*time.Second) {
					return
				}
				continue
			}
			consumerCh = newCh
		}

		msgs, err := NewQueueConsumer(consumerCh, queueName)
		if err != nil {
			l.Error().Err(err).Msg("failed to start consumer")
			consumerCh.Close()
			consumerCh = nil
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		l.Info().Msg("worker started, waiting for messages")

	deliveries:
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					l.Warn().Msg("channel closed, will recreate")
					consumerCh = nil
					break deliveries
				}
				// in-flight work finishes even when shutdown starts
				rabbitMqService.HandleDelivery(context.WithoutCancel(ctx), d)
			}
		}

		if !sleepCtx(ctx, 2*time.Second) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
