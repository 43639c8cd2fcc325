package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"payment-service/internal/config"
	"payment-service/internal/logcontext"
	"payment-service/internal/message"
	"payment-service/internal/model"
)

const (
	defaultPollingIntervalMs   = 500
	defaultFetchSize           = 200
	defaultRetryPublishDelayMs = 10_000
	defaultMaxPublishAttempts  = 3
)

var (
	// producer batch metrics
	producerErrorFetchingCounter = metrics.GetOrCreateCounter(`transition_producer_total{result="fetching_failed"}`)
	producerErrorKafkaCounter    = metrics.GetOrCreateCounter(`transition_producer_total{result="publish_failed"}`)
	producerErrorUpdateCounter   = metrics.GetOrCreateCounter(`transition_producer_total{result="db_update_failed"}`)
	producerSuccessCounter       = metrics.GetOrCreateCounter(`transition_producer_total{result="success"}`)

	producerProcessDurationHistogram = metrics.GetOrCreateHistogram(`transition_producer_duration_milliseconds`)

	// producer per message metrics
	producerMessagesPublishedCounter   = metrics.GetOrCreateCounter(`transition_producer_messages_total{result="published"}`)
	producerMessagesMaxAttemptsCounter = metrics.GetOrCreateCounter(`transition_producer_messages_total{result="max_attempts_reached"}`)
	producerMessagesRescheduledCounter = metrics.GetOrCreateCounter(`transition_producer_messages_total{result="rescheduled"}`)
)

// Outbox is the order_transitions table as seen by the producer.
type Outbox interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]*model.OrderTransition, error)
	Update(ctx context.Context, tx pgx.Tx, t *model.OrderTransition) error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Producer struct {
	outbox             Outbox
	writer             Writer
	pollingInterval    time.Duration
	fetchSize          int
	retryDelay         time.Duration
	maxPublishAttempts int
	logger             *slog.Logger
	now                func() time.Time
}

func NewProducer(outbox Outbox, writer Writer, cfg config.NotifyProducer, logger *slog.Logger) *Producer {
	return &Producer{
		outbox:             outbox,
		writer:             writer,
		pollingInterval:    time.Duration(orDefault(cfg.PollingIntervalMs, defaultPollingIntervalMs)) * time.Millisecond,
		fetchSize:          orDefault(cfg.FetchSize, defaultFetchSize),
		retryDelay:         time.Duration(orDefault(cfg.RescheduleDelayMs, defaultRetryPublishDelayMs)) * time.Millisecond,
		maxPublishAttempts: orDefault(cfg.MaxPublishAttempts, defaultMaxPublishAttempts),
		logger:             logger,
		now:                time.Now,
	}
}

func orDefault(value, def int) int {
	if value <= 0 {
		return def
	}
	return value
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.process(ctx)
			case <-ctx.Done():
				p.logger.InfoContext(ctx, "Context done, stopping producer")
				return
			}
		}
	}()
}

func (p *Producer) process(ctx context.Context) {
	startTime := time.Now()
	defer func() {
		producerProcessDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	// set runId as a correlation id for all logs in scope
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	tx, err := p.outbox.BeginTx(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	defer tx.Rollback(ctx)

	transitions, err := p.outbox.GetUnpublished(ctx, tx, p.fetchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error fetching unpublished transitions", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	if len(transitions) == 0 {
		p.logger.DebugContext(ctx, "No unpublished transitions found")
		producerSuccessCounter.Inc()
		return
	}

	p.logger.InfoContext(ctx, "Writing transitions to Kafka", "count", len(transitions))
	publishErr := p.writer.WriteMessages(ctx, p.toKafkaMessages(transitions)...)
	if publishErr != nil {
		p.logger.ErrorContext(ctx, "Error writing messages to Kafka", "error", publishErr)
		producerErrorKafkaCounter.Inc()
	}

	now := p.now()
	for _, transition := range transitions {
		messageCtx := logcontext.AppendCtx(ctx, slog.String("transitionId", transition.ID.String()))

		transition.PublishAttempts++

		if publishErr != nil {
			errMsg := publishErr.Error()
			transition.Error = &errMsg

			if transition.PublishAttempts >= p.maxPublishAttempts {
				p.logger.WarnContext(messageCtx, "Max publish attempts reached for transition")
				transition.ScheduledAt = nil

				producerMessagesMaxAttemptsCounter.Inc()
			} else {
				scheduledAt := now.Add(time.Duration(transition.PublishAttempts) * p.retryDelay)
				transition.ScheduledAt = &scheduledAt

				producerMessagesRescheduledCounter.Inc()
			}
		} else {
			transition.ScheduledAt = nil
			transition.PublishedAt = &now
			transition.Error = nil

			producerMessagesPublishedCounter.Inc()
		}

		if err := p.outbox.Update(messageCtx, tx, transition); err != nil {
			p.logger.ErrorContext(messageCtx, "Error updating transition", "error", err)
			producerErrorUpdateCounter.Inc()
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		producerErrorUpdateCounter.Inc()
		return
	}

	p.logger.InfoContext(ctx, "Transitions batch committed")
	producerSuccessCounter.Inc()
}

func (p *Producer) toKafkaMessages(transitions []*model.OrderTransition) []kafka.Message {
	kafkaMessages := make([]kafka.Message, 0, len(transitions))

	for _, t := range transitions {
		value, _ := json.Marshal(message.OrderTransition{
			ID:        t.ID,
			OrderID:   t.OrderID,
			OrderCode: t.OrderCode,
			From:      string(t.From),
			To:        string(t.To),
			CreatedAt: t.CreatedAt,
			Attempts:  t.PublishAttempts,
		})

		kafkaMessages = append(kafkaMessages, kafka.Message{
			// order id keeps transitions of one order on one partition
			Key:   []byte(t.OrderID.String()),
			Value: value,
		})
	}
	return kafkaMessages
}
