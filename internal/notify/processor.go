package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"payment-service/internal/config"
	"payment-service/internal/logcontext"
	"payment-service/internal/message"
)

const (
	defaultParallelism     = 100
	defaultMaxSendAttempts = 3
	defaultRetryDelay      = time.Second
)

var (
	processorSkippedCounter   = metrics.GetOrCreateCounter(`notification_processor_total{result="skipped"}`)
	processorDeliveredCounter = metrics.GetOrCreateCounter(`notification_processor_total{result="delivered"}`)
	processorGaveUpCounter    = metrics.GetOrCreateCounter(`notification_processor_total{result="gave_up"}`)
)

type Notifier interface {
	Send(ctx context.Context, notification message.Notification) error
}

// Processor turns order transition messages into downstream notifications
// for the configured target states.
type Processor struct {
	sender      Notifier
	states      map[string]bool
	sem         chan struct{}
	maxAttempts int
	retryDelay  time.Duration
	wg          sync.WaitGroup
	logger      *slog.Logger
}

func NewProcessor(sender Notifier, cfg config.Notify, logger *slog.Logger) *Processor {
	states := make(map[string]bool, len(cfg.States))
	for _, state := range cfg.States {
		states[state] = true
	}

	return &Processor{
		sender:      sender,
		states:      states,
		sem:         make(chan struct{}, orDefault(cfg.Sender.Parallelism, defaultParallelism)),
		maxAttempts: defaultMaxSendAttempts,
		retryDelay:  defaultRetryDelay,
		logger:      logger,
	}
}

// Process hands the notification to a worker and returns. It blocks only
// while all workers are busy.
func (p *Processor) Process(ctx context.Context, transition message.OrderTransition) error {
	ctx = logcontext.AppendCtx(ctx, slog.String("orderId", transition.OrderID.String()))

	if !p.states[transition.To] {
		processorSkippedCounter.Inc()
		p.logger.DebugContext(ctx, "No notification for state", "state", transition.To)
		return nil
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()

		notification := message.Notification{
			ID:         transition.ID,
			OrderID:    transition.OrderID,
			OrderCode:  transition.OrderCode,
			State:      transition.To,
			Previous:   transition.From,
			OccurredAt: transition.CreatedAt,
		}

		for attempt := 1; attempt <= p.maxAttempts; attempt++ {
			err := p.sender.Send(ctx, notification)
			if err == nil {
				processorDeliveredCounter.Inc()
				return
			}
			p.logger.WarnContext(ctx, "Error sending notification", "attempt", attempt, "error", err)
			if attempt == p.maxAttempts {
				break
			}

			select {
			case <-time.After(time.Duration(attempt) * p.retryDelay):
			case <-ctx.Done():
				return
			}
		}

		processorGaveUpCounter.Inc()
		p.logger.ErrorContext(ctx, "Giving up on notification", "state", transition.To)
	}()

	return nil
}

// Wait blocks until in-flight notifications finish.
func (p *Processor) Wait() {
	p.wg.Wait()
}
