package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"payment-service/internal/config"
	"payment-service/internal/message"
)

type recordingNotifier struct {
	mu       sync.Mutex
	sent     []message.Notification
	failures int
}

func (n *recordingNotifier) Send(_ context.Context, notification message.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return errors.New("endpoint down")
	}
	n.sent = append(n.sent, notification)
	return nil
}

func newTestProcessor(notifier Notifier) *Processor {
	p := NewProcessor(notifier, config.Notify{
		States: []string{"Cancelled", "PaymentSettled"},
		Sender: config.NotifySender{Parallelism: 2},
	}, discardLogger())
	p.retryDelay = time.Millisecond
	return p
}

func transitionTo(to string) message.OrderTransition {
	return message.OrderTransition{
		ID:        uuid.New(),
		OrderID:   uuid.New(),
		OrderCode: "ORD-1",
		From:      "ArrangingPayment",
		To:        to,
		CreatedAt: time.Now(),
	}
}

func TestProcessor_NotifiesTargetStates(t *testing.T) {
	notifier := &recordingNotifier{}
	p := newTestProcessor(notifier)

	for _, state := range []string{"PaymentSettled", "PaymentAuthorized", "Cancelled", "Declined"} {
		assert.NoError(t, p.Process(context.Background(), transitionTo(state)))
	}
	p.Wait()

	var states []string
	for _, n := range notifier.sent {
		states = append(states, n.State)
	}
	assert.ElementsMatch(t, []string{"PaymentSettled", "Cancelled"}, states)
}

func TestProcessor_RetriesFailedSend(t *testing.T) {
	notifier := &recordingNotifier{failures: 2}
	p := newTestProcessor(notifier)

	transition := transitionTo("PaymentSettled")
	assert.NoError(t, p.Process(context.Background(), transition))
	p.Wait()

	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, transition.OrderCode, notifier.sent[0].OrderCode)
	assert.Equal(t, "ArrangingPayment", notifier.sent[0].Previous)
}

func TestProcessor_GivesUp(t *testing.T) {
	notifier := &recordingNotifier{failures: 10}
	p := newTestProcessor(notifier)

	assert.NoError(t, p.Process(context.Background(), transitionTo("Cancelled")))
	p.Wait()

	assert.Empty(t, notifier.sent)
	assert.Equal(t, 7, notifier.failures)
}
