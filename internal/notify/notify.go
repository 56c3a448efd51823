// Package notify delivers payment lifecycle notifications.
//
// Delivery is fire-and-forget: the payment path never waits on or fails
// because of a notification. Failures are logged and counted, nothing
// more.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/paygate/internal/idgen"
	"github.com/mbd888/paygate/internal/metrics"
)

// EventType identifies a notification event.
type EventType string

const (
	EventPaymentConfirmed EventType = "payment.confirmed"
	EventPaymentRefunded  EventType = "payment.refunded"
	EventPaymentCancelled EventType = "payment.cancelled"
	EventPaymentFailed    EventType = "payment.failed"
	EventFraudAlert       EventType = "fraud.alert"
)

// Event is a single notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	UserID    string                 `json:"userId"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Sink delivers events somewhere: email, a websocket feed, a log.
type Sink interface {
	Deliver(ctx context.Context, event *Event) error
}

const deliverTimeout = 10 * time.Second

// Emitter fans events out to its sinks asynchronously.
type Emitter struct {
	sinks  []Sink
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewEmitter creates an emitter delivering to the given sinks.
func NewEmitter(logger *slog.Logger, sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, logger: logger}
}

// Wait blocks until all in-flight deliveries finish. Called on shutdown
// and by tests.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

func (e *Emitter) emit(userID string, eventType EventType, data map[string]interface{}) {
	if e == nil {
		return
	}
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      data,
	}
	for _, sink := range e.sinks {
		e.wg.Add(1)
		go func(s Sink) {
			defer e.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
			defer cancel()
			if err := s.Deliver(ctx, event); err != nil {
				metrics.NotificationsTotal.WithLabelValues(string(eventType), "error").Inc()
				e.logger.Warn("notification delivery failed",
					"event", eventType, "user", userID, "error", err)
				return
			}
			metrics.NotificationsTotal.WithLabelValues(string(eventType), "ok").Inc()
		}(sink)
	}
}

// EmitPaymentConfirmed announces a completed payment.
func (e *Emitter) EmitPaymentConfirmed(userID, paymentID, amount, currency string) {
	e.emit(userID, EventPaymentConfirmed, map[string]interface{}{
		"paymentId": paymentID,
		"amount":    amount,
		"currency":  currency,
	})
}

// EmitPaymentRefunded announces a refund, full or partial.
func (e *Emitter) EmitPaymentRefunded(userID, paymentID, refundAmount, currency string) {
	e.emit(userID, EventPaymentRefunded, map[string]interface{}{
		"paymentId":    paymentID,
		"refundAmount": refundAmount,
		"currency":     currency,
	})
}

// EmitPaymentCancelled announces a cancelled payment.
func (e *Emitter) EmitPaymentCancelled(userID, paymentID, reason string) {
	e.emit(userID, EventPaymentCancelled, map[string]interface{}{
		"paymentId": paymentID,
		"reason":    reason,
	})
}

// EmitPaymentFailed announces a payment that failed during settlement.
func (e *Emitter) EmitPaymentFailed(userID, paymentID, reason string) {
	e.emit(userID, EventPaymentFailed, map[string]interface{}{
		"paymentId": paymentID,
		"reason":    reason,
	})
}

// EmitFraudAlert announces a blocked or high-risk payment.
func (e *Emitter) EmitFraudAlert(userID, paymentID string, score float64, tier string) {
	e.emit(userID, EventFraudAlert, map[string]interface{}{
		"paymentId": paymentID,
		"score":     score,
		"tier":      tier,
	})
}
