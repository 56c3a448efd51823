package realtime

import (
	"context"

	"github.com/mbd888/paygate/internal/notify"
)

// NotifySink bridges the notification emitter onto the hub so every
// lifecycle event also reaches connected dashboards.
type NotifySink struct {
	hub *Hub
}

// NewNotifySink creates a sink that broadcasts through hub.
func NewNotifySink(hub *Hub) *NotifySink {
	return &NotifySink{hub: hub}
}

func (s *NotifySink) Deliver(_ context.Context, event *notify.Event) error {
	data := map[string]interface{}{
		"event":  string(event.Type),
		"userId": event.UserID,
	}
	for k, v := range event.Data {
		data[k] = v
	}

	s.hub.Broadcast(&Event{
		Type:      eventTypeFor(event.Type),
		Timestamp: event.Timestamp,
		Data:      data,
	})
	return nil
}

func eventTypeFor(t notify.EventType) EventType {
	switch t {
	case notify.EventPaymentRefunded:
		return EventRefund
	case notify.EventFraudAlert:
		return EventFraudAlert
	default:
		return EventPayment
	}
}

var _ notify.Sink = (*NotifySink)(nil)
