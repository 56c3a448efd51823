package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/paygate/internal/logging"
	"github.com/mbd888/paygate/internal/notify"
)

func testHub() *Hub {
	return NewHub(logging.NewNop())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventPayment, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventPayment, EventRefund},
	}}

	paymentEvent := &Event{Type: EventPayment}
	refundEvent := &Event{Type: EventRefund}
	fraudEvent := &Event{Type: EventFraudAlert}

	if !h.shouldSend(client, paymentEvent) {
		t.Error("Should receive payment events")
	}
	if !h.shouldSend(client, refundEvent) {
		t.Error("Should receive refund events")
	}
	if h.shouldSend(client, fraudEvent) {
		t.Error("Should NOT receive fraud_alert events")
	}
}

func TestShouldSend_UserFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"usr_1"},
	}}

	matching := &Event{
		Type: EventPayment,
		Data: map[string]interface{}{"userId": "usr_1"},
	}
	notMatching := &Event{
		Type: EventPayment,
		Data: map[string]interface{}{"userId": "usr_2"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on userId")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other users")
	}
}

func TestShouldSend_MinAmountFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinAmount: 10.0,
	}}

	large := &Event{
		Type: EventPayment,
		Data: map[string]interface{}{"amount": "15.00"},
	}
	small := &Event{
		Type: EventPayment,
		Data: map[string]interface{}{"amount": "5.00"},
	}
	fraud := &Event{
		Type: EventFraudAlert,
		Data: map[string]interface{}{"score": 0.9},
	}

	if !h.shouldSend(client, large) {
		t.Error("Should receive large payment")
	}
	if h.shouldSend(client, small) {
		t.Error("Should NOT receive small payment")
	}
	if !h.shouldSend(client, fraud) {
		t.Error("MinAmount filter should only apply to payments and refunds")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventPayment}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"usr_1"},
	}}

	event := &Event{
		Type: EventPayment,
		Data: "string data not a map",
	}

	// User filter skips non-map data (can't extract userId), so event passes through
	if !h.shouldSend(client, event) {
		t.Error("Non-map data should pass through when user filter can't extract IDs")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&Event{Type: EventPayment, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastPayment(map[string]interface{}{
		"userId": "usr_1", "amount": "5.00", "status": "COMPLETED",
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestNotifySinkBroadcasts(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventFraudAlert}},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	sink := NewNotifySink(h)
	err := sink.Deliver(ctx, &notify.Event{
		Type:      notify.EventFraudAlert,
		UserID:    "usr_1",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"score": 0.9, "tier": "HIGH"},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive fraud alert")
	}
}
