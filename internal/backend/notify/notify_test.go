package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestEventPayloads(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{BedClearEvent{BedClear: true}, `{"bed_clear":true}`},
		{BedClearEvent{Error: "camera offline"}, `{"bed_clear":false,"error":"camera offline"}`},
		{ReferenceSetEvent{ReferenceSet: true, ReferenceImage: "reference.jpg"}, `{"reference_set":true,"reference_image":"reference.jpg"}`},
		{ReferenceSetEvent{Error: "boom"}, `{"reference_set":false,"error":"boom"}`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.event)
		if err != nil {
			t.Fatalf("Marshal error: %v", err)
		}
		if string(data) != tt.want {
			t.Errorf("%s payload = %s, want %s", tt.event.Name(), data, tt.want)
		}
	}
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	failure := errors.New("unreachable")
	first := &recordingNotifier{}
	second := &recordingNotifier{err: failure}
	third := &recordingNotifier{}

	err := Multi{first, nil, second, third}.Notify(context.Background(), BedClearEvent{BedClear: true})
	if !errors.Is(err, failure) {
		t.Errorf("expected joined error, got %v", err)
	}
	for i, n := range []*recordingNotifier{first, second, third} {
		if len(n.events) != 1 {
			t.Errorf("notifier %d received %d events", i, len(n.events))
		}
	}
}

func TestLogNotifier(t *testing.T) {
	if err := (LogNotifier{}).Notify(context.Background(), ReferenceSetEvent{ReferenceSet: true}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRedisNotifier_Publishes(t *testing.T) {
	server := miniredis.RunT(t)
	notifier := NewRedisNotifier(RedisConfig{Addr: server.Addr()})
	t.Cleanup(func() { _ = notifier.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := notifier.Ping(ctx); err != nil {
		t.Fatalf("Ping error: %v", err)
	}

	subscriber := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = subscriber.Close() })
	pubsub := subscriber.Subscribe(ctx, DefaultChannel)
	t.Cleanup(func() { _ = pubsub.Close() })
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	if err := notifier.Notify(ctx, BedClearEvent{BedClear: true}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	msg, err := pubsub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage error: %v", err)
	}
	if msg.Payload != `{"bed_clear":true}` {
		t.Errorf("unexpected payload %s", msg.Payload)
	}

	last, err := server.Get(DefaultChannel + ":last:bed_clear")
	if err != nil {
		t.Fatalf("expected stored payload: %v", err)
	}
	if last != `{"bed_clear":true}` {
		t.Errorf("unexpected last payload %s", last)
	}
	if server.Exists(DefaultChannel + ":last:reference_set") {
		t.Error("expected no stored reference_set payload")
	}
}

func TestRedisNotifier_Unreachable(t *testing.T) {
	server := miniredis.RunT(t)
	notifier := NewRedisNotifier(RedisConfig{Addr: server.Addr(), Channel: "custom"})
	t.Cleanup(func() { _ = notifier.Close() })
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := notifier.Notify(ctx, BedClearEvent{}); err == nil {
		t.Error("expected error when redis is down")
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BroadcastsToClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	if err := hub.Notify(ctx, BedClearEvent{BedClear: true}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	if string(data) != `{"event":"bed_clear","payload":{"bed_clear":true}}` {
		t.Errorf("unexpected message %s", data)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_KeepsIdleClientsAlive(t *testing.T) {
	hub := NewHub()
	hub.pingPeriod = 20 * time.Millisecond
	hub.pongWait = 100 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()

	// reading answers the hub's pings with pongs
	messages := make(chan []byte, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(messages)
				return
			}
			messages <- data
		}
	}()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	time.Sleep(5 * hub.pongWait)
	if count := hub.ClientCount(); count != 1 {
		t.Fatalf("expected idle client to stay connected, got %d clients", count)
	}

	if err := hub.Notify(ctx, ReferenceSetEvent{ReferenceSet: true}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	select {
	case data, ok := <-messages:
		if !ok {
			t.Fatal("connection closed before the event arrived")
		}
		if string(data) != `{"event":"reference_set","payload":{"reference_set":true}}` {
			t.Errorf("unexpected message %s", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestHub_NotifyAfterStop(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if err := hub.Notify(context.Background(), BedClearEvent{}); err != nil {
		t.Errorf("expected no error after stop, got %v", err)
	}
}
