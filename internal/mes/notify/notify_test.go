package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/testutil"
	"github.com/redis/go-redis/v9"
)

func sampleEvent() entity.ChangeEvent {
	return entity.ChangeEvent{PartType: "底座", ItemID: "A1", Field: "成品研磨", OldValue: 0, NewValue: 3, Actor: "admin", Timestamp: "2026-01-15 08:00:00"}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	a := &Client{ID: "a", Events: make(chan Event, 1)}
	b := &Client{ID: "b", Events: make(chan Event, 1)}
	hub.Register(a)
	hub.Register(b)

	if err := hub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, c := range []*Client{a, b} {
		ev := <-c.Events
		if ev.EventType != EventInventoryUpdate {
			t.Errorf("event type = %s", ev.EventType)
		}
		var got entity.ChangeEvent
		if err := json.Unmarshal([]byte(ev.Data), &got); err != nil || got != sampleEvent() {
			t.Errorf("payload mismatch: %+v %v", got, err)
		}
	}

	// 缓冲区满时不阻塞
	hub.Broadcast(Event{EventType: "x"})
	hub.Broadcast(Event{EventType: "y"})

	hub.Unregister("a")
	if hub.Count() != 1 {
		t.Errorf("count = %d, want 1", hub.Count())
	}
	<-a.Events
	if _, ok := <-a.Events; ok {
		t.Errorf("channel should be closed after unregister")
	}
}

type failing struct{ err error }

func (f failing) Publish(context.Context, entity.ChangeEvent) error { return f.err }

func TestMultiReturnsFirstError(t *testing.T) {
	hub := NewHub(nil)
	c := &Client{ID: "c", Events: make(chan Event, 1)}
	hub.Register(c)

	boom := errors.New("boom")
	err := Multi{failing{boom}, hub}.Publish(context.Background(), sampleEvent())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(c.Events) != 1 {
		t.Errorf("hub should still receive the event")
	}
}

func TestRedisRelay(t *testing.T) {
	testutil.LoadEnv()
	client := redis.NewClient(&redis.Options{Addr: testutil.GetEnv("REDIS_ADDR", "localhost:6379")})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Close()

	channel := "mes:test:" + time.Now().Format("150405.000")
	n := NewRedisNotifier(client, channel, nil)
	hub := NewHub(nil)
	c := &Client{ID: "r", Events: make(chan Event, 1)}
	hub.Register(c)

	go n.Relay(ctx, hub)
	// 等待订阅建立
	time.Sleep(200 * time.Millisecond)

	if err := n.Publish(ctx, sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-c.Events:
		if ev.EventType != EventInventoryUpdate {
			t.Errorf("event type = %s", ev.EventType)
		}
	case <-ctx.Done():
		t.Fatal("no event relayed")
	}
}
