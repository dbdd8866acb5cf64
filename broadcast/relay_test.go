package broadcast

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"schedule-board/domain"
)

func newRelay(t *testing.T) (*RedisRelay, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { rc.Close() })
	logger, _ := test.NewNullLogger()
	return NewRedisRelay(rc, "board-updates", "board:", logger), m
}

func TestRelayMirrorsEvents(t *testing.T) {
	relay, m := newRelay(t)
	relay.Emit(domain.AddedEvent(1, domain.Task{ID: "t1", Name: "A", Priority: domain.PriorityHigh}))
	relay.Emit(domain.AddedEvent(2, domain.Task{ID: "t2", Name: "B"}))
	relay.Emit(domain.DeletedEvent(3, "t2"))

	snap, err := relay.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Rev != 3 {
		t.Fatalf("expected rev 3, got %d", snap.Rev)
	}
	if len(snap.Tasks) != 1 || snap.Tasks["t1"].Name != "A" || snap.Tasks["t1"].Priority != domain.PriorityHigh {
		t.Fatalf("unexpected tasks %+v", snap.Tasks)
	}
	if got := m.HGet("board:tasks", "t2"); got != "" {
		t.Fatalf("t2 still mirrored: %s", got)
	}
}

func TestRelaySnapshotEmpty(t *testing.T) {
	relay, _ := newRelay(t)
	snap, err := relay.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Rev != 0 || len(snap.Tasks) != 0 || snap.Tasks == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRelayMirrorReplacesState(t *testing.T) {
	relay, _ := newRelay(t)
	relay.Emit(domain.AddedEvent(1, domain.Task{ID: "gone"}))
	err := relay.Mirror(context.Background(), domain.SnapshotEvent(7, domain.Tasks{"t1": {ID: "t1", Name: "A"}}))
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	snap, err := relay.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Rev != 7 || len(snap.Tasks) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := snap.Tasks["gone"]; ok {
		t.Fatal("stale task survived mirror")
	}
}

func TestRelayRunFeedsFollowerHub(t *testing.T) {
	relay, _ := newRelay(t)
	logger, _ := test.NewNullLogger()
	relay.Emit(domain.AddedEvent(1, domain.Task{ID: "t1", Name: "A"}))

	hub := NewHub(relay, 16, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx, hub)
		close(done)
	}()
	// wait for subscription to start
	time.Sleep(50 * time.Millisecond)

	s, err := hub.Join(context.Background())
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	snap := recv(t, s)
	if snap.Type != domain.EventSnapshot || snap.Rev != 1 || snap.Tasks["t1"].Name != "A" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	relay.Emit(domain.AddedEvent(2, domain.Task{ID: "t2", Name: "B"}))
	relay.Emit(domain.DeletedEvent(3, "t1"))
	if ev := recv(t, s); ev.Type != domain.EventTaskAdded || ev.TaskID != "t2" || ev.Task.Name != "B" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev := recv(t, s); ev.Type != domain.EventTaskDeleted || ev.TaskID != "t1" {
		t.Fatalf("unexpected event %+v", ev)
	}

	if err := relay.Mirror(context.Background(), domain.SnapshotEvent(9, domain.Tasks{})); err != nil {
		t.Fatalf("mirror: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("mirror did not force a resync")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit")
	}
}

func TestRelayResyncsAfterReconnect(t *testing.T) {
	relay, m := newRelay(t)
	logger, _ := test.NewNullLogger()
	relay.Emit(domain.AddedEvent(1, domain.Task{ID: "t1", Name: "A"}))

	hub := NewHub(relay, 16, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx, hub)
	time.Sleep(50 * time.Millisecond)

	s, err := hub.Join(context.Background())
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if snap := recv(t, s); snap.Type != domain.EventSnapshot || snap.Rev != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	m.Close()
	if err := m.Restart(); err != nil {
		t.Fatalf("restart miniredis: %v", err)
	}
	// pooled connections died with the server; retry until the write lands
	for i := 0; i < 5 && m.HGet("board:tasks", "missed") == ""; i++ {
		relay.Emit(domain.AddedEvent(5, domain.Task{ID: "missed", Name: "M"}))
	}

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session kept after the subscription reconnected")
	}

	s2, err := hub.Join(context.Background())
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	snap := recv(t, s2)
	if snap.Type != domain.EventSnapshot || snap.Rev != 5 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, ok := snap.Tasks["missed"]; !ok {
		t.Fatalf("snapshot after reconnect lacks missed task: %v", snap.Tasks)
	}
}
