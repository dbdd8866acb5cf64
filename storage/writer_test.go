package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"schedule-board/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	err    error
	block  chan struct{}
}

func (r *recordingSink) Apply(ctx context.Context, ev domain.ChangeEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) Events() []domain.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChangeEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestWriterPreservesOrderPerTask(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(WriterConfig{Workers: 4, Buffer: 64}, log.New(), sink)

	for i := 1; i <= 20; i++ {
		w.Emit(domain.AddedEvent(uint64(i), domain.Task{ID: "same", Name: "v"}))
	}
	w.Emit(domain.DeletedEvent(21, "same"))
	w.Close()

	events := sink.Events()
	if len(events) != 21 {
		t.Fatalf("expected 21 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Rev != uint64(i+1) {
			t.Fatalf("event %d out of order: rev %d", i, ev.Rev)
		}
	}
	if events[20].Type != domain.EventTaskDeleted {
		t.Fatalf("expected delete last, got %s", events[20].Type)
	}
}

func TestWriterIgnoresSnapshots(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(WriterConfig{Workers: 1, Buffer: 4}, log.New(), sink)
	w.Emit(domain.SnapshotEvent(1, domain.Tasks{"a": {ID: "a"}}))
	w.Close()
	if n := len(sink.Events()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestWriterLogsSinkFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &recordingSink{err: errors.New("backend down")}
	w := NewWriter(WriterConfig{Workers: 1, Buffer: 4}, logger, sink)
	w.Emit(domain.AddedEvent(1, domain.Task{ID: "a"}))
	w.Close()

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.ErrorLevel && entry.Data["task_id"] == "a" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error log for failed sink")
	}
}

func TestWriterWaitsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	sink := &recordingSink{block: release}
	w := NewWriter(WriterConfig{Workers: 1, Buffer: 1, HandoffTimeout: 10 * time.Millisecond}, log.New(), sink)

	// first job is picked up by the worker and blocks, second fills the buffer
	w.Emit(domain.AddedEvent(1, domain.Task{ID: "a"}))
	w.Emit(domain.AddedEvent(2, domain.Task{ID: "a"}))

	done := make(chan struct{})
	go func() {
		w.Emit(domain.AddedEvent(3, domain.Task{ID: "a"}))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("emit returned while buffer was full")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit did not complete after capacity freed")
	}
	w.Close()
	if n := len(sink.Events()); n != 3 {
		t.Fatalf("expected 3 events, got %d", n)
	}
}

func TestWriterEmitAfterCloseIsNoop(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(WriterConfig{Workers: 1, Buffer: 1}, log.New(), sink)
	w.Close()
	w.Emit(domain.AddedEvent(1, domain.Task{ID: "a"}))
	w.Close()
	if n := len(sink.Events()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}
