package storage

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"schedule-board/domain"
)

// Sink receives committed change events after the fact. Implementations back
// persistence and the change feed; none of them sit on the command path.
type Sink interface {
	Apply(ctx context.Context, ev domain.ChangeEvent) error
}

// Persister is a Sink the store can be reloaded from at startup.
type Persister interface {
	Sink
	Load(ctx context.Context) (domain.Tasks, error)
	Close() error
}

// WriterConfig tunes the write-behind pool.
type WriterConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

type writeJob struct {
	ev domain.ChangeEvent
}

// Writer hands committed events to sinks on background workers. Events for the
// same task id always land on the same worker so their order is preserved.
type Writer struct {
	cfg    WriterConfig
	sinks  []Sink
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	shards []chan writeJob
	wg     sync.WaitGroup
}

// NewWriter starts cfg.Workers goroutines feeding sinks.
func NewWriter(cfg WriterConfig, logger *log.Logger, sinks ...Sink) *Writer {
	if logger == nil {
		panic("storage.NewWriter: logger is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	w := &Writer{cfg: cfg, sinks: sinks, logger: logger}
	perShard := cfg.Buffer / cfg.Workers
	if perShard <= 0 {
		perShard = 1
	}
	w.shards = make([]chan writeJob, cfg.Workers)
	for i := range w.shards {
		w.shards[i] = make(chan writeJob, perShard)
		w.wg.Add(1)
		go w.worker(i, w.shards[i])
	}
	logger.Infof("write-behind started, workers: %d, buffer: %d, sinks: %d, timeout: %v, handoff: %v",
		cfg.Workers, perShard*cfg.Workers, len(sinks), cfg.Timeout, cfg.HandoffTimeout)
	return w
}

func (w *Writer) worker(id int, jobs <-chan writeJob) {
	defer w.wg.Done()
	for j := range jobs {
		for _, s := range w.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
			err := s.Apply(ctx, j.ev)
			cancel()
			if err != nil {
				w.logger.WithFields(log.Fields{
					"event":   j.ev.Type,
					"task_id": j.ev.TaskID,
					"rev":     j.ev.Rev,
					"worker":  id,
				}).Errorf("sink apply failed: %v", err)
			}
		}
	}
}

func (w *Writer) shardFor(id string) chan writeJob {
	return w.shards[xxhash.Sum64String(id)%uint64(len(w.shards))]
}

// Emit queues ev for every sink. Snapshot events are ignored. When the shard
// is full Emit waits for the handoff timeout and then blocks, since dropping
// or reordering writes for one id would corrupt the backend.
func (w *Writer) Emit(ev domain.ChangeEvent) {
	if !ev.Incremental() || len(w.sinks) == 0 {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	ch := w.shardFor(ev.TaskID)
	job := writeJob{ev: ev}

	select {
	case ch <- job:
		return
	default:
	}

	if w.cfg.HandoffTimeout > 0 {
		timer := time.NewTimer(w.cfg.HandoffTimeout)
		defer timer.Stop()
		select {
		case ch <- job:
			return
		case <-timer.C:
		}
	}

	w.logger.Warn("write-behind buffer saturated; waiting for worker")
	ch <- job
}

// Close drains queued jobs and stops the workers.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, ch := range w.shards {
		close(ch)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
