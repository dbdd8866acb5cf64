package broadcast

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"schedule-board/domain"
)

const relayWriteTimeout = 2 * time.Second

// RedisRelay mirrors the board into Redis and publishes every change event so
// stream followers can serve replicas without holding the store themselves.
//
// Layout: <prefix>tasks is a hash of id to task JSON, <prefix>rev holds the
// revision that hash reflects, and every committed event is published on
// channel as a wire frame.
type RedisRelay struct {
	rc      *redis.Client
	channel string
	prefix  string
	logger  *log.Logger
}

// NewRedisRelay creates a relay on rc.
func NewRedisRelay(rc *redis.Client, channel, prefix string, logger *log.Logger) *RedisRelay {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisRelay{rc: rc, channel: channel, prefix: prefix, logger: logger}
}

func (r *RedisRelay) tasksKey() string { return r.prefix + "tasks" }
func (r *RedisRelay) revKey() string   { return r.prefix + "rev" }

// Emit records ev in the mirror and publishes it in one transaction.
func (r *RedisRelay) Emit(ev domain.ChangeEvent) {
	if !ev.Incremental() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayWriteTimeout)
	defer cancel()
	if err := r.publish(ctx, ev); err != nil {
		r.logger.WithFields(log.Fields{"event": ev.Type, "task_id": ev.TaskID, "rev": ev.Rev}).
			Errorf("relay publish: %v", err)
	}
}

func (r *RedisRelay) publish(ctx context.Context, ev domain.ChangeEvent) error {
	frame, err := domain.EncodeFrame(ev)
	if err != nil {
		return err
	}
	var body []byte
	if ev.Type == domain.EventTaskAdded {
		if body, err = sonic.Marshal(ev.Task); err != nil {
			return err
		}
	}
	_, err = r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		switch ev.Type {
		case domain.EventTaskAdded:
			p.HSet(ctx, r.tasksKey(), ev.TaskID, body)
		case domain.EventTaskDeleted:
			p.HDel(ctx, r.tasksKey(), ev.TaskID)
		}
		p.Set(ctx, r.revKey(), strconv.FormatUint(ev.Rev, 10), 0)
		p.Publish(ctx, r.channel, frame)
		return nil
	})
	return err
}

// Mirror replaces the mirrored mapping with snap and announces it, which makes
// followers drop their sessions and resynchronise.
func (r *RedisRelay) Mirror(ctx context.Context, snap domain.ChangeEvent) error {
	frame, err := domain.EncodeFrame(snap)
	if err != nil {
		return err
	}
	fields := make(map[string]interface{}, len(snap.Tasks))
	for id, t := range snap.Tasks {
		body, err := sonic.Marshal(t)
		if err != nil {
			return err
		}
		fields[id] = body
	}
	_, err = r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.tasksKey())
		if len(fields) > 0 {
			p.HSet(ctx, r.tasksKey(), fields)
		}
		p.Set(ctx, r.revKey(), strconv.FormatUint(snap.Rev, 10), 0)
		p.Publish(ctx, r.channel, frame)
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.WithFields(log.Fields{"tasks": len(fields), "rev": snap.Rev}).Info("relay mirror refreshed")
	return nil
}

// Snapshot reads the mirrored mapping and its revision atomically.
func (r *RedisRelay) Snapshot(ctx context.Context) (domain.ChangeEvent, error) {
	var (
		all *redis.MapStringStringCmd
		rev *redis.StringCmd
	)
	_, err := r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		all = p.HGetAll(ctx, r.tasksKey())
		rev = p.Get(ctx, r.revKey())
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.ChangeEvent{}, err
	}
	tasks := domain.Tasks{}
	for id, body := range all.Val() {
		var t domain.Task
		if err := sonic.UnmarshalString(body, &t); err != nil {
			return domain.ChangeEvent{}, err
		}
		t.ID = id
		tasks[id] = t
	}
	var n uint64
	if s, err := rev.Result(); err == nil {
		if n, err = strconv.ParseUint(s, 10, 64); err != nil {
			return domain.ChangeEvent{}, err
		}
	} else if !errors.Is(err, redis.Nil) {
		return domain.ChangeEvent{}, err
	}
	return domain.ChangeEvent{Type: domain.EventSnapshot, Rev: n, Tasks: tasks}, nil
}

// Run forwards published events to hub until ctx is cancelled. Every
// subscribe confirmation, including the ones go-redis produces when it
// silently reconnects, and every mirror announcement drops all sessions
// since events may have been missed.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) {
	for {
		r.subscribe(ctx, hub)
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("relay subscription closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *RedisRelay) subscribe(ctx context.Context, hub *Hub) {
	sub := r.rc.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			r.logger.Errorf("relay subscribe: %v", err)
		}
		return
	}
	hub.Resync()
	ch := sub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			switch msg := raw.(type) {
			case *redis.Subscription:
				if msg.Kind == "subscribe" {
					r.logger.Warn("relay resubscribed; resyncing sessions")
					hub.Resync()
				}
			case *redis.Message:
				r.forward(hub, msg.Payload)
			}
		}
	}
}

func (r *RedisRelay) forward(hub *Hub, payload string) {
	ev, err := domain.DecodeFrame([]byte(payload))
	if err != nil {
		r.logger.Errorf("relay decode: %v", err)
		return
	}
	if ev.Type == domain.EventSnapshot {
		hub.Resync()
		return
	}
	hub.Emit(ev)
}
