package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Tracker remembers tasks that should be abandoned if the process exits
// before their operation finishes.
type Tracker interface {
	Track(ctx context.Context, opID string, h Handle) error
	Untrack(ctx context.Context, opID string) error
	Pending(ctx context.Context) (map[string]Handle, error)
}

// MemoryTracker is a process-local Tracker.
type MemoryTracker struct {
	mu      sync.Mutex
	handles map[string]Handle
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{handles: make(map[string]Handle)}
}

func (t *MemoryTracker) Track(_ context.Context, opID string, h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles[opID] = h
	return nil
}

func (t *MemoryTracker) Untrack(_ context.Context, opID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handles, opID)
	return nil
}

func (t *MemoryTracker) Pending(context.Context) (map[string]Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Handle, len(t.handles))
	for k, v := range t.handles {
		out[k] = v
	}
	return out, nil
}

// hashStore is the subset of Redis hash commands RedisTracker needs.
type hashStore interface {
	HSet(ctx context.Context, key, field string, value []byte) error
	HDel(ctx context.Context, key, field string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

type redisHash struct{ c *redis.Client }

func (r redisHash) HSet(ctx context.Context, key, field string, value []byte) error {
	return r.c.HSet(ctx, key, field, value).Err()
}

func (r redisHash) HDel(ctx context.Context, key, field string) error {
	return r.c.HDel(ctx, key, field).Err()
}

func (r redisHash) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.c.HGetAll(ctx, key).Result()
}

// trackedTask is the JSON stored per op id. Owner is the id of the
// process that started the operation.
type trackedTask struct {
	Owner  string `json:"owner"`
	Handle Handle `json:"handle"`
}

// RedisTracker keeps tracked tasks in one Redis hash (op id -> trackedTask)
// that several processes may share. Each tracker only lists and removes
// the entries it owns.
type RedisTracker struct {
	client *redis.Client
	hash   hashStore
	key    string
	owner  string
}

func NewRedisTracker(redisURL, key string) (*RedisTracker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisTracker{client: c, hash: redisHash{c}, key: key, owner: uuid.NewString()}, nil
}

func (t *RedisTracker) Track(ctx context.Context, opID string, h Handle) error {
	b, err := json.Marshal(trackedTask{Owner: t.owner, Handle: h})
	if err != nil {
		return err
	}
	return t.hash.HSet(ctx, t.key, opID, b)
}

// Untrack deletes by op id. Op ids are uuids, so this never touches
// another process's entry.
func (t *RedisTracker) Untrack(ctx context.Context, opID string) error {
	return t.hash.HDel(ctx, t.key, opID)
}

// Pending lists the entries this tracker owns. Entries of other
// processes are left alone.
func (t *RedisTracker) Pending(ctx context.Context) (map[string]Handle, error) {
	raw, err := t.hash.HGetAll(ctx, t.key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Handle)
	for opID, v := range raw {
		var e trackedTask
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			log.Debug().Str("op_id", opID).Err(err).Msg("skipping unreadable tracked task")
			continue
		}
		if e.Owner != t.owner {
			continue
		}
		out[opID] = e.Handle
	}
	return out, nil
}

// Ping checks redis connectivity.
func (t *RedisTracker) Ping(ctx context.Context) error { return t.client.Ping(ctx).Err() }

func (t *RedisTracker) Close() error { return t.client.Close() }

// Abandoner is the part of Client used by AbandonPending.
type Abandoner interface {
	Abandon(ctx context.Context, h Handle) error
}

// AbandonPending reports every still-tracked task to the server and
// untracks it. Failures are logged and skipped; the count of tasks
// reported is returned with the joined errors.
func AbandonPending(ctx context.Context, api Abandoner, t Tracker) (int, error) {
	pending, err := t.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tracked tasks: %w", err)
	}
	n := 0
	var errs []error
	for opID, h := range pending {
		if err := api.Abandon(ctx, h); err != nil {
			log.Warn().Err(err).Str("op_id", opID).Str("task_id", h.TaskID).Msg("abandon failed")
			errs = append(errs, err)
			continue
		}
		if err := t.Untrack(ctx, opID); err != nil {
			errs = append(errs, err)
		}
		n++
		log.Info().Str("op_id", opID).Str("task_id", h.TaskID).Msg("abandoned task")
	}
	return n, errors.Join(errs...)
}
