package persistence

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
)

// RedisOptions configures the redis-backed store.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
	// TTL expires execution records; zero keeps them forever.
	TTL time.Duration
}

// RedisStore keeps executions in Redis: one JSON value per execution
// plus sorted-set indexes by state and by definition, scored by start
// time so listings come back newest first.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore dials redis and verifies the connection.
func NewRedisStore(opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to connect to redis").WithCause(err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "mintflow:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix + "execution:",
		ttl:    opts.TTL,
		logger: logger.With(zap.String("component", "redis_store")),
	}, nil
}

func (s *RedisStore) dataKey(id string) string { return s.prefix + "data:" + id }

func (s *RedisStore) stateKey(state engine.ExecutionState) string {
	return s.prefix + "state:" + string(state)
}

func (s *RedisStore) definitionKey(defID string) string {
	return s.prefix + "definition:" + defID
}

func (s *RedisStore) allKey() string { return s.prefix + "all" }

// RecordExecution upserts the execution and refreshes its indexes. A
// re-recorded execution is moved out of its previous state index.
func (s *RedisStore) RecordExecution(ctx context.Context, exec *engine.Execution) error {
	if exec == nil || exec.ID == "" {
		return types.NewError(types.ErrStorage, "execution has no id")
	}
	data, err := json.Marshal(exec)
	if err != nil {
		return types.NewError(types.ErrStorage, "failed to marshal execution").WithCause(err)
	}

	prev, _ := s.Execution(ctx, exec.ID)
	score := float64(exec.StartedAt.UnixNano())

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.dataKey(exec.ID), data, s.ttl)
	if prev != nil && prev.State != exec.State {
		pipe.ZRem(ctx, s.stateKey(prev.State), exec.ID)
	}
	pipe.ZAdd(ctx, s.stateKey(exec.State), redis.Z{Score: score, Member: exec.ID})
	pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: exec.ID})
	if exec.DefinitionID != "" {
		pipe.ZAdd(ctx, s.definitionKey(exec.DefinitionID), redis.Z{Score: score, Member: exec.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStorage, "failed to record execution").WithCause(err)
	}
	return nil
}

// Execution retrieves one execution by id.
func (s *RedisStore) Execution(ctx context.Context, id string) (*engine.Execution, error) {
	data, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to read execution").WithCause(err)
	}
	var exec engine.Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to unmarshal execution").WithCause(err)
	}
	return &exec, nil
}

// Executions lists stored executions newest first, using the narrowest
// index the query allows.
func (s *RedisStore) Executions(ctx context.Context, q Query) ([]*engine.Execution, error) {
	key := s.allKey()
	switch {
	case q.State != "":
		key = s.stateKey(q.State)
	case q.DefinitionID != "":
		key = s.definitionKey(q.DefinitionID)
	}

	ids, err := s.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to list executions").WithCause(err)
	}

	out := make([]*engine.Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := s.Execution(ctx, id)
		if err != nil {
			// Expired data keys leave dangling index members behind.
			continue
		}
		if q.DefinitionID != "" && exec.DefinitionID != q.DefinitionID {
			continue
		}
		if q.State != "" && exec.State != q.State {
			continue
		}
		out = append(out, exec)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Delete removes the execution and its index entries.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	exec, err := s.Execution(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.dataKey(id))
	pipe.ZRem(ctx, s.stateKey(exec.State), id)
	pipe.ZRem(ctx, s.allKey(), id)
	if exec.DefinitionID != "" {
		pipe.ZRem(ctx, s.definitionKey(exec.DefinitionID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStorage, "failed to delete execution").WithCause(err)
	}
	return nil
}

// Cleanup deletes terminal executions that started before the cutoff
// and returns how many were removed.
func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := strconv.FormatInt(time.Now().Add(-olderThan).UnixNano(), 10)
	count := 0
	for _, state := range []engine.ExecutionState{
		engine.StateCompleted, engine.StateFailed, engine.StateCancelled, engine.StateTimedOut,
	} {
		ids, err := s.client.ZRangeByScore(ctx, s.stateKey(state), &redis.ZRangeBy{
			Min: "-inf",
			Max: cutoff,
		}).Result()
		if err != nil {
			return count, types.NewError(types.ErrStorage, "failed to scan executions for cleanup").WithCause(err)
		}
		for _, id := range ids {
			if err := s.Delete(ctx, id); err == nil {
				count++
			}
		}
	}
	if count > 0 {
		s.logger.Info("cleaned up executions", zap.Int("count", count))
	}
	return count, nil
}

// Ping checks the redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
