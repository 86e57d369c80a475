package state

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

var _ PrimitiveStorage = &RedisStorage{}

// RedisStorage is a PrimitiveStorage backed by a redis instance. It lets a
// simulation session outlive the process (or share state between sessions);
// tests run it against miniredis.
type RedisStorage struct {
	currentClient redis.Cmdable
}

func NewRedisStorage(client redis.Cmdable) *RedisStorage {
	return &RedisStorage{
		currentClient: client,
	}
}

// NewRedisStorageWithOptions dials a redis instance at the given address.
func NewRedisStorageWithOptions(addr, password string) *RedisStorage {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	return NewRedisStorage(client)
}

func (r *RedisStorage) GetBytes(ctx context.Context, key string) ([]byte, error) {
	bz, err := r.currentClient.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, eris.Wrapf(ErrNotFound, "key %q", key)
		}
		return nil, eris.Wrap(err, "")
	}
	return bz, nil
}

func (r *RedisStorage) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.currentClient.Exists(ctx, key).Result()
	if err != nil {
		return false, eris.Wrap(err, "")
	}
	return n > 0, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	return eris.Wrap(r.currentClient.Set(ctx, key, value, 0).Err(), "")
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return eris.Wrap(r.currentClient.Del(ctx, key).Err(), "")
}

func (r *RedisStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := r.currentClient.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	return keys, nil
}

func (r *RedisStorage) StartTransaction(_ context.Context) (Transaction, error) {
	return &redisTransaction{pipeline: r.currentClient.TxPipeline()}, nil
}

func (r *RedisStorage) Close(ctx context.Context) error {
	client, ok := r.currentClient.(*redis.Client)
	if !ok {
		return nil
	}
	return eris.Wrap(client.Close(), "")
}

// redisTransaction queues writes on a redis transaction pipeline and
// executes them atomically on EndTransaction.
type redisTransaction struct {
	pipeline redis.Pipeliner
}

func (t *redisTransaction) Set(ctx context.Context, key string, value []byte) error {
	return eris.Wrap(t.pipeline.Set(ctx, key, value, 0).Err(), "")
}

func (t *redisTransaction) Delete(ctx context.Context, key string) error {
	return eris.Wrap(t.pipeline.Del(ctx, key).Err(), "")
}

func (t *redisTransaction) EndTransaction(ctx context.Context) error {
	_, err := t.pipeline.Exec(ctx)
	return eris.Wrap(err, "")
}
