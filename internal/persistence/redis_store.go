package persistence

import (
	"context"
	"errors"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/botflow/pkg/api"
)

// RedisFlowStore is a FlowStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>flow:<bot>   => JSON-encoded FlowGraph
//	<prefix>idx:flows    => SET of stored bot ids
//
// Both keys are written in one MULTI/EXEC transaction.
type RedisFlowStore struct {
	client redis.UniversalClient
	prefix string
}

var _ FlowStore = (*RedisFlowStore)(nil)

// NewRedisFlowStore creates a RedisFlowStore.
// prefix is optional but recommended (e.g. "botflow:").
func NewRedisFlowStore(client redis.UniversalClient, prefix string) *RedisFlowStore {
	if prefix == "" {
		prefix = "botflow:"
	}
	return &RedisFlowStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisFlowStore) keyFlow(botID string) string {
	return s.prefix + "flow:" + botID
}

func (s *RedisFlowStore) keyIndex() string {
	return s.prefix + "idx:flows"
}

func (s *RedisFlowStore) SaveFlow(ctx context.Context, botID string, g api.FlowGraph) error {
	data, err := prepareSave(botID, g)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keyFlow(botID), data, 0)
		pipe.SAdd(ctx, s.keyIndex(), botID)
		return nil
	})
	return err
}

func (s *RedisFlowStore) LoadFlow(ctx context.Context, botID string) (api.FlowGraph, error) {
	data, err := s.client.Get(ctx, s.keyFlow(botID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return api.FlowGraph{}, api.ErrFlowNotFound
		}
		return api.FlowGraph{}, err
	}
	return DecodeFlow(data)
}

func (s *RedisFlowStore) DeleteFlow(ctx context.Context, botID string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.keyFlow(botID))
		pipe.SRem(ctx, s.keyIndex(), botID)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return api.ErrFlowNotFound
	}
	return nil
}

func (s *RedisFlowStore) ListFlows(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}
