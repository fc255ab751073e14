package peer

import (
	"context"
	"fmt"
	"slices"

	"github.com/kbukum/infermesh/redis"
)

// RedisRegistry stores the peer set in a Redis set under Key. Each operation
// is a single SADD, SREM or SMEMBERS, so Redis provides the atomicity.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedisRegistry keeps the set under key.
func NewRedisRegistry(client *redis.Client, key string) *RedisRegistry {
	return &RedisRegistry{client: client, key: key}
}

func (r *RedisRegistry) Add(ctx context.Context, addrs ...Address) error {
	members := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != "" {
			members = append(members, string(a))
		}
	}
	if len(members) == 0 {
		return nil
	}
	if err := r.client.SAdd(ctx, r.key, members...); err != nil {
		return fmt.Errorf("add peers: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Remove(ctx context.Context, addr Address) error {
	if err := r.client.SRem(ctx, r.key, string(addr)); err != nil {
		return fmt.Errorf("remove peer %s: %w", addr, err)
	}
	return nil
}

// Snapshot returns the peers sorted by address.
func (r *RedisRegistry) Snapshot(ctx context.Context) ([]Address, error) {
	members, err := r.client.SMembers(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	out := Addresses(members)
	slices.Sort(out)
	return out, nil
}
