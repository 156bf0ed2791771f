package documents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// ParameterLoader is the persistence side of the parameter store.
type ParameterLoader interface {
	GetParameter(ctx context.Context, family Family) (Parameter, error)
}

// ParameterStore serves the per-family policy flags through a Redis
// cache with a DB fallback. A nil client degrades to loader-only reads.
type ParameterStore struct {
	client *redis.Client
	loader ParameterLoader
	ttl    time.Duration
}

// NewParameterStore instantiates the store helper.
func NewParameterStore(client *redis.Client, loader ParameterLoader, ttl time.Duration) *ParameterStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ParameterStore{client: client, loader: loader, ttl: ttl}
}

func parameterKey(family Family) string {
	return "wms:params:" + string(family)
}

// Get returns the policy row for a family, populating the cache on a
// miss. Cache failures fall through to the loader rather than failing
// the operation.
func (s *ParameterStore) Get(ctx context.Context, family Family) (Parameter, error) {
	if s.client == nil {
		return s.loader.GetParameter(ctx, family)
	}
	payload, err := s.client.Get(ctx, parameterKey(family)).Bytes()
	if err == nil {
		var p Parameter
		if err := json.Unmarshal(payload, &p); err == nil {
			p.Family = family
			return p, nil
		}
	} else if err != redis.Nil {
		return s.loader.GetParameter(ctx, family)
	}
	p, err := s.loader.GetParameter(ctx, family)
	if err != nil {
		return Parameter{}, err
	}
	if raw, err := json.Marshal(p); err == nil {
		_ = s.client.Set(ctx, parameterKey(family), raw, s.ttl).Err()
	}
	return p, nil
}

// Invalidate drops the cached row for a family after a policy change.
func (s *ParameterStore) Invalidate(ctx context.Context, family Family) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, parameterKey(family)).Err()
}
