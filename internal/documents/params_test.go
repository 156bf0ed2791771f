package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	param Parameter
	err   error
	calls int
}

func (l *countingLoader) GetParameter(ctx context.Context, family Family) (Parameter, error) {
	l.calls++
	if l.err != nil {
		return Parameter{}, l.err
	}
	p := l.param
	p.Family = family
	return p, nil
}

func TestParameterStoreCachesLoaderResult(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	loader := &countingLoader{param: Parameter{AllowLessQuantity: true, RequireApproval: true}}
	store := NewParameterStore(client, loader, time.Minute)
	ctx := context.Background()

	p, err := store.Get(ctx, FamilyWarehouseInbound)
	require.NoError(t, err)
	require.True(t, p.AllowLessQuantity)
	require.True(t, p.RequireApproval)
	require.Equal(t, FamilyWarehouseInbound, p.Family)
	require.Equal(t, 1, loader.calls)

	// Second read is served from Redis.
	p, err = store.Get(ctx, FamilyWarehouseInbound)
	require.NoError(t, err)
	require.True(t, p.RequireApproval)
	require.Equal(t, 1, loader.calls)

	// A different family misses independently.
	_, err = store.Get(ctx, FamilyWarehouseOutbound)
	require.NoError(t, err)
	require.Equal(t, 2, loader.calls)
}

func TestParameterStoreInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	loader := &countingLoader{param: Parameter{RejectDuplicateSerial: true}}
	store := NewParameterStore(client, loader, time.Minute)
	ctx := context.Background()

	_, err := store.Get(ctx, FamilyProductionTransfer)
	require.NoError(t, err)
	require.Equal(t, 1, loader.calls)

	require.NoError(t, store.Invalidate(ctx, FamilyProductionTransfer))

	_, err = store.Get(ctx, FamilyProductionTransfer)
	require.NoError(t, err)
	require.Equal(t, 2, loader.calls)
}

func TestParameterStoreFallsThroughOnCacheFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	loader := &countingLoader{param: Parameter{AllowMoreQuantity: true}}
	store := NewParameterStore(client, loader, time.Minute)
	ctx := context.Background()

	mr.Close()

	p, err := store.Get(ctx, FamilySubcontractReceipt)
	require.NoError(t, err)
	require.True(t, p.AllowMoreQuantity)
	require.Equal(t, 1, loader.calls)
}

func TestParameterStoreNilClientUsesLoader(t *testing.T) {
	loader := &countingLoader{param: Parameter{RequireAllCollected: true}}
	store := NewParameterStore(nil, loader, 0)

	p, err := store.Get(context.Background(), FamilyWarehouseInbound)
	require.NoError(t, err)
	require.True(t, p.RequireAllCollected)

	require.NoError(t, store.Invalidate(context.Background(), FamilyWarehouseInbound))
}

func TestParameterStorePropagatesLoaderError(t *testing.T) {
	wantErr := errors.New("db down")
	loader := &countingLoader{err: wantErr}
	store := NewParameterStore(nil, loader, time.Minute)

	_, err := store.Get(context.Background(), FamilyWarehouseInbound)
	require.ErrorIs(t, err, wantErr)
}
