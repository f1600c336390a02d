package cache

import (
	"context"
	"testing"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type fakeKVStore struct {
	data   map[string]string
	setErr error
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]string)}
}

func (f *fakeKVStore) Get(ctx context.Context, key string) (string, error) {
	val, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return val, nil
}

func (f *fakeKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func sampleDecision() *models.AppliedDecision {
	return &models.AppliedDecision{
		DecisionID:      "d-1",
		RoomID:          "room-1",
		Timestamp:       time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC),
		RoomTempC:       27.5,
		RoomHumidityPct: 55.0,
		Actions:         models.ActionIntent{Cool: 1},
	}
}

func TestDecisionCache_RoundTrip(t *testing.T) {
	kv := newFakeKVStore()
	c := NewDecisionCache(kv, time.Minute, zap.NewNop())

	c.StoreLatest(context.Background(), sampleDecision())

	got, err := c.Latest(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "d-1", got.DecisionID)
	assert.Equal(t, models.ActionIntent{Cool: 1}, got.Actions)
}

func TestDecisionCache_Miss(t *testing.T) {
	c := NewDecisionCache(newFakeKVStore(), time.Minute, zap.NewNop())

	_, err := c.Latest(context.Background(), "room-unknown")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDecisionCache_CorruptEntry(t *testing.T) {
	kv := newFakeKVStore()
	kv.data["thermal:room:room-1:decision"] = "{not json"
	c := NewDecisionCache(kv, time.Minute, zap.NewNop())

	_, err := c.Latest(context.Background(), "room-1")
	assert.Error(t, err)
}

func TestRedisKVStore_WithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	kv := NewRedisKVStore(client)
	c := NewDecisionCache(kv, time.Minute, zap.NewNop())

	_, err := c.Latest(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	c.StoreLatest(context.Background(), sampleDecision())

	got, err := c.Latest(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", got.RoomID)

	// TTL expiry drops the entry.
	mr.FastForward(2 * time.Minute)
	_, err = c.Latest(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
