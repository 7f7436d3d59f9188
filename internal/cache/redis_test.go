package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/mercado-scraper/internal/models"
)

// MockRedisClient is a mock for the redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return redis.NewStringResult(args.String(0), args.Error(1))
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return redis.NewStatusResult("OK", args.Error(0))
}

func (m *MockRedisClient) Close() error {
	return m.Called().Error(0)
}

func TestRedisCachePutThenGet(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	c := NewRedisCache(client, time.Hour, nil)

	var stored []byte
	client.On("Set", ctx, "search:abc", mock.Anything, time.Hour).
		Run(func(args mock.Arguments) { stored = args.Get(2).([]byte) }).
		Return(nil)

	products := []*models.Product{testProduct(t, "MLB1001", "488", "899")}
	require.NoError(t, c.Put(ctx, Entry{Key: "abc", QueryType: QuerySearchOffers, Products: products}))
	require.NotEmpty(t, stored)
	assert.Contains(t, string(stored), `"query_type":"search_offers"`)

	client.On("Get", ctx, "search:abc").Return(string(stored), nil)

	got, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, decimal.RequireFromString("45.72").Equal(got[0].DiscountPercentage()))

	client.AssertExpectations(t)
}

func TestRedisCacheMiss(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	client.On("Get", ctx, "search:missing").Return("", redis.Nil)

	_, ok, err := NewRedisCache(client, 0, nil).Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheErrors(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	client.On("Get", ctx, "search:k").Return("", errors.New("connection refused"))
	client.On("Set", ctx, "search:k", mock.Anything, DefaultTTL).Return(errors.New("connection refused"))

	c := NewRedisCache(client, 0, nil)

	_, _, err := c.Get(ctx, "k")
	assert.Error(t, err)

	err = c.Put(ctx, Entry{Key: "k"})
	assert.Error(t, err)

	client.On("Get", ctx, "search:corrupt").Return("{not json", nil)
	_, _, err = c.Get(ctx, "corrupt")
	assert.Error(t, err)
}
