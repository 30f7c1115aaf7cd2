package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "schooladmin/pkg/domain"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", DisplayName("Ada", "Lovelace"))
	assert.Equal(t, "Ada", DisplayName(" Ada ", ""))
	assert.Equal(t, "", DisplayName("", " "))
}

func TestStaticResolver(t *testing.T) {
	dir := NewStatic()
	ada := id.UserID(uuid.New())
	blank := id.UserID(uuid.New())
	dir.Add(ada, "Ada", "Lovelace")
	dir.Add(blank, "", "")

	names, err := dir.ResolveNames(context.Background(), []id.UserID{ada, blank, id.UserID(uuid.New())})
	require.NoError(t, err)
	assert.Equal(t, map[id.UserID]string{ada: "Ada Lovelace"}, names)
}

type countingResolver struct {
	inner   Resolver
	calls   [][]id.UserID
	err     error
	partial map[id.UserID]string
}

func (c *countingResolver) ResolveNames(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error) {
	c.calls = append(c.calls, ids)
	if c.err != nil {
		return c.partial, c.err
	}
	return c.inner.ResolveNames(ctx, ids)
}

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedResolverFallsThroughWhenRedisIsDown(t *testing.T) {
	dir := NewStatic()
	ada := id.UserID(uuid.New())
	dir.Add(ada, "Ada", "Lovelace")
	inner := &countingResolver{inner: dir}

	cached := NewCachedResolver(inner, unreachableRedis(t))
	names, err := cached.ResolveNames(context.Background(), []id.UserID{ada})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", names[ada])
	require.Len(t, inner.calls, 1)
}

func TestCachedResolverPropagatesDirectoryErrors(t *testing.T) {
	inner := &countingResolver{err: errors.New("directory down")}
	cached := NewCachedResolver(inner, unreachableRedis(t))

	_, err := cached.ResolveNames(context.Background(), []id.UserID{id.UserID(uuid.New())})
	assert.EqualError(t, err, "directory down")
}

func TestCachedResolverKeepsPartialNamesOnDirectoryError(t *testing.T) {
	ada := id.UserID(uuid.New())
	inner := &countingResolver{
		err:     errors.New("directory timed out"),
		partial: map[id.UserID]string{ada: "Ada Lovelace"},
	}
	cached := NewCachedResolver(inner, unreachableRedis(t))

	names, err := cached.ResolveNames(context.Background(), []id.UserID{ada, id.UserID(uuid.New())})
	assert.EqualError(t, err, "directory timed out")
	assert.Equal(t, map[id.UserID]string{ada: "Ada Lovelace"}, names)
}

func TestCachedResolverEmptyInput(t *testing.T) {
	inner := &countingResolver{inner: NewStatic()}
	names, err := NewCachedResolver(inner, unreachableRedis(t)).ResolveNames(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Empty(t, inner.calls)
}
