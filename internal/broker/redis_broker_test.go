package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) (*RedisNotificationBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	b, err := NewRedisNotificationBroker(context.Background(), fmt.Sprintf("redis://%s", mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestRedisBroker_InvalidURL(t *testing.T) {
	_, err := NewRedisNotificationBroker(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	reporter := uuid.New()
	stream, cancel, err := b.Subscribe(ctx, UserChannel(reporter))
	require.NoError(t, err)
	defer cancel()

	n := NewUserNotification(NotificationItemClaimed, uuid.New(), reporter, `Your found item "Wallet" has been claimed by bob`)
	require.NoError(t, b.Deliver(ctx, n))

	select {
	case got := <-stream:
		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, n.Message, got.Message)
		assert.Equal(t, NotificationItemClaimed, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not received")
	}
}

func TestRedisBroker_ChannelsAreIsolated(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	stream, cancel, err := b.Subscribe(ctx, UserChannel(uuid.New()))
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.Publish(ctx, NewUserNotification(NotificationItemApproved, uuid.New(), uuid.New(), "someone else")))

	select {
	case got := <-stream:
		t.Fatalf("unexpected notification %v", got)
	case <-time.After(200 * time.Millisecond):
	}
}
