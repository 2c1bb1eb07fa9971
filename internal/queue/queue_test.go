package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentportal/internal/record"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "a", Body: []byte("1")}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, Message{Type: "a", Body: []byte("1")}, receive(t, ch))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemory_PublishRespectsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "a"}), context.Canceled)
}

func TestRedisQueue_PublishConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "")
	require.NoError(t, q.Publish(ctx, Message{Type: TypeRecordCreated, Body: []byte("abc|def")}))

	items, err := mr.List(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"record.created|abc|def"}, items)

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, Message{Type: TypeRecordCreated, Body: []byte("abc|def")}, receive(t, ch))
}

func TestDeserialize_NoSeparator(t *testing.T) {
	assert.Equal(t, Message{Body: []byte("plain")}, deserialize("plain"))
}

func TestRecordEvents_PublishesRecordID(t *testing.T) {
	ctx := context.Background()
	q := NewInMemory(1)
	events := RecordEvents{Q: q}

	require.NoError(t, events.RecordCreated(ctx, record.Student{ID: "rec-1"}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, Message{Type: TypeRecordCreated, Body: []byte("rec-1")}, receive(t, ch))
}
