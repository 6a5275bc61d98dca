package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetra/storegate/internal/model"
)

func newClient(id string) *Client {
	return &Client{ID: id, UserID: 1, Role: model.RoleUser, Send: make(chan []byte, 2)}
}

func TestHubBroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub()
	a, b := newClient("a"), newClient("b")
	hub.Register(a)
	hub.Register(b)
	require.Equal(t, 2, hub.Count())

	hub.Broadcast([]byte("hello"))

	assert.Equal(t, []byte("hello"), <-a.Send)
	assert.Equal(t, []byte("hello"), <-b.Send)
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	a := newClient("a")
	hub.Register(a)
	hub.Unregister(a)

	assert.Equal(t, 0, hub.Count())
	_, open := <-a.Send
	assert.False(t, open)

	// Double unregister must be a no-op, not a double close.
	hub.Unregister(a)
}

func TestHubBroadcastDropsWhenBackedUp(t *testing.T) {
	hub := NewHub()
	slow := &Client{ID: "slow", Send: make(chan []byte, 1)}
	fast := newClient("fast")
	hub.Register(slow)
	hub.Register(fast)

	hub.Broadcast([]byte("one"))
	hub.Broadcast([]byte("two")) // slow's buffer is full here

	assert.Equal(t, []byte("one"), <-slow.Send)
	select {
	case extra := <-slow.Send:
		t.Fatalf("expected the overflow message to be dropped, got %q", extra)
	default:
	}

	// The backed-up client never stalls delivery to the others.
	assert.Equal(t, []byte("one"), <-fast.Send)
	assert.Equal(t, []byte("two"), <-fast.Send)
}
