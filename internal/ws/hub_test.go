package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubEvent struct {
	Seq int `json:"seq"`
}

// dialHubConn upgrades an in-process connection and registers the server side
// of it with the hub under key. Returns the client side for reading.
func dialHubConn(t *testing.T, hub *Hub[int64], key int64) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(key, conn)
		close(registered)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("connection never registered")
	}
	return client
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub[int64]()
	dialHubConn(t, hub, 42)

	assert.Equal(t, 1, hub.Subscribers())
	assert.Equal(t, 0, hub.Broadcast([]int64{99}, hubEvent{Seq: 1}))

	hub.mu.RLock()
	conns := hub.conns[42]
	hub.mu.RUnlock()
	for conn := range conns {
		hub.Unregister(42, conn)
	}
	assert.Equal(t, 0, hub.Subscribers())
	assert.Equal(t, 0, hub.Broadcast([]int64{42}, hubEvent{Seq: 2}))
}

// gorilla/websocket allows only one concurrent writer per connection; the
// hub must serialize overlapping broadcasts to the same connection.
func TestHubConcurrentBroadcasts(t *testing.T) {
	hub := NewHub[int64]()
	client := dialHubConn(t, hub, 7)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	delivered := make([]int, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				delivered[i] += hub.Broadcast([]int64{7}, hubEvent{Seq: i*perWriter + j})
			}
		}(i)
	}

	received := 0
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for received < writers*perWriter {
		var evt hubEvent
		require.NoError(t, client.ReadJSON(&evt))
		received++
	}
	wg.Wait()

	total := 0
	for _, n := range delivered {
		total += n
	}
	assert.Equal(t, writers*perWriter, total)
}
