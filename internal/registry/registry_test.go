package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/rateroom/internal/registry"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads [][]byte
	ready    bool
	sendErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{ready: true}
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *fakeConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.payloads...)
}

type testEvent struct {
	Type string `json:"type"`
}

func TestBroadcast_RoomScoped(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	inRoom1 := newFakeConn()
	inRoom1Too := newFakeConn()
	inRoom2 := newFakeConn()
	unbound := newFakeConn()

	reg.Bind(inRoom1, "r1", "alice")
	reg.Bind(inRoom1Too, "r1", "bob")
	reg.Bind(inRoom2, "r2", "carol")

	require.NoError(t, reg.Broadcast(ctx, "r1", testEvent{Type: "ping"}))

	want := `{"type":"ping"}`
	require.Equal(t, [][]byte{[]byte(want)}, inRoom1.received())
	require.Equal(t, [][]byte{[]byte(want)}, inRoom1Too.received())
	require.Empty(t, inRoom2.received())
	require.Empty(t, unbound.received())
}

func TestBroadcast_SkipsNotReady(t *testing.T) {
	reg := registry.New()

	ready := newFakeConn()
	slow := newFakeConn()
	slow.ready = false

	reg.Bind(ready, "r1", "alice")
	reg.Bind(slow, "r1", "bob")

	require.NoError(t, reg.Broadcast(context.Background(), "r1", testEvent{Type: "ping"}))

	require.Len(t, ready.received(), 1)
	require.Empty(t, slow.received())
}

func TestBroadcast_SendFailureDoesNotStopOthers(t *testing.T) {
	reg := registry.New()

	broken := newFakeConn()
	broken.sendErr = fmt.Errorf("connection reset")
	healthy := newFakeConn()

	reg.Bind(broken, "r1", "alice")
	reg.Bind(healthy, "r1", "bob")

	require.NoError(t, reg.Broadcast(context.Background(), "r1", testEvent{Type: "ping"}))

	require.Len(t, healthy.received(), 1)
}

func TestUnbind_StopsDelivery(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	conn := newFakeConn()
	reg.Bind(conn, "r1", "alice")
	reg.Unbind(conn)

	require.NoError(t, reg.Broadcast(ctx, "r1", testEvent{Type: "ping"}))
	require.Empty(t, conn.received())

	_, _, ok := reg.Binding(conn)
	require.False(t, ok)
}

func TestBind_RebindMovesRoom(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	conn := newFakeConn()
	reg.Bind(conn, "r1", "alice")
	reg.Bind(conn, "r2", "alice")

	roomID, clientID, ok := reg.Binding(conn)
	require.True(t, ok)
	require.Equal(t, "r2", roomID)
	require.Equal(t, "alice", clientID)

	require.NoError(t, reg.Broadcast(ctx, "r1", testEvent{Type: "ping"}))
	require.Empty(t, conn.received())

	require.NoError(t, reg.Broadcast(ctx, "r2", testEvent{Type: "ping"}))
	require.Len(t, conn.received(), 1)
}

func TestBroadcast_ConcurrentWithBindUnbind(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	stable := newFakeConn()
	reg.Bind(stable, "r1", "alice")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			conn := newFakeConn()
			reg.Bind(conn, "r1", fmt.Sprintf("client-%d", i))
			reg.Unbind(conn)
		}()
		go func() {
			defer wg.Done()
			require.NoError(t, reg.Broadcast(ctx, "r1", testEvent{Type: "ping"}))
		}()
	}
	wg.Wait()

	require.Len(t, stable.received(), 10, "the stable connection sees every broadcast")
}
