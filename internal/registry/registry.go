// Package registry maps live connections to their (room, client) binding
// and fans outbound events out to a room. It holds no process-wide state;
// construct one instance per server (or per test).
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

const maxConcurrentSends = 100

// Conn is a live client connection. Send must not block the broadcaster;
// implementations enqueue to a writer and report an error when they cannot.
type Conn interface {
	Send(payload []byte) error
	Ready() bool
}

type binding struct {
	roomID   string
	clientID string
}

type Registry struct {
	mu    sync.RWMutex
	conns map[Conn]binding
}

func New() *Registry {
	return &Registry{
		conns: make(map[Conn]binding),
	}
}

// Bind associates conn with a room and client after a successful join.
// Rebinding an already bound connection replaces its binding.
func (r *Registry) Bind(conn Conn, roomID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn] = binding{roomID: roomID, clientID: clientID}
}

// Unbind removes the connection; called on disconnect.
func (r *Registry) Unbind(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, conn)
}

// Binding returns the room and client bound to conn, if any.
func (r *Registry) Binding(conn Conn) (roomID, clientID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.conns[conn]
	return b.roomID, b.clientID, ok
}

// Broadcast sends event to every ready connection bound to roomID. The
// payload is marshalled once; bindings are snapshotted before sending, so
// concurrent binds and unbinds during the fan-out are safe.
func (r *Registry) Broadcast(ctx context.Context, roomID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("registry: marshal broadcast: %w", err)
	}

	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for conn, b := range r.conns {
		if b.roomID == roomID && conn.Ready() {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentSends)

	for _, conn := range targets {
		conn := conn
		eg.Go(func() error {
			if err := conn.Send(payload); err != nil {
				// A dead connection is the reader loop's problem, not the
				// broadcaster's.
				slog.WarnContext(ctx, "registry: send failed",
					"room_id", roomID,
					"error", err,
				)
			}
			return nil
		})
	}

	return eg.Wait()
}
