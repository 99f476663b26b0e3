package ws

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/victornm/rateroom/internal/registry"
)

const (
	outboxSize   = 16
	writeTimeout = 3 * time.Second
)

// Verifier checks a bearer assertion and returns the client identifier it
// was issued for.
type Verifier interface {
	Verify(token string) (string, error)
}

// client adapts a websocket connection to registry.Conn. Writes go through
// a buffered outbox drained by a single writer goroutine; a full outbox
// marks the connection not ready so broadcasts skip it from then on.
type client struct {
	conn     *websocket.Conn
	outbox   chan []byte
	notReady atomic.Bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
	}
}

func (c *client) Send(payload []byte) error {
	if c.notReady.Load() {
		return errConnNotReady
	}

	select {
	case c.outbox <- payload:
		return nil
	default:
		// Too slow to keep up; stop feeding it rather than block the room.
		c.notReady.Store(true)
		return errConnNotReady
	}
}

func (c *client) Ready() bool {
	return !c.notReady.Load()
}

type notReadyError struct{}

func (notReadyError) Error() string { return "connection is not ready" }

var errConnNotReady = notReadyError{}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.outbox:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.notReady.Store(true)
				return
			}
		}
	}
}

// Handler upgrades the request to a websocket and runs the read loop. A
// token query parameter, when present, must verify; the asserted identity
// then backs join messages that omit clientId.
func Handler(d *Dispatcher, reg *registry.Registry, verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		authClientID := ""
		if token := c.Query("token"); token != "" {
			authClientID, err = verifier.Verify(token)
			if err != nil {
				slog.WarnContext(c.Request.Context(), "ws: invalid token", "error", err)
				conn.Close(websocket.StatusPolicyViolation, "invalid token")
				return
			}
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		cl := newClient(conn)
		defer reg.Unbind(cl)

		go cl.writeLoop(ctx)

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					slog.DebugContext(ctx, "ws: read loop ended", "error", err)
				}
				return
			}

			d.Dispatch(ctx, cl, authClientID, data)
		}
	}
}
