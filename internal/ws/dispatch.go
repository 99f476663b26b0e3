// Package ws decodes inbound messages into typed commands, routes them to
// the room and ballot services, and emits typed outbound events through the
// connection registry.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/victornm/rateroom/internal/ballot"
	"github.com/victornm/rateroom/internal/domain"
	"github.com/victornm/rateroom/internal/errors"
	"github.com/victornm/rateroom/internal/event"
	"github.com/victornm/rateroom/internal/registry"
	"github.com/victornm/rateroom/internal/room"
)

type Config struct {
	Registry *registry.Registry
	EventBus *event.Bus
	Room     *room.Service
	Ballot   *ballot.Service
}

type Dispatcher struct {
	reg    *registry.Registry
	room   *room.Service
	ballot *ballot.Service
}

// New builds a dispatcher and subscribes the room-event fan-out handlers.
func New(c Config) *Dispatcher {
	d := &Dispatcher{
		reg:    c.Registry,
		room:   c.Room,
		ballot: c.Ballot,
	}

	c.EventBus.Subscribe(domain.EventNameVotingStarted, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventVotingStarted)
		return d.reg.Broadcast(ctx, ev.Room.RoomID, newStatusEvent(domain.StatusActive))
	})

	c.EventBus.Subscribe(domain.EventNameVotingEnded, func(ctx context.Context, e event.Event) error {
		return d.broadcastEnded(ctx, e.(domain.EventVotingEnded).Room)
	})

	c.EventBus.Subscribe(domain.EventNameOptionsUpdated, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventOptionsUpdated)
		return d.reg.Broadcast(ctx, ev.Room.RoomID, optionsUpdatedEvent{
			Type:    "options-updated",
			Options: ev.Room.Options,
		})
	})

	c.EventBus.Subscribe(domain.EventNameNewVoteRequested, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventNewVoteRequested)
		return d.reg.Broadcast(ctx, ev.Room.RoomID, newVoteRequestedEvent{Type: "new-vote-requested"})
	})

	c.EventBus.Subscribe(domain.EventNameResultsUpdated, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventResultsUpdated)
		return d.reg.Broadcast(ctx, ev.RoomID, newResultsEvent(ev.Results))
	})

	return d
}

// broadcastEnded sends the ended status and the final tally as one ordered
// pair. EndVoting publishes its event exactly once, so this runs once too.
func (d *Dispatcher) broadcastEnded(ctx context.Context, r domain.Room) error {
	if err := d.reg.Broadcast(ctx, r.RoomID, newStatusEvent(domain.StatusEnded)); err != nil {
		return err
	}

	results, err := d.ballot.Results(ctx, r.RoomID)
	if err != nil {
		return fmt.Errorf("results after end: %w", err)
	}

	return d.reg.Broadcast(ctx, r.RoomID, newResultsEvent(results))
}

// Dispatch handles one inbound message. Failures of any kind, panics
// included, produce an error event on the sending connection only; the
// dispatcher and every other connection keep going.
func (d *Dispatcher) Dispatch(ctx context.Context, conn registry.Conn, authClientID string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "ws: handler panic",
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
			d.sendError(ctx, conn, errors.New(errors.CodeInternal,
				errors.WithMessagef("internal error")))
		}
	}()

	cmd, err := decodeCommand(data)
	if err != nil {
		d.sendError(ctx, conn, err)
		return
	}

	switch c := cmd.(type) {
	case cmdJoin:
		err = d.handleJoin(ctx, conn, authClientID, c)
	case cmdVote:
		err = d.handleVote(ctx, conn, c)
	case cmdStartVote:
		err = d.withBinding(conn, func(roomID, clientID string) error {
			return d.room.StartVoting(ctx, roomID, clientID, c.Duration)
		})
	case cmdEndVote:
		err = d.withBinding(conn, func(roomID, clientID string) error {
			return d.room.RequestEndVoting(ctx, roomID, clientID)
		})
	case cmdUpdateOptions:
		err = d.withBinding(conn, func(roomID, clientID string) error {
			if c.RoomID != "" {
				roomID = c.RoomID
			}
			return d.room.UpdateOptions(ctx, roomID, clientID, c.Options)
		})
	case cmdRequestNewVote:
		err = d.withBinding(conn, func(roomID, clientID string) error {
			return d.room.RequestNewVote(ctx, roomID, clientID)
		})
	}

	if err != nil {
		d.sendError(ctx, conn, err)
	}
}

func (d *Dispatcher) handleJoin(ctx context.Context, conn registry.Conn, authClientID string, c cmdJoin) error {
	clientID := c.ClientID
	if clientID == "" {
		clientID = authClientID
	}
	if clientID == "" {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("client ID is required to join"))
	}

	r, err := d.room.GetRoom(ctx, c.RoomID)
	if err != nil {
		return err
	}

	d.reg.Bind(conn, r.RoomID, clientID)

	d.send(ctx, conn, newJoinedEvent(r, r.HostID == clientID))

	// Late joiners of a live session get the current tally immediately.
	if r.VotingActive {
		results, err := d.ballot.Results(ctx, r.RoomID)
		if err != nil {
			return err
		}
		d.send(ctx, conn, newResultsEvent(results))
	}

	return nil
}

func (d *Dispatcher) handleVote(ctx context.Context, conn registry.Conn, c cmdVote) error {
	return d.withBinding(conn, func(roomID, clientID string) error {
		if err := d.ballot.CastVote(ctx, roomID, clientID, c.Value); err != nil {
			return err
		}

		d.send(ctx, conn, voteConfirmationEvent{Type: "voteConfirmation", Value: c.Value})
		return nil
	})
}

// withBinding runs fn with the connection's room and client identity, or
// rejects the action when the connection never joined a room.
func (d *Dispatcher) withBinding(conn registry.Conn, fn func(roomID, clientID string) error) error {
	roomID, clientID, ok := d.reg.Binding(conn)
	if !ok {
		return errors.New(errors.CodeUnauthorized,
			errors.WithMessagef("join a room first"))
	}

	return fn(roomID, clientID)
}

func (d *Dispatcher) send(ctx context.Context, conn registry.Conn, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "ws: marshal event", "error", err)
		return
	}

	if err := conn.Send(payload); err != nil {
		slog.WarnContext(ctx, "ws: send failed", "error", err)
	}
}

func (d *Dispatcher) sendError(ctx context.Context, conn registry.Conn, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(ctx, "ws: internal error", "error", err)
		// Do not leak internals to the client.
		d.send(ctx, conn, newErrorEvent("internal error"))
		return
	}

	d.send(ctx, conn, newErrorEvent(e.Message))
}
