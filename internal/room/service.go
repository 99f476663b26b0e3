// Package room owns the room lifecycle: creation, the voting state machine,
// host authority checks and the per-room voting-duration timer.
package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/rateroom/internal/domain"
	"github.com/victornm/rateroom/internal/errors"
	"github.com/victornm/rateroom/internal/event"
	"github.com/victornm/rateroom/internal/store"
)

type Config struct {
	Store    store.Store
	EventBus *event.Bus
	// NewTimerFunc lets tests inject a fake timer. Defaults to time.AfterFunc.
	NewTimerFunc NewTimerFunc
}

// Timer is a one-shot cancellable timer handle.
type Timer interface {
	// Stop cancels the timer; firing after Stop is a no-op.
	Stop() bool
}

type NewTimerFunc func(d time.Duration, fire func()) Timer

type afterFuncTimer struct{ t *time.Timer }

func (t afterFuncTimer) Stop() bool { return t.t.Stop() }

func newAfterFuncTimer(d time.Duration, fire func()) Timer {
	return afterFuncTimer{t: time.AfterFunc(d, fire)}
}

type Service struct {
	store    store.Store
	eb       *event.Bus
	newTimer NewTimerFunc

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	timers map[string]Timer
}

func NewService(c Config) *Service {
	nt := c.NewTimerFunc
	if nt == nil {
		nt = newAfterFuncTimer
	}

	return &Service{
		store:    c.Store,
		eb:       c.EventBus,
		newTimer: nt,
		locks:    make(map[string]*sync.Mutex),
		timers:   make(map[string]Timer),
	}
}

// CreateRoom persists a new room with default options and voting inactive.
func (s *Service) CreateRoom(ctx context.Context, hostID string) (*domain.Room, error) {
	if hostID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("host ID is required to create a room"))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}

	r := &domain.Room{
		RoomID:  id.String(),
		HostID:  hostID,
		Options: domain.DefaultOptions(),
	}
	if err := s.store.CreateRoom(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

// StartVoting opens a voting session and arms the one-shot end timer.
// Starting while a session is active is rejected, never replaces the timer.
func (s *Service) StartVoting(ctx context.Context, roomID, requesterID string, duration time.Duration) error {
	unlock := s.lockRoom(roomID)
	defer unlock()

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if r.HostID != requesterID {
		return errors.New(errors.CodeUnauthorized,
			errors.WithMessagef("only the host can start voting"))
	}
	if r.VotingActive {
		return errors.New(errors.CodeInvalidState,
			errors.WithMessagef("voting is already active"))
	}
	if duration <= 0 {
		return errors.New(errors.CodeInvalidState,
			errors.WithMessagef("voting duration must be positive"))
	}

	endTime := time.Now().Add(duration)
	epoch := r.Epoch + 1
	if err := s.store.UpdateVotingStatus(ctx, roomID, true, duration, &endTime, epoch); err != nil {
		return err
	}

	r.VotingActive = true
	r.VotingDuration = duration
	r.VotingEndTime = &endTime
	r.Epoch = epoch

	s.armTimer(roomID, duration)
	s.eb.Publish(ctx, domain.EventVotingStarted{Room: *r})

	return nil
}

// EndVoting closes the voting session. It is idempotent: if the room is
// already inactive nothing is written and no event is published, so a host
// end racing the timer fire produces exactly one ended event.
func (s *Service) EndVoting(ctx context.Context, roomID string) error {
	unlock := s.lockRoom(roomID)
	defer unlock()

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !r.VotingActive {
		return nil
	}

	if err := s.store.UpdateVotingStatus(ctx, roomID, false, 0, nil, r.Epoch); err != nil {
		return err
	}

	s.cancelTimer(roomID)

	r.VotingActive = false
	r.VotingDuration = 0
	r.VotingEndTime = nil
	s.eb.Publish(ctx, domain.EventVotingEnded{Room: *r})

	return nil
}

// RequestEndVoting is the authorization-checked wrapper around EndVoting.
func (s *Service) RequestEndVoting(ctx context.Context, roomID, requesterID string) error {
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if r.HostID != requesterID {
		return errors.New(errors.CodeUnauthorized,
			errors.WithMessagef("only the host can end voting"))
	}

	return s.EndVoting(ctx, roomID)
}

// UpdateOptions replaces the room's option labels while voting is inactive.
func (s *Service) UpdateOptions(ctx context.Context, roomID, requesterID string, options []string) error {
	unlock := s.lockRoom(roomID)
	defer unlock()

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if r.HostID != requesterID {
		return errors.New(errors.CodeUnauthorized,
			errors.WithMessagef("only the host can update options"))
	}
	if r.VotingActive {
		return errors.New(errors.CodeInvalidState,
			errors.WithMessagef("cannot update options while voting is active"))
	}
	if len(options) == 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("options must not be empty"))
	}
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		if _, ok := seen[o]; ok {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("duplicate option: %s", o))
		}
		seen[o] = struct{}{}
	}

	if err := s.store.UpdateOptions(ctx, roomID, options); err != nil {
		return err
	}

	r.Options = options
	s.eb.Publish(ctx, domain.EventOptionsUpdated{Room: *r})

	return nil
}

// RequestNewVote signals clients to reset their selection and result state.
// Stored votes stay untouched; the next session gets a fresh epoch anyway.
func (s *Service) RequestNewVote(ctx context.Context, roomID, requesterID string) error {
	unlock := s.lockRoom(roomID)
	defer unlock()

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if r.HostID != requesterID {
		return errors.New(errors.CodeUnauthorized,
			errors.WithMessagef("only the host can request a new vote"))
	}
	if r.VotingActive {
		return errors.New(errors.CodeInvalidState,
			errors.WithMessagef("cannot request a new vote while voting is active"))
	}

	s.eb.Publish(ctx, domain.EventNewVoteRequested{Room: *r})

	return nil
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return s.store.GetRoom(ctx, roomID)
}

func (s *Service) IsHost(ctx context.Context, roomID, clientID string) (bool, error) {
	return s.store.IsHost(ctx, roomID, clientID)
}

// Close cancels all outstanding timers. In-flight timers are process-scoped
// and never persisted across restarts; the voting-end-time guard keeps rooms
// left active by a crash from accepting late votes.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Service) timerFired(roomID string) {
	s.mu.Lock()
	delete(s.timers, roomID)
	s.mu.Unlock()

	ctx := context.Background()
	if err := s.EndVoting(ctx, roomID); err != nil {
		slog.ErrorContext(ctx, "room: timer-fired end voting failed",
			"room_id", roomID,
			"error", err,
		)
	}
}

func (s *Service) armTimer(roomID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// One outstanding timer per room while active; StartVoting rejects
	// starts on active rooms, so an existing handle means a stale Stop race
	// already lost and the entry can be replaced.
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
	}
	s.timers[roomID] = s.newTimer(d, func() { s.timerFired(roomID) })
}

func (s *Service) cancelTimer(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
	}
}

// lockRoom serializes state transitions for a single room. Rooms are
// independent; there is no cross-room locking.
func (s *Service) lockRoom(roomID string) func() {
	s.mu.Lock()
	l, ok := s.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roomID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
