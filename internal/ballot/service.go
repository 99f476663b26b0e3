// Package ballot records votes and serves aggregated results. Guard
// conditions are always checked against a fresh room read, so a vote racing
// the end of a session cannot corrupt stored state.
package ballot

import (
	"context"
	"time"

	"github.com/victornm/rateroom/internal/domain"
	"github.com/victornm/rateroom/internal/errors"
	"github.com/victornm/rateroom/internal/event"
	"github.com/victornm/rateroom/internal/store"
	"github.com/victornm/rateroom/internal/tally"
)

// Policy decides what a second vote by the same client in one session does.
type Policy string

const (
	// PolicyReject refuses the second vote. Default.
	PolicyReject Policy = "reject"
	// PolicyOverwrite replaces the prior value.
	PolicyOverwrite Policy = "overwrite"
)

type Config struct {
	Store    store.Store
	EventBus *event.Bus
	Policy   Policy
}

type Service struct {
	store  store.Store
	eb     *event.Bus
	policy Policy
}

func NewService(c Config) *Service {
	p := c.Policy
	if p == "" {
		p = PolicyReject
	}

	return &Service{
		store:  c.Store,
		eb:     c.EventBus,
		policy: p,
	}
}

// CastVote validates and persists a vote, then publishes the fresh tally.
// The results event is only published after the write committed, so a
// persistence failure never broadcasts stale results.
func (s *Service) CastVote(ctx context.Context, roomID, clientID, value string) error {
	if clientID == "" {
		return errors.New(errors.CodeUnauthorized,
			errors.WithMessagef("client ID is not set"))
	}

	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	now := time.Now()
	if !r.VotingActive || r.Expired(now) {
		return errors.New(errors.CodeInvalidState,
			errors.WithMessagef("voting is not active or has ended"))
	}
	if !r.HasOption(value) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("value %q is not among the room's options", value))
	}

	v := domain.Vote{
		RoomID:   roomID,
		Epoch:    r.Epoch,
		ClientID: clientID,
		Value:    value,
		CastTime: now,
	}

	switch s.policy {
	case PolicyOverwrite:
		err = s.store.SetVote(ctx, v)
	default:
		err = s.store.AddVote(ctx, v)
	}
	if errors.Is(err, errors.CodeAlreadyExists) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("you have already voted in this session"),
			errors.WithCause(err))
	}
	if err != nil {
		return err
	}

	results, err := s.resultsForEpoch(ctx, roomID, r.Epoch)
	if err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventResultsUpdated{
		RoomID:  roomID,
		Results: results,
	})

	return nil
}

// Results aggregates the current session's votes into ranked percentages.
func (s *Service) Results(ctx context.Context, roomID string) ([]domain.Result, error) {
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return s.resultsForEpoch(ctx, roomID, r.Epoch)
}

func (s *Service) resultsForEpoch(ctx context.Context, roomID string, epoch int) ([]domain.Result, error) {
	votes, err := s.store.ListVotes(ctx, roomID, epoch)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(votes))
	for _, v := range votes {
		values = append(values, v.Value)
	}

	return tally.Tally(values), nil
}
