package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/rateroom/internal/domain"
	"github.com/victornm/rateroom/internal/errors"
)

// Redis stores each room as a JSON document and each session's votes in a
// hash keyed by epoch, so earlier sessions never bleed into current results.
type Redis struct {
	rc     redis.UniversalClient
	prefix string
}

func NewRedis(rc redis.UniversalClient, prefix string) *Redis {
	return &Redis{rc: rc, prefix: prefix}
}

type redisRoom struct {
	RoomID         string     `json:"room_id"`
	HostID         string     `json:"host_id"`
	VotingActive   bool       `json:"voting_active"`
	VotingDuration int64      `json:"voting_duration_ms"`
	VotingEndTime  *time.Time `json:"voting_end_time"`
	Options        []string   `json:"options"`
	Epoch          int        `json:"epoch"`
}

type redisVote struct {
	ClientID string    `json:"client_id"`
	Value    string    `json:"value"`
	CastTime time.Time `json:"cast_time"`
}

func (s *Redis) CreateRoom(ctx context.Context, room *domain.Room) error {
	b, err := marshalRoom(room)
	if err != nil {
		return err
	}

	ok, err := s.rc.SetNX(ctx, s.roomKey(room.RoomID), b, 0).Result()
	if err != nil {
		return fmt.Errorf("setnx room: %w", err)
	}
	if !ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("room already exists: %s", room.RoomID))
	}
	return nil
}

func (s *Redis) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	b, err := s.rc.Get(ctx, s.roomKey(roomID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("room not found: %s", roomID))
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	return unmarshalRoom(b)
}

func (s *Redis) UpdateVotingStatus(ctx context.Context, roomID string, active bool, duration time.Duration, endTime *time.Time, epoch int) error {
	return s.updateRoom(ctx, roomID, func(r *domain.Room) {
		r.VotingActive = active
		r.VotingDuration = duration
		r.VotingEndTime = endTime
		r.Epoch = epoch
	})
}

func (s *Redis) UpdateOptions(ctx context.Context, roomID string, options []string) error {
	return s.updateRoom(ctx, roomID, func(r *domain.Room) {
		r.Options = options
	})
}

func (s *Redis) updateRoom(ctx context.Context, roomID string, mutate func(*domain.Room)) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	mutate(room)

	b, err := marshalRoom(room)
	if err != nil {
		return err
	}
	if err := s.rc.Set(ctx, s.roomKey(roomID), b, 0).Err(); err != nil {
		return fmt.Errorf("set room: %w", err)
	}
	return nil
}

func (s *Redis) AddVote(ctx context.Context, v domain.Vote) error {
	b, err := json.Marshal(redisVote{ClientID: v.ClientID, Value: v.Value, CastTime: v.CastTime})
	if err != nil {
		return fmt.Errorf("marshal vote: %w", err)
	}

	ok, err := s.rc.HSetNX(ctx, s.votesKey(v.RoomID, v.Epoch), v.ClientID, b).Result()
	if err != nil {
		return fmt.Errorf("hsetnx vote: %w", err)
	}
	if !ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("already voted: room=%s client=%s", v.RoomID, v.ClientID))
	}
	return nil
}

func (s *Redis) SetVote(ctx context.Context, v domain.Vote) error {
	b, err := json.Marshal(redisVote{ClientID: v.ClientID, Value: v.Value, CastTime: v.CastTime})
	if err != nil {
		return fmt.Errorf("marshal vote: %w", err)
	}

	if err := s.rc.HSet(ctx, s.votesKey(v.RoomID, v.Epoch), v.ClientID, b).Err(); err != nil {
		return fmt.Errorf("hset vote: %w", err)
	}
	return nil
}

func (s *Redis) ListVotes(ctx context.Context, roomID string, epoch int) ([]domain.Vote, error) {
	m, err := s.rc.HGetAll(ctx, s.votesKey(roomID, epoch)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall votes: %w", err)
	}

	votes := make([]domain.Vote, 0, len(m))
	for _, raw := range m {
		var rv redisVote
		if err := json.Unmarshal([]byte(raw), &rv); err != nil {
			return nil, fmt.Errorf("unmarshal vote: %w", err)
		}
		votes = append(votes, domain.Vote{
			RoomID:   roomID,
			Epoch:    epoch,
			ClientID: rv.ClientID,
			Value:    rv.Value,
			CastTime: rv.CastTime,
		})
	}

	return votes, nil
}

func (s *Redis) IsHost(ctx context.Context, roomID, clientID string) (bool, error) {
	room, err := s.GetRoom(ctx, roomID)
	if errors.Is(err, errors.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return room.HostID == clientID, nil
}

func (s *Redis) roomKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s", s.prefix, roomID)
}

func (s *Redis) votesKey(roomID string, epoch int) string {
	return fmt.Sprintf("%s:room:%s:votes:%d", s.prefix, roomID, epoch)
}

func marshalRoom(r *domain.Room) ([]byte, error) {
	b, err := json.Marshal(redisRoom{
		RoomID:         r.RoomID,
		HostID:         r.HostID,
		VotingActive:   r.VotingActive,
		VotingDuration: r.VotingDuration.Milliseconds(),
		VotingEndTime:  r.VotingEndTime,
		Options:        r.Options,
		Epoch:          r.Epoch,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal room: %w", err)
	}
	return b, nil
}

func unmarshalRoom(b []byte) (*domain.Room, error) {
	var rr redisRoom
	if err := json.Unmarshal(b, &rr); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}

	return &domain.Room{
		RoomID:         rr.RoomID,
		HostID:         rr.HostID,
		VotingActive:   rr.VotingActive,
		VotingDuration: time.Duration(rr.VotingDuration) * time.Millisecond,
		VotingEndTime:  rr.VotingEndTime,
		Options:        rr.Options,
		Epoch:          rr.Epoch,
	}, nil
}
