package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/rateroom/internal/domain"
	"github.com/victornm/rateroom/internal/errors"
	"github.com/victornm/rateroom/internal/store"
)

func makeRedisStore(t *testing.T) *store.Redis {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return store.NewRedis(rc, "test")
}

func makeRoom(id, hostID string) *domain.Room {
	return &domain.Room{
		RoomID:  id,
		HostID:  hostID,
		Options: domain.DefaultOptions(),
	}
}

func TestRedis_CreateAndGetRoom(t *testing.T) {
	s := makeRedisStore(t)
	ctx := context.Background()

	want := makeRoom("r1", "host")
	require.NoError(t, s.CreateRoom(ctx, want))

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, want, got)

	err = s.CreateRoom(ctx, makeRoom("r1", "other"))
	require.True(t, errors.Is(err, errors.CodeAlreadyExists), "duplicate room id must be rejected")
}

func TestRedis_GetRoom_NotFound(t *testing.T) {
	s := makeRedisStore(t)

	_, err := s.GetRoom(context.Background(), "missing")
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestRedis_UpdateVotingStatus(t *testing.T) {
	s := makeRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRoom(ctx, makeRoom("r1", "host")))

	endTime := time.Now().Add(time.Minute).UTC().Truncate(time.Millisecond)
	require.NoError(t, s.UpdateVotingStatus(ctx, "r1", true, time.Minute, &endTime, 1))

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.True(t, got.VotingActive)
	require.Equal(t, time.Minute, got.VotingDuration)
	require.NotNil(t, got.VotingEndTime)
	require.True(t, endTime.Equal(*got.VotingEndTime))
	require.Equal(t, 1, got.Epoch)

	require.NoError(t, s.UpdateVotingStatus(ctx, "r1", false, 0, nil, 1))

	got, err = s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.False(t, got.VotingActive)
	require.Nil(t, got.VotingEndTime)
}

func TestRedis_UpdateOptions(t *testing.T) {
	s := makeRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRoom(ctx, makeRoom("r1", "host")))
	require.NoError(t, s.UpdateOptions(ctx, "r1", []string{"A", "B", "C"}))

	got, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, got.Options)

	err = s.UpdateOptions(ctx, "missing", []string{"A"})
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestRedis_AddVote_DuplicateRejected(t *testing.T) {
	s := makeRedisStore(t)
	ctx := context.Background()

	v := domain.Vote{RoomID: "r1", Epoch: 1, ClientID: "c1", Value: "5", CastTime: time.Now()}
	require.NoError(t, s.AddVote(ctx, v))

	v.Value = "7"
	err := s.AddVote(ctx, v)
	require.True(t, errors.Is(err, errors.CodeAlreadyExists))

	votes, err := s.ListVotes(ctx, "r1", 1)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, "5", votes[0].Value, "rejected vote must not overwrite")
}

func TestRedis_SetVote_Overwrites(t *testing.T) {
	s := makeRedisStore(t)
	ctx := context.Background()

	v := domain.Vote{RoomID: "r1", Epoch: 1, ClientID: "c1", Value: "5", CastTime: time.Now()}
	require.NoError(t, s.SetVote(ctx, v))

	v.Value = "7"
	require.NoError(t, s.SetVote(ctx, v))

	votes, err := s.ListVotes(ctx, "r1", 1)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, "7", votes[0].Value)
}

func TestRedis_ListVotes_ScopedToEpoch(t *testing.T) {
	s := makeRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddVote(ctx, domain.Vote{RoomID: "r1", Epoch: 1, ClientID: "c1", Value: "3", CastTime: time.Now()}))
	require.NoError(t, s.AddVote(ctx, domain.Vote{RoomID: "r1", Epoch: 2, ClientID: "c1", Value: "9", CastTime: time.Now()}))

	votes, err := s.ListVotes(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, "9", votes[0].Value, "earlier sessions must not leak into the current epoch")
}

func TestRedis_IsHost(t *testing.T) {
	s := makeRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRoom(ctx, makeRoom("r1", "host")))

	isHost, err := s.IsHost(ctx, "r1", "host")
	require.NoError(t, err)
	require.True(t, isHost)

	isHost, err = s.IsHost(ctx, "r1", "guest")
	require.NoError(t, err)
	require.False(t, isHost)

	isHost, err = s.IsHost(ctx, "missing", "host")
	require.NoError(t, err)
	require.False(t, isHost, "a missing room has no host")
}
