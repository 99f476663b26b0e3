package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/rateroom/internal/domain"
	"github.com/victornm/rateroom/internal/errors"
)

const codeUniqueViolation = "23505"

// Postgres stores rooms and votes in two tables. Votes are unique per
// (room, epoch, client); duplicates surface as CodeAlreadyExists.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id            text PRIMARY KEY,
	host_id            text NOT NULL,
	voting_active      boolean NOT NULL DEFAULT false,
	voting_duration_ms bigint NOT NULL DEFAULT 0,
	voting_end_time    timestamptz,
	options            jsonb NOT NULL,
	epoch              integer NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS votes (
	room_id     text NOT NULL REFERENCES rooms (room_id) ON DELETE CASCADE,
	epoch       integer NOT NULL,
	client_id   text NOT NULL,
	value       text NOT NULL,
	cast_time   timestamptz NOT NULL,
	PRIMARY KEY (room_id, epoch, client_id)
);`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) CreateRoom(ctx context.Context, room *domain.Room) error {
	const stmt = `
INSERT INTO rooms (room_id, host_id, voting_active, voting_duration_ms, voting_end_time, options, epoch)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	opts, err := json.Marshal(room.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	_, err = s.db.Exec(ctx, stmt,
		room.RoomID, room.HostID, room.VotingActive,
		room.VotingDuration.Milliseconds(), room.VotingEndTime, opts, room.Epoch)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("room already exists: %s", room.RoomID),
			errors.WithCause(err))
	}

	return err
}

func (s *Postgres) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	const stmt = `
SELECT room_id, host_id, voting_active, voting_duration_ms, voting_end_time, options, epoch
FROM rooms WHERE room_id = $1;`

	var (
		room       domain.Room
		durationMS int64
		opts       []byte
	)
	err := s.db.QueryRow(ctx, stmt, roomID).Scan(
		&room.RoomID, &room.HostID, &room.VotingActive,
		&durationMS, &room.VotingEndTime, &opts, &room.Epoch)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("room not found: %s", roomID))
	}
	if err != nil {
		return nil, err
	}

	room.VotingDuration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal(opts, &room.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}

	return &room, nil
}

func (s *Postgres) UpdateVotingStatus(ctx context.Context, roomID string, active bool, duration time.Duration, endTime *time.Time, epoch int) error {
	const stmt = `
UPDATE rooms SET voting_active = $2, voting_duration_ms = $3, voting_end_time = $4, epoch = $5
WHERE room_id = $1;`

	ct, err := s.db.Exec(ctx, stmt, roomID, active, duration.Milliseconds(), endTime, epoch)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("room not found: %s", roomID))
	}
	return nil
}

func (s *Postgres) UpdateOptions(ctx context.Context, roomID string, options []string) error {
	const stmt = `UPDATE rooms SET options = $2 WHERE room_id = $1;`

	opts, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	ct, err := s.db.Exec(ctx, stmt, roomID, opts)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("room not found: %s", roomID))
	}
	return nil
}

func (s *Postgres) AddVote(ctx context.Context, v domain.Vote) error {
	const stmt = `
INSERT INTO votes (room_id, epoch, client_id, value, cast_time)
VALUES ($1, $2, $3, $4, $5);`

	_, err := s.db.Exec(ctx, stmt, v.RoomID, v.Epoch, v.ClientID, v.Value, v.CastTime)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("already voted: room=%s client=%s", v.RoomID, v.ClientID),
			errors.WithCause(err))
	}

	return err
}

func (s *Postgres) SetVote(ctx context.Context, v domain.Vote) error {
	const stmt = `
INSERT INTO votes (room_id, epoch, client_id, value, cast_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (room_id, epoch, client_id) DO UPDATE SET value = $4, cast_time = $5;`

	_, err := s.db.Exec(ctx, stmt, v.RoomID, v.Epoch, v.ClientID, v.Value, v.CastTime)
	return err
}

func (s *Postgres) ListVotes(ctx context.Context, roomID string, epoch int) ([]domain.Vote, error) {
	const stmt = `
SELECT client_id, value, cast_time FROM votes
WHERE room_id = $1 AND epoch = $2
ORDER BY cast_time;`

	rows, err := s.db.Query(ctx, stmt, roomID, epoch)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Vote, error) {
		v := domain.Vote{RoomID: roomID, Epoch: epoch}
		if err := r.Scan(&v.ClientID, &v.Value, &v.CastTime); err != nil {
			return domain.Vote{}, err
		}
		return v, nil
	})
}

func (s *Postgres) IsHost(ctx context.Context, roomID, clientID string) (bool, error) {
	const stmt = `SELECT host_id FROM rooms WHERE room_id = $1;`

	var hostID string
	err := s.db.QueryRow(ctx, stmt, roomID).Scan(&hostID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return hostID == clientID, nil
}
