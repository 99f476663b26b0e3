package domain

import (
	"time"
)

// Room is a voting session container with one host and a shared option set.
type Room struct {
	RoomID         string
	HostID         string
	VotingActive   bool
	VotingDuration time.Duration
	VotingEndTime  *time.Time
	Options        []string
	// Epoch counts started voting sessions. Votes carry the epoch they were
	// cast in, so results never mix rows from earlier sessions.
	Epoch int
}

// DefaultOptions are the ten numeric rating labels a new room starts with.
func DefaultOptions() []string {
	return []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
}

// Statuses as presented to clients. Ended and waiting both mean "not
// active"; StatusEnded only appears in the broadcast after a session ends.
const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusEnded   = "ended"
)

// Status returns the join-time status string for the room.
func (r *Room) Status() string {
	if r.VotingActive {
		return StatusActive
	}
	return StatusWaiting
}

// Expired reports whether the voting window has passed, regardless of
// whether the end timer has fired yet.
func (r *Room) Expired(now time.Time) bool {
	return r.VotingEndTime != nil && !now.Before(*r.VotingEndTime)
}

// HasOption reports whether value is one of the room's current options.
func (r *Room) HasOption(value string) bool {
	for _, o := range r.Options {
		if o == value {
			return true
		}
	}
	return false
}

// Vote is a single client's chosen option within a room's current session.
type Vote struct {
	RoomID   string
	Epoch    int
	ClientID string
	Value    string
	CastTime time.Time
}

// Result is one entry of an aggregated tally.
type Result struct {
	Rating     string `json:"rating"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}
