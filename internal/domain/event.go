package domain

const (
	EventNameVotingStarted    = "voting.started"
	EventNameVotingEnded      = "voting.ended"
	EventNameOptionsUpdated   = "options.updated"
	EventNameNewVoteRequested = "vote.new_requested"
	EventNameResultsUpdated   = "results.updated"
)

type EventVotingStarted struct {
	Room Room
}

func (EventVotingStarted) Name() string { return EventNameVotingStarted }

type EventVotingEnded struct {
	Room Room
}

func (EventVotingEnded) Name() string { return EventNameVotingEnded }

type EventOptionsUpdated struct {
	Room Room
}

func (EventOptionsUpdated) Name() string { return EventNameOptionsUpdated }

type EventNewVoteRequested struct {
	Room Room
}

func (EventNewVoteRequested) Name() string { return EventNameNewVoteRequested }

type EventResultsUpdated struct {
	RoomID  string
	Results []Result
}

func (EventResultsUpdated) Name() string { return EventNameResultsUpdated }
