package ws

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/victornm/rateroom/internal/domain"
	"github.com/victornm/rateroom/internal/errors"
)

// Inbound envelopes are tagged by a "type" field. Decoding fails closed:
// an unknown tag is an explicit error event back to the sender, not a
// silent drop.

type clientMessage struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId"`
	ClientID string          `json:"clientId"`
	Value    json.RawMessage `json:"value"`
	Duration int64           `json:"duration"` // milliseconds
	Options  []string        `json:"options"`
}

type command interface{ isCommand() }

type cmdJoin struct {
	RoomID   string
	ClientID string
}

type cmdVote struct {
	Value string
}

type cmdStartVote struct {
	Duration time.Duration
}

type cmdEndVote struct{}

type cmdUpdateOptions struct {
	RoomID  string
	Options []string
}

type cmdRequestNewVote struct{}

func (cmdJoin) isCommand()           {}
func (cmdVote) isCommand()           {}
func (cmdStartVote) isCommand()      {}
func (cmdEndVote) isCommand()        {}
func (cmdUpdateOptions) isCommand()  {}
func (cmdRequestNewVote) isCommand() {}

func decodeCommand(data []byte) (command, error) {
	var m clientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed message"),
			errors.WithCause(err))
	}

	switch m.Type {
	case "join":
		return cmdJoin{RoomID: m.RoomID, ClientID: m.ClientID}, nil
	case "vote":
		v, err := decodeValue(m.Value)
		if err != nil {
			return nil, err
		}
		return cmdVote{Value: v}, nil
	case "start-vote":
		return cmdStartVote{Duration: time.Duration(m.Duration) * time.Millisecond}, nil
	case "end-vote":
		return cmdEndVote{}, nil
	case "update-options":
		return cmdUpdateOptions{RoomID: m.RoomID, Options: m.Options}, nil
	case "request-new-vote":
		return cmdRequestNewVote{}, nil
	default:
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown message type: %s", m.Type))
	}
}

// decodeValue accepts the vote value as either a JSON string or a number;
// rating labels are strings server-side.
func decodeValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("vote value is required"))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	}

	return "", errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("vote value must be a string or number"))
}

// Outbound events.

type joinedEvent struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"roomId"`
	IsHost  bool     `json:"isHost"`
	Status  string   `json:"status"`
	Options []string `json:"options"`
}

type resultsEvent struct {
	Type    string          `json:"type"`
	Results []domain.Result `json:"results"`
}

type statusEvent struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type voteConfirmationEvent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type optionsUpdatedEvent struct {
	Type    string   `json:"type"`
	Options []string `json:"options"`
}

type newVoteRequestedEvent struct {
	Type string `json:"type"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newJoinedEvent(r *domain.Room, isHost bool) joinedEvent {
	return joinedEvent{
		Type:    "joined",
		RoomID:  r.RoomID,
		IsHost:  isHost,
		Status:  r.Status(),
		Options: r.Options,
	}
}

func newResultsEvent(results []domain.Result) resultsEvent {
	return resultsEvent{Type: "results", Results: results}
}

func newStatusEvent(status string) statusEvent {
	return statusEvent{Type: "status", Status: status}
}

func newErrorEvent(message string) errorEvent {
	return errorEvent{Type: "error", Message: message}
}
