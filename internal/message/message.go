// internal/message/message.go
// Message shapes exchanged between troubleflipper clients and the tournament server.
package message

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a message variant.
type Kind int

const (
	KindUsers Kind = iota + 1
	KindUsersAck
	KindTournaments
	KindTeams
)

func (k Kind) String() string {
	switch k {
	case KindUsers:
		return "users"
	case KindUsersAck:
		return "users_ack"
	case KindTournaments:
		return "tournaments"
	case KindTeams:
		return "teams"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is implemented only by the shapes in this package.
type Message interface {
	Kind() Kind
	isMessage()
}

// Acknowledgement results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Tournament actions understood by the server.
const (
	ActionBuildTeams = "buildTeams"
	ActionStopGames  = "stopGames"
)

// UsersMessage is sent once by a client after choosing a username.
type UsersMessage struct {
	Username string `json:"username"`
	ClientID string `json:"clientId"`
}

func NewUsersMessage(username, clientID string) *UsersMessage {
	return &UsersMessage{Username: username, ClientID: clientID}
}

func (*UsersMessage) Kind() Kind { return KindUsers }
func (*UsersMessage) isMessage() {}

// UsersAckMessage is the server's answer to a UsersMessage.
type UsersAckMessage struct {
	Result string `json:"result"`
	UsersMessage
}

func NewUsersAckMessage(result, username, clientID string) *UsersAckMessage {
	return &UsersAckMessage{
		Result:       result,
		UsersMessage: UsersMessage{Username: username, ClientID: clientID},
	}
}

func (*UsersAckMessage) Kind() Kind { return KindUsersAck }

// IsSuccess reports whether Result is ResultSuccess. Any other value,
// including unknown ones, counts as not successful.
func (m *UsersAckMessage) IsSuccess() bool {
	return m.Result == ResultSuccess
}

func (m *UsersAckMessage) IsFailure() bool {
	return !m.IsSuccess()
}

// TournamentsMessage is sent by the game master to start a round.
type TournamentsMessage struct {
	Action string `json:"action"`
}

func NewTournamentsMessage() *TournamentsMessage {
	return &TournamentsMessage{Action: ActionBuildTeams}
}

func (*TournamentsMessage) Kind() Kind { return KindTournaments }
func (*TournamentsMessage) isMessage() {}

// TeamsMessage carries a puzzle assignment. Puzzle is kept as raw JSON and
// not interpreted here.
type TeamsMessage struct {
	Puzzle json.RawMessage `json:"puzzle,omitempty"`
}

// NewTeamsMessage marshals puzzle into the message.
func NewTeamsMessage(puzzle any) (*TeamsMessage, error) {
	raw, err := json.Marshal(puzzle)
	if err != nil {
		return nil, fmt.Errorf("marshal puzzle: %w", err)
	}
	return &TeamsMessage{Puzzle: raw}, nil
}

func (*TeamsMessage) Kind() Kind { return KindTeams }
func (*TeamsMessage) isMessage() {}

// PuzzlePiece is one tile of the board as the server sends it.
type PuzzlePiece struct {
	Index int                        `json:"index"`
	Extra map[string]json.RawMessage `json:"-"`
}

func (p *PuzzlePiece) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["index"]; ok {
		if err := json.Unmarshal(raw, &p.Index); err != nil {
			return fmt.Errorf("puzzle piece index: %w", err)
		}
		delete(fields, "index")
	}
	if len(fields) > 0 {
		p.Extra = fields
	}
	return nil
}

// Pieces decodes Puzzle as a list of pieces. It fails if the puzzle has any
// other shape.
func (m *TeamsMessage) Pieces() ([]PuzzlePiece, error) {
	if len(m.Puzzle) == 0 || string(m.Puzzle) == "null" {
		return nil, nil
	}
	var pieces []PuzzlePiece
	if err := json.Unmarshal(m.Puzzle, &pieces); err != nil {
		return nil, fmt.Errorf("puzzle is not a piece list: %w", err)
	}
	return pieces, nil
}
