// Package types is the realtime wire contract shared by scorekeeper clients and the relay.
// Every frame is one JSON object whose "type" field selects the payload shape.
package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/DoyleJ11/league-scorekeeper/internal/engine"
	sonic "github.com/bytedance/sonic"
)

var ErrUnknownType = errors.New("unknown message type")
var ErrMalformed = errors.New("malformed message")

type MessageType string

const (
	MsgPlayerAssignment   MessageType = "player_assignment"
	MsgGameUpdate         MessageType = "game_update"
	MsgScoreUpdate        MessageType = "score_update"
	MsgScorecardSubmitted MessageType = "scorecard_submitted"
	MsgScorecardConfirmed MessageType = "scorecard_confirmed"
	MsgMatchFinalized     MessageType = "match_finalized"
	MsgLineupSubmitted    MessageType = "lineup_submitted"
	MsgMatchStart         MessageType = "match_start"
	MsgMatchState         MessageType = "match_state"
	MsgStateRequest       MessageType = "state_request"
)

// Message is the closed set of frames. Consumers switch on the concrete type.
type Message interface {
	Kind() MessageType
	isMessage()
}

// GameRef addresses a game on the wire. GameNumber wins when present; otherwise GameID is
// matched against the server id, then against the game number.
type GameRef struct {
	GameID     int64 `json:"game_id"`
	GameNumber int   `json:"game_number,omitempty"`
}

type PlayerAssignment struct {
	GameRef
	PlayerID *int64      `json:"player_id"`
	TeamSide engine.Side `json:"team_side"`
}

// GameData is a partial game patch; absent fields are left untouched.
// An empty winner clears it.
type GameData struct {
	Winner         *engine.Side `json:"winner,omitempty"`
	HomeTableRun   *bool        `json:"home_table_run,omitempty"`
	AwayTableRun   *bool        `json:"away_table_run,omitempty"`
	Home8BallBreak *bool        `json:"home_8ball_break,omitempty"`
	Away8BallBreak *bool        `json:"away_8ball_break,omitempty"`
}

type GameUpdate struct {
	GameRef
	GameData GameData `json:"game_data"`
}

// ScoreUpdate is informational only.
type ScoreUpdate struct {
	HomeScore int `json:"home_score"`
	AwayScore int `json:"away_score"`
}

type ScorecardSubmitted struct {
	SubmittedBy engine.Side `json:"submitted_by"`
	HomeScore   int         `json:"home_score"`
	AwayScore   int         `json:"away_score"`
}

type ScorecardConfirmed struct {
	HomeScore int `json:"home_score"`
	AwayScore int `json:"away_score"`
}

type MatchFinalized struct {
	Success   bool `json:"success"`
	HomeScore int  `json:"home_score"`
	AwayScore int  `json:"away_score"`
}

type LineupSubmitted struct {
	TeamSide engine.Side `json:"team_side"`
}

type MatchStart struct{}

type MatchState struct {
	Data MatchStateData `json:"data"`
}

// StateRequest asks the relay to push a fresh match_state to the sender only.
type StateRequest struct{}

func (PlayerAssignment) Kind() MessageType   { return MsgPlayerAssignment }
func (GameUpdate) Kind() MessageType         { return MsgGameUpdate }
func (ScoreUpdate) Kind() MessageType        { return MsgScoreUpdate }
func (ScorecardSubmitted) Kind() MessageType { return MsgScorecardSubmitted }
func (ScorecardConfirmed) Kind() MessageType { return MsgScorecardConfirmed }
func (MatchFinalized) Kind() MessageType     { return MsgMatchFinalized }
func (LineupSubmitted) Kind() MessageType    { return MsgLineupSubmitted }
func (MatchStart) Kind() MessageType         { return MsgMatchStart }
func (MatchState) Kind() MessageType         { return MsgMatchState }
func (StateRequest) Kind() MessageType       { return MsgStateRequest }

func (PlayerAssignment) isMessage()   {}
func (GameUpdate) isMessage()         {}
func (ScoreUpdate) isMessage()        {}
func (ScorecardSubmitted) isMessage() {}
func (ScorecardConfirmed) isMessage() {}
func (MatchFinalized) isMessage()     {}
func (LineupSubmitted) isMessage()    {}
func (MatchStart) isMessage()         {}
func (MatchState) isMessage()         {}
func (StateRequest) isMessage()       {}

// Encode renders msg as a single JSON object with its "type" discriminator first.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	body, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	buf.WriteString(`{"type":"`)
	buf.WriteString(string(msg.Kind()))
	buf.WriteByte('"')
	body = bytes.TrimSpace(body)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode parses one frame. Unknown types are rejected rather than guessed at.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := sonic.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case MsgPlayerAssignment:
		return decodeInto[PlayerAssignment](data)
	case MsgGameUpdate:
		return decodeInto[GameUpdate](data)
	case MsgScoreUpdate:
		return decodeInto[ScoreUpdate](data)
	case MsgScorecardSubmitted:
		return decodeInto[ScorecardSubmitted](data)
	case MsgScorecardConfirmed:
		return decodeInto[ScorecardConfirmed](data)
	case MsgMatchFinalized:
		return decodeInto[MatchFinalized](data)
	case MsgLineupSubmitted:
		return decodeInto[LineupSubmitted](data)
	case MsgMatchStart:
		return MatchStart{}, nil
	case MsgMatchState:
		return decodeInto[MatchState](data)
	case MsgStateRequest:
		return StateRequest{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

type validatable interface {
	validate() error
}

func decodeInto[T Message](data []byte) (Message, error) {
	var msg T
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Kind(), err)
	}
	if v, ok := any(msg).(validatable); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Kind(), err)
		}
	}
	return msg, nil
}

func (m PlayerAssignment) validate() error {
	if !m.TeamSide.Valid() {
		return fmt.Errorf("team_side %q", m.TeamSide)
	}
	if m.GameID <= 0 && m.GameNumber <= 0 {
		return errors.New("game reference required")
	}
	return nil
}

func (m GameUpdate) validate() error {
	if m.GameID <= 0 && m.GameNumber <= 0 {
		return errors.New("game reference required")
	}
	if w := m.GameData.Winner; w != nil && *w != "" && !w.Valid() {
		return fmt.Errorf("winner %q", *w)
	}
	return nil
}

func (m ScorecardSubmitted) validate() error {
	if !m.SubmittedBy.Valid() {
		return fmt.Errorf("submitted_by %q", m.SubmittedBy)
	}
	return nil
}

func (m LineupSubmitted) validate() error {
	if !m.TeamSide.Valid() {
		return fmt.Errorf("team_side %q", m.TeamSide)
	}
	return nil
}

func (m MatchState) validate() error {
	if !m.Data.LineupState.Valid() {
		return fmt.Errorf("lineup_state %q", m.Data.LineupState)
	}
	if s := m.Data.SubmittedBy; s != nil && !s.Valid() {
		return fmt.Errorf("submitted_by %q", *s)
	}
	for i, g := range m.Data.Games {
		if g.GameNumber != i+1 {
			return fmt.Errorf("games[%d] has game_number %d", i, g.GameNumber)
		}
		if g.Winner != nil && !g.Winner.Valid() {
			return fmt.Errorf("games[%d] winner %q", i, *g.Winner)
		}
	}
	return nil
}
