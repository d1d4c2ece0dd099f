package types

import "fmt"

// StateTag discriminates MatchState variants.
type StateTag uint8

const (
	TagInProgress StateTag = iota
	TagRoundFinished
	TagFinished
	TagDoesNotExist
)

func (t StateTag) String() string {
	switch t {
	case TagInProgress:
		return "in_progress"
	case TagRoundFinished:
		return "round_finished"
	case TagFinished:
		return "finished"
	case TagDoesNotExist:
		return "does_not_exist"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// MatchState is the match-level state reported by the ledger.
//
// Round is set for TagRoundFinished only. Winner is empty when Draw is set.
type MatchState struct {
	Tag    StateTag
	Round  int
	Winner string
	Draw   bool
}

func InProgress() MatchState { return MatchState{Tag: TagInProgress} }

func RoundFinished(round int, winner string) MatchState {
	return MatchState{Tag: TagRoundFinished, Round: round, Winner: winner}
}

func RoundDrawn(round int) MatchState {
	return MatchState{Tag: TagRoundFinished, Round: round, Draw: true}
}

func Finished(winner string) MatchState {
	return MatchState{Tag: TagFinished, Winner: winner}
}

func FinishedDraw() MatchState { return MatchState{Tag: TagFinished, Draw: true} }

func DoesNotExist() MatchState { return MatchState{Tag: TagDoesNotExist} }

// OutcomeFor maps a winner/draw report onto the local player's outcome.
func (s MatchState) OutcomeFor(local string) Outcome {
	switch {
	case s.Draw:
		return OutcomeDrawn
	case s.Winner != "" && s.Winner == local:
		return OutcomeWon
	default:
		return OutcomeLost
	}
}

func (s MatchState) String() string {
	switch s.Tag {
	case TagRoundFinished:
		if s.Draw {
			return fmt.Sprintf("round_finished(round=%d, draw)", s.Round)
		}
		return fmt.Sprintf("round_finished(round=%d, winner=%s)", s.Round, s.Winner)
	case TagFinished:
		if s.Draw {
			return "finished(draw)"
		}
		return fmt.Sprintf("finished(winner=%s)", s.Winner)
	default:
		return s.Tag.String()
	}
}

// RoundState is the per-round portion of a snapshot.
//
// LastPlayedBy and LastPlayedRound are optional; authorities that omit them
// leave them zero.
type RoundState struct {
	Round           int
	CurrentPlayer   string
	LastPlayedCard  *Card
	LastPlayedBy    string
	LastPlayedRound int
}

// Resolvable reports whether the round state names whose turn it is.
func (r RoundState) Resolvable() bool { return r.CurrentPlayer != "" }

// Snapshot is one point-in-time read of a match from the ledger.
type Snapshot struct {
	Round RoundState
	State MatchState
}
