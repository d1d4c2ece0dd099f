package types

import (
	"fmt"
	"strings"
)

const (
	// MaxRounds is the number of rounds in a duel.
	MaxRounds = 3
	// HandSize is the number of cards a player commits when joining.
	HandSize = 3
)

// MatchID identifies a match on the ledger. NoMatch is never a valid id.
type MatchID int64

const NoMatch MatchID = -1

func (id MatchID) Valid() bool { return id >= 0 }

// OpponentMode selects who the player is matched against.
type OpponentMode string

const (
	OpponentBot   OpponentMode = "bot"
	OpponentHuman OpponentMode = "human"
)

func ParseOpponentMode(s string) (OpponentMode, error) {
	switch m := OpponentMode(strings.ToLower(strings.TrimSpace(s))); m {
	case OpponentBot, OpponentHuman:
		return m, nil
	default:
		return "", fmt.Errorf("unknown opponent mode %q (want bot|human)", s)
	}
}

// Phase is the lifecycle stage of the local match view.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseSearching
	PhaseInMatch
	PhaseRoundSettling
	PhaseMatchSettling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSearching:
		return "searching"
	case PhaseInMatch:
		return "in_match"
	case PhaseRoundSettling:
		return "round_settling"
	case PhaseMatchSettling:
		return "match_settling"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Outcome is a round or match result from the local player's perspective.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeWon
	OutcomeLost
	OutcomeDrawn
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeWon:
		return "won"
	case OutcomeLost:
		return "lost"
	case OutcomeDrawn:
		return "drawn"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// MatchView is the locally reconciled belief about the active match.
//
// Only the reconciliation core mutates it; everything else works on copies
// returned by Clone.
type MatchView struct {
	MatchID           MatchID
	Phase             Phase
	CurrentRound      int
	IsLocalPlayerTurn bool
	OpponentLabel     string
	OpponentCard      *Card
	OpponentCardCount int
	LocalCardInPlay   *Card
	Outcome           Outcome

	// LocalHand holds the committed cards that have not been played yet.
	LocalHand []Card
	// RoundResults has one entry per settled round, in round order.
	RoundResults []Outcome
}

// IdleView is the view with no active match.
func IdleView() MatchView {
	return MatchView{
		MatchID: NoMatch,
		Phase:   PhaseIdle,
		Outcome: OutcomePending,
	}
}

func (v MatchView) Clone() MatchView {
	out := v
	out.OpponentCard = cloneCard(v.OpponentCard)
	out.LocalCardInPlay = cloneCard(v.LocalCardInPlay)
	if v.LocalHand != nil {
		out.LocalHand = append([]Card(nil), v.LocalHand...)
	}
	if v.RoundResults != nil {
		out.RoundResults = append([]Outcome(nil), v.RoundResults...)
	}
	return out
}

// PlayerInfo is one side of a match as reported by the ledger.
type PlayerInfo struct {
	Address    string
	CardCount  int
	ChosenCard CardID // 0 when no card is on the table
	Hand       []Card
}

// MatchInfo is the ledger's description of a match.
type MatchInfo struct {
	MatchID MatchID
	Player1 PlayerInfo
	Player2 PlayerInfo
	Mode    OpponentMode
	Round   int
}

// Self returns the entry of the given player.
func (m MatchInfo) Self(local string) (PlayerInfo, bool) {
	switch local {
	case m.Player1.Address:
		return m.Player1, true
	case m.Player2.Address:
		return m.Player2, true
	default:
		return PlayerInfo{}, false
	}
}

// Opponent returns the entry of the other player.
func (m MatchInfo) Opponent(local string) (PlayerInfo, bool) {
	switch local {
	case m.Player1.Address:
		return m.Player2, true
	case m.Player2.Address:
		return m.Player1, true
	default:
		return PlayerInfo{}, false
	}
}

// History summarizes a player's finished matches.
type History struct {
	RecentPastGame MatchID
	Wins           int
	Losses         int
	Draws          int
	Matches        []MatchID
}
