package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Pranav2456/Rutzo/internal/types"
)

// ABCI query result codes.
const (
	CodeOK       uint32 = 0
	CodeInvalid  uint32 = 1
	CodeNotFound uint32 = 2
)

// Query paths served by duel authorities.
func MatchRoundPath(id types.MatchID) string { return "/duel/match/" + idString(id) + "/round" }
func MatchStatePath(id types.MatchID) string { return "/duel/match/" + idString(id) + "/state" }
func MatchInfoPath(id types.MatchID) string  { return "/duel/match/" + idString(id) }
func PlayerMatchPath(addr string) string     { return "/duel/player/" + addr + "/match" }
func PlayerHistoryPath(addr string) string   { return "/duel/player/" + addr + "/history" }
func CardsPath(addr string) string           { return "/duel/cards/" + addr }

func idString(id types.MatchID) string { return strconv.FormatInt(int64(id), 10) }

// ---- Round information ----

type RoundInfoResponse struct {
	RoundState *RoundStateJSON `json:"roundState"`
}

type RoundStateJSON struct {
	MatchID         int64       `json:"matchId"`
	Round           int         `json:"round"`
	CurrentPlayer   string      `json:"currentPlayer"`
	LastPlayedCard  *types.Card `json:"lastPlayedCard,omitempty"`
	LastPlayedBy    string      `json:"lastPlayedBy,omitempty"`
	LastPlayedRound int         `json:"lastPlayedRound,omitempty"`
}

func (r RoundStateJSON) ToDomain() types.RoundState {
	return types.RoundState{
		Round:           r.Round,
		CurrentPlayer:   r.CurrentPlayer,
		LastPlayedCard:  r.LastPlayedCard,
		LastPlayedBy:    r.LastPlayedBy,
		LastPlayedRound: r.LastPlayedRound,
	}
}

// ---- Match state ----

// MatchStateResponse carries the authority's keyed match state: exactly one of
// inProgress, roundFinished, finished or draw is present, or
// matchDoesNotExist is set.
type MatchStateResponse struct {
	MatchState        map[string]json.RawMessage `json:"matchState,omitempty"`
	MatchDoesNotExist bool                       `json:"matchDoesNotExist,omitempty"`
}

const (
	stateKeyInProgress    = "inProgress"
	stateKeyRoundFinished = "roundFinished"
	stateKeyFinished      = "finished"
	stateKeyDraw          = "draw"
)

type roundFinishedJSON struct {
	Round  int    `json:"round"`
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
}

type finishedJSON struct {
	Winner string `json:"winner"`
}

// DecodeMatchState turns the keyed wire object into a types.MatchState.
func DecodeMatchState(b []byte) (types.MatchState, error) {
	var resp MatchStateResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return types.MatchState{}, fmt.Errorf("decode match state: %w", err)
	}
	if resp.MatchDoesNotExist {
		return types.DoesNotExist(), nil
	}
	if len(resp.MatchState) != 1 {
		return types.MatchState{}, fmt.Errorf("decode match state: want exactly one variant, got %d", len(resp.MatchState))
	}
	for key, raw := range resp.MatchState {
		switch key {
		case stateKeyInProgress:
			return types.InProgress(), nil
		case stateKeyRoundFinished:
			var rf roundFinishedJSON
			if err := unmarshalVariant(raw, &rf); err != nil {
				return types.MatchState{}, fmt.Errorf("decode roundFinished: %w", err)
			}
			if rf.Round < 1 || rf.Round > types.MaxRounds {
				return types.MatchState{}, fmt.Errorf("decode roundFinished: round %d out of range", rf.Round)
			}
			if rf.Draw {
				return types.RoundDrawn(rf.Round), nil
			}
			if rf.Winner == "" {
				return types.MatchState{}, fmt.Errorf("decode roundFinished: missing winner")
			}
			return types.RoundFinished(rf.Round, rf.Winner), nil
		case stateKeyFinished:
			var f finishedJSON
			if err := unmarshalVariant(raw, &f); err != nil {
				return types.MatchState{}, fmt.Errorf("decode finished: %w", err)
			}
			if f.Winner == "" {
				return types.MatchState{}, fmt.Errorf("decode finished: missing winner")
			}
			return types.Finished(f.Winner), nil
		case stateKeyDraw:
			return types.FinishedDraw(), nil
		default:
			return types.MatchState{}, fmt.Errorf("decode match state: unknown variant %q", key)
		}
	}
	panic("unreachable")
}

// EncodeMatchState is the inverse of DecodeMatchState.
func EncodeMatchState(s types.MatchState) ([]byte, error) {
	var resp MatchStateResponse
	variant := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		resp.MatchState = map[string]json.RawMessage{key: raw}
		return nil
	}
	var err error
	switch s.Tag {
	case types.TagDoesNotExist:
		resp.MatchDoesNotExist = true
	case types.TagInProgress:
		err = variant(stateKeyInProgress, struct{}{})
	case types.TagRoundFinished:
		err = variant(stateKeyRoundFinished, roundFinishedJSON{Round: s.Round, Winner: s.Winner, Draw: s.Draw})
	case types.TagFinished:
		if s.Draw {
			err = variant(stateKeyDraw, struct{}{})
		} else {
			err = variant(stateKeyFinished, finishedJSON{Winner: s.Winner})
		}
	default:
		return nil, fmt.Errorf("encode match state: unknown tag %d", s.Tag)
	}
	if err != nil {
		return nil, fmt.Errorf("encode match state: %w", err)
	}
	return json.Marshal(resp)
}

func unmarshalVariant(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("empty variant body")
	}
	return json.Unmarshal(raw, v)
}

// ---- Match information ----

type GameInformationResponse struct {
	GameInformation *MatchInfoJSON `json:"gameInformation"`
}

type MatchInfoJSON struct {
	MatchID     int64      `json:"matchId"`
	User1       PlayerJSON `json:"user1"`
	User2       PlayerJSON `json:"user2"`
	PlayWithBot bool       `json:"playWithBot"`
	Round       int        `json:"round"`
}

type PlayerJSON struct {
	UserID    string       `json:"userId"`
	NftCount  int          `json:"nftCount"`
	ChosenNft uint64       `json:"chosenNft,omitempty"`
	Hand      []types.Card `json:"hand,omitempty"`
}

func (p PlayerJSON) ToDomain() types.PlayerInfo {
	return types.PlayerInfo{
		Address:    p.UserID,
		CardCount:  p.NftCount,
		ChosenCard: types.CardID(p.ChosenNft),
		Hand:       p.Hand,
	}
}

func (m MatchInfoJSON) ToDomain() types.MatchInfo {
	mode := types.OpponentHuman
	if m.PlayWithBot {
		mode = types.OpponentBot
	}
	return types.MatchInfo{
		MatchID: types.MatchID(m.MatchID),
		Player1: m.User1.ToDomain(),
		Player2: m.User2.ToDomain(),
		Mode:    mode,
		Round:   m.Round,
	}
}

// ---- Player lookups ----

type PlayerInMatchResponse struct {
	PlayerInMatch *int64 `json:"playerInMatch"`
}

type PlayerInformationResponse struct {
	PlayerInformation *PlayerInformationJSON `json:"playerInformation"`
}

type PlayerInformationJSON struct {
	RecentPastGame *int64  `json:"recentPastGame"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	Draws          int     `json:"draws"`
	Matches        []int64 `json:"matches,omitempty"`
}

func (p PlayerInformationJSON) ToDomain() types.History {
	h := types.History{
		RecentPastGame: types.NoMatch,
		Wins:           p.Wins,
		Losses:         p.Losses,
		Draws:          p.Draws,
	}
	if p.RecentPastGame != nil {
		h.RecentPastGame = types.MatchID(*p.RecentPastGame)
	}
	for _, id := range p.Matches {
		h.Matches = append(h.Matches, types.MatchID(id))
	}
	return h
}

type TokensForOwnerResponse struct {
	TokensForOwner []types.Card `json:"tokensForOwner"`
}
