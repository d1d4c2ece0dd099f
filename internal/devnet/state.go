package devnet

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Pranav2456/Rutzo/internal/types"
)

// BotAddress is the account that plays bot matches.
const BotAddress = "duel-bot"

// Bot cards live above this id so they never collide with minted cards.
const botCardBase uint64 = 1 << 48

// Match states as reported by /duel/match/<id>/state.
const (
	StateInProgress    = "inProgress"
	StateRoundFinished = "roundFinished"
	StateFinished      = "finished"
	StateDraw          = "draw"
)

type State struct {
	Height int64 `json:"height"`

	NextMatchID int64  `json:"nextMatchId"`
	NextCardID  uint64 `json:"nextCardId"`

	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce
	Intents     map[string]int64  `json:"intents,omitempty"`     // signer/intentKey -> height executed

	Cards       map[uint64]*types.Card  `json:"cards"`
	Owners      map[uint64]string       `json:"owners"`
	Matches     map[int64]*Match        `json:"matches"`
	PlayerMatch map[string]int64        `json:"playerMatch"`
	Players     map[string]*PlayerStats `json:"players"`
	Waiting     *Waiting                `json:"waiting,omitempty"`
}

// Waiting is a human player queued for an opponent.
type Waiting struct {
	Player string   `json:"player"`
	Cards  []uint64 `json:"cards"`
}

type PlayerStats struct {
	RecentPastGame *int64  `json:"recentPastGame,omitempty"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	Draws          int     `json:"draws"`
	Matches        []int64 `json:"matches,omitempty"`
}

type Seat struct {
	Player string `json:"player"`
	// Hand holds committed cards not consumed by a settled round, including
	// Chosen while it is on the table.
	Hand   []uint64 `json:"hand"`
	Chosen uint64   `json:"chosen,omitempty"`
}

func (s *Seat) holds(card uint64) bool {
	for _, c := range s.Hand {
		if c == card {
			return true
		}
	}
	return false
}

func (s *Seat) unplayed() int {
	n := len(s.Hand)
	if s.Chosen != 0 {
		n--
	}
	return n
}

type LastPlay struct {
	Card  uint64 `json:"card"`
	By    string `json:"by"`
	Round int    `json:"round"`
}

type RoundResult struct {
	Round  int    `json:"round"`
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
}

type Match struct {
	ID    int64   `json:"id"`
	Seats [2]Seat `json:"seats"`
	Bot   bool    `json:"bot"`
	Round int     `json:"round"`
	Turn  int     `json:"turn"` // seat index to act

	Last    *LastPlay     `json:"last,omitempty"`
	Results []RoundResult `json:"results,omitempty"`

	State  string `json:"state"`
	Winner string `json:"winner,omitempty"`
}

func (m *Match) seatOf(player string) int {
	for i := range m.Seats {
		if m.Seats[i].Player == player {
			return i
		}
	}
	return -1
}

func (m *Match) over() bool { return m.State == StateFinished || m.State == StateDraw }

// starter is the seat that leads round r; seats alternate.
func starter(round int) int { return (round - 1) % 2 }

func NewState() *State {
	return &State{
		Height:      0,
		NextMatchID: 1,
		NextCardID:  1,
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
		Intents:     map[string]int64{},
		Cards:       map[uint64]*types.Card{},
		Owners:      map[uint64]string{},
		Matches:     map[int64]*Match{},
		PlayerMatch: map[string]int64{},
		Players:     map[string]*PlayerStats{},
	}
}

func (s *State) normalize() {
	if s.NextMatchID == 0 {
		s.NextMatchID = 1
	}
	if s.NextCardID == 0 {
		s.NextCardID = 1
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Intents == nil {
		s.Intents = map[string]int64{}
	}
	if s.Cards == nil {
		s.Cards = map[uint64]*types.Card{}
	}
	if s.Owners == nil {
		s.Owners = map[uint64]string{}
	}
	if s.Matches == nil {
		s.Matches = map[int64]*Match{}
	}
	if s.PlayerMatch == nil {
		s.PlayerMatch = map[string]int64{}
	}
	if s.Players == nil {
		s.Players = map[string]*PlayerStats{}
	}
}

// Load reads state from home; a missing file yields a fresh state.
func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// AppHash hashes a normalized view of the state; encoding/json does not
// order map keys, so maps are flattened into sorted slices first.
func (s *State) AppHash() []byte {
	type kv struct {
		K string          `json:"k"`
		V json.RawMessage `json:"v"`
	}
	flatten := func(m map[string]json.RawMessage) []kv {
		out := make([]kv, 0, len(m))
		for k, v := range m {
			out = append(out, kv{K: k, V: v})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].K < out[j].K })
		return out
	}
	enc := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}

	keys := map[string]json.RawMessage{}
	for k, v := range s.AccountKeys {
		keys[k] = enc(v)
	}
	nonces := map[string]json.RawMessage{}
	for k, v := range s.NonceMax {
		nonces[k] = enc(v)
	}
	intents := map[string]json.RawMessage{}
	for k, v := range s.Intents {
		intents[k] = enc(v)
	}
	cards := map[string]json.RawMessage{}
	for id, c := range s.Cards {
		cards[fmt.Sprintf("%020d", id)] = enc(struct {
			Card  *types.Card `json:"card"`
			Owner string      `json:"owner"`
		}{c, s.Owners[id]})
	}
	matches := map[string]json.RawMessage{}
	for id, m := range s.Matches {
		matches[fmt.Sprintf("%020d", id)] = enc(m)
	}
	inMatch := map[string]json.RawMessage{}
	for k, v := range s.PlayerMatch {
		inMatch[k] = enc(v)
	}
	players := map[string]json.RawMessage{}
	for k, v := range s.Players {
		players[k] = enc(v)
	}

	normalized := struct {
		Height      int64    `json:"height"`
		NextMatchID int64    `json:"nextMatchId"`
		NextCardID  uint64   `json:"nextCardId"`
		AccountKeys []kv     `json:"accountKeys"`
		NonceMax    []kv     `json:"nonceMax"`
		Intents     []kv     `json:"intents"`
		Cards       []kv     `json:"cards"`
		Matches     []kv     `json:"matches"`
		PlayerMatch []kv     `json:"playerMatch"`
		Players     []kv     `json:"players"`
		Waiting     *Waiting `json:"waiting,omitempty"`
	}{
		Height:      s.Height,
		NextMatchID: s.NextMatchID,
		NextCardID:  s.NextCardID,
		AccountKeys: flatten(keys),
		NonceMax:    flatten(nonces),
		Intents:     flatten(intents),
		Cards:       flatten(cards),
		Matches:     flatten(matches),
		PlayerMatch: flatten(inMatch),
		Players:     flatten(players),
		Waiting:     s.Waiting,
	}
	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

func (s *State) stats(player string) *PlayerStats {
	p := s.Players[player]
	if p == nil {
		p = &PlayerStats{}
		s.Players[player] = p
	}
	return p
}

// botHand deals the bot three deterministic cards for match id.
func (s *State) botHand(id int64) []uint64 {
	elements := []types.ElementType{
		types.ElementFire, types.ElementWater, types.ElementRock,
		types.ElementIce, types.ElementDark, types.ElementFighting,
	}
	hand := make([]uint64, 0, types.HandSize)
	for i := 0; i < types.HandSize; i++ {
		var seed [16]byte
		binary.BigEndian.PutUint64(seed[:8], uint64(id))
		binary.BigEndian.PutUint64(seed[8:], uint64(i))
		sum := sha256.Sum256(seed[:])
		cardID := botCardBase + uint64(id)*types.HandSize + uint64(i)
		s.Cards[cardID] = &types.Card{
			ID:    types.CardID(cardID),
			Name:  fmt.Sprintf("Bot Card %d", i+1),
			Type:  elements[int(sum[0])%len(elements)],
			Power: 10 + uint32(binary.BigEndian.Uint16(sum[1:3]))%90,
		}
		s.Owners[cardID] = BotAddress
		hand = append(hand, cardID)
	}
	return hand
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}
