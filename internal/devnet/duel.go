package devnet

import (
	"fmt"

	"github.com/Pranav2456/Rutzo/internal/types"
)

func (s *State) mint(to, name, image string, typ types.ElementType, power uint32) (uint64, error) {
	if to == "" {
		return 0, fmt.Errorf("missing to")
	}
	id := s.NextCardID
	card := types.Card{ID: types.CardID(id), Name: name, Image: image, Type: typ, Power: power}
	if err := card.Validate(); err != nil {
		return 0, err
	}
	s.NextCardID++
	s.Cards[id] = &card
	s.Owners[id] = to
	return id, nil
}

// cardsOf lists the cards owned by addr in id order.
func (s *State) cardsOf(addr string) []types.Card {
	out := []types.Card{}
	for id := uint64(1); id < s.NextCardID; id++ {
		if s.Owners[id] == addr && s.Cards[id] != nil {
			out = append(out, *s.Cards[id])
		}
	}
	return out
}

// join pairs player with a bot or a waiting human. It returns the new match
// id, or 0 while the player waits for an opponent.
func (s *State) join(player string, cards []uint64, withBot bool) (int64, error) {
	if len(cards) != types.HandSize {
		return 0, fmt.Errorf("need exactly %d cards", types.HandSize)
	}
	seen := map[uint64]bool{}
	for _, c := range cards {
		if seen[c] {
			return 0, fmt.Errorf("card %d listed twice", c)
		}
		seen[c] = true
		if s.Owners[c] != player {
			return 0, fmt.Errorf("card %d not owned by %s", c, player)
		}
	}
	if id, ok := s.PlayerMatch[player]; ok {
		return 0, fmt.Errorf("player already in match %d", id)
	}
	if s.Waiting != nil && s.Waiting.Player == player {
		return 0, fmt.Errorf("player already waiting for an opponent")
	}

	hand := append([]uint64(nil), cards...)
	if withBot {
		id := s.newMatch(Seat{Player: player, Hand: hand}, Seat{}, true)
		return id, nil
	}
	if s.Waiting == nil {
		s.Waiting = &Waiting{Player: player, Cards: hand}
		return 0, nil
	}
	first := Seat{Player: s.Waiting.Player, Hand: s.Waiting.Cards}
	s.Waiting = nil
	return s.newMatch(first, Seat{Player: player, Hand: hand}, false), nil
}

func (s *State) newMatch(first, second Seat, bot bool) int64 {
	id := s.NextMatchID
	s.NextMatchID++
	if bot {
		second = Seat{Player: BotAddress, Hand: s.botHand(id)}
	}
	m := &Match{
		ID:    id,
		Seats: [2]Seat{first, second},
		Bot:   bot,
		Round: 1,
		Turn:  starter(1),
		State: StateInProgress,
	}
	s.Matches[id] = m
	for _, seat := range m.Seats {
		if seat.Player != BotAddress {
			s.PlayerMatch[seat.Player] = id
		}
	}
	return id
}

// play puts card on the table for player and resolves the round once both
// seats have played. In bot matches the bot answers immediately.
func (s *State) play(player string, matchID int64, card uint64) error {
	m := s.Matches[matchID]
	if m == nil {
		return fmt.Errorf("match not found")
	}
	if m.over() {
		return fmt.Errorf("match is over")
	}
	seat := m.seatOf(player)
	if seat < 0 {
		return fmt.Errorf("player not in match")
	}
	if m.Turn != seat {
		return fmt.Errorf("not your turn")
	}
	if err := s.place(m, seat, card); err != nil {
		return err
	}
	if m.State == StateRoundFinished && !m.over() {
		// A new human move hides the previous round's result.
		m.State = StateInProgress
	}
	return s.advance(m)
}

func (s *State) place(m *Match, seat int, card uint64) error {
	st := &m.Seats[seat]
	if st.Chosen != 0 {
		return fmt.Errorf("card already played this round")
	}
	if !st.holds(card) {
		return fmt.Errorf("card %d not in hand", card)
	}
	st.Chosen = card
	m.Last = &LastPlay{Card: card, By: st.Player, Round: m.Round}
	return nil
}

// advance hands the turn over, resolving rounds and letting the bot move
// until a human has to act or the match is over.
func (s *State) advance(m *Match) error {
	for !m.over() {
		if m.Seats[0].Chosen != 0 && m.Seats[1].Chosen != 0 {
			s.resolveRound(m)
			continue
		}
		other := 1 - m.Turn
		if m.Seats[m.Turn].Chosen != 0 {
			m.Turn = other
		}
		if !m.Bot || m.Seats[m.Turn].Player != BotAddress {
			return nil
		}
		bot := &m.Seats[m.Turn]
		if len(bot.Hand) == 0 {
			return fmt.Errorf("bot has no card left in round %d", m.Round)
		}
		// The bot plays its first remaining card.
		if err := s.place(m, m.Turn, bot.Hand[0]); err != nil {
			return fmt.Errorf("bot move: %w", err)
		}
	}
	return nil
}

func (s *State) resolveRound(m *Match) {
	a, b := &m.Seats[0], &m.Seats[1]
	pa, pb := s.Cards[a.Chosen].Power, s.Cards[b.Chosen].Power
	res := RoundResult{Round: m.Round}
	switch {
	case pa > pb:
		res.Winner = a.Player
	case pb > pa:
		res.Winner = b.Player
	default:
		res.Draw = true
	}
	m.Results = append(m.Results, res)
	for _, seat := range []*Seat{a, b} {
		seat.Hand = removeCard(seat.Hand, seat.Chosen)
		seat.Chosen = 0
	}
	m.State = StateRoundFinished

	if m.Round >= types.MaxRounds {
		s.finish(m)
		return
	}
	m.Round++
	m.Turn = starter(m.Round)
}

func (s *State) finish(m *Match) {
	wins := map[string]int{}
	for _, r := range m.Results {
		if !r.Draw {
			wins[r.Winner]++
		}
	}
	p0, p1 := m.Seats[0].Player, m.Seats[1].Player
	switch {
	case wins[p0] > wins[p1]:
		m.State, m.Winner = StateFinished, p0
	case wins[p1] > wins[p0]:
		m.State, m.Winner = StateFinished, p1
	default:
		m.State = StateDraw
	}

	for _, seat := range m.Seats {
		if seat.Player == BotAddress {
			continue
		}
		delete(s.PlayerMatch, seat.Player)
		ps := s.stats(seat.Player)
		id := m.ID
		ps.RecentPastGame = &id
		ps.Matches = append(ps.Matches, id)
		switch {
		case m.State == StateDraw:
			ps.Draws++
		case m.Winner == seat.Player:
			ps.Wins++
		default:
			ps.Losses++
		}
	}
}

// abandon deletes an unfinished match. Either player may abandon.
func (s *State) abandon(player string, matchID int64) error {
	m := s.Matches[matchID]
	if m == nil {
		return fmt.Errorf("match not found")
	}
	if m.seatOf(player) < 0 {
		return fmt.Errorf("player not in match")
	}
	for _, seat := range m.Seats {
		if s.PlayerMatch[seat.Player] == matchID {
			delete(s.PlayerMatch, seat.Player)
		}
		if seat.Player == BotAddress {
			continue
		}
		// Abandoned matches count as past games without a result.
		ps := s.stats(seat.Player)
		id := matchID
		ps.RecentPastGame = &id
		ps.Matches = append(ps.Matches, id)
	}
	delete(s.Matches, matchID)
	return nil
}

func removeCard(hand []uint64, card uint64) []uint64 {
	out := make([]uint64, 0, len(hand))
	for _, c := range hand {
		if c != card {
			out = append(out, c)
		}
	}
	return out
}
