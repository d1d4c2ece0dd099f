package match

import (
	"errors"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/Pranav2456/Rutzo/internal/types"
)

// playKey identifies one observed play of a card.
type playKey struct {
	round int
	card  types.CardID
}

type subscriber struct {
	id int
	fn types.Listener
}

// Core owns the MatchView. Every mutation goes through one of its transition
// methods; readers get deep copies.
//
// Events raised by a transition are queued under the lock and delivered after
// it is released, in order. A listener may call back into the Core.
type Core struct {
	local  string
	logger log.Logger

	mu   sync.Mutex
	view types.MatchView
	// settledRound is the highest round whose round-finished was processed.
	settledRound int
	seenPlays    map[playKey]bool
	// opponentRound is the round OpponentCard was played in.
	opponentRound int
	// playedRound is the last round the local player has played in.
	playedRound int
	// epoch advances every time the view returns to Idle.
	epoch uint64

	subs     []subscriber
	nextSub  int
	queue    []types.Event
	draining bool
}

// New returns a Core for the player identified by local.
func New(local string, logger log.Logger) *Core {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	c := &Core{
		local:  local,
		logger: logger.With("module", "match"),
	}
	c.resetLocked()
	return c
}

// Subscribe registers fn for every subsequent event. The returned func
// unregisters it.
func (c *Core) Subscribe(fn types.Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Core) View() types.MatchView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Clone()
}

// IsLocalTurn reports the last-known turn for id. It is false for any match
// other than the active one.
func (c *Core) IsLocalTurn(id types.MatchID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.MatchID == id && c.view.Phase == types.PhaseInMatch && c.view.IsLocalPlayerTurn
}

// BeginSearch records that a join was submitted. The returned epoch guards
// the adoption of whatever match the search finds.
func (c *Core) BeginSearch() (epoch uint64, err error) {
	c.mu.Lock()
	if c.view.Phase != types.PhaseIdle {
		phase := c.view.Phase
		c.mu.Unlock()
		return 0, errorsmod.Wrapf(types.ErrInvalidRequest, "cannot search while %s", phase)
	}
	c.setPhaseLocked(types.PhaseSearching)
	epoch = c.epoch
	c.mu.Unlock()
	c.flush()
	return epoch, nil
}

// Epoch identifies the current Idle period. Reset, Fail, Cancel, Acknowledge
// and a vanished match all advance it.
func (c *Core) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Adopt binds the view to a discovered match. info may be nil when the
// authority has no match information yet.
func (c *Core) Adopt(id types.MatchID, info *types.MatchInfo) error {
	return c.adopt(nil, id, info)
}

// AdoptIfCurrent is Adopt that fails with ErrSessionReset when the view was
// reset since epoch was taken.
func (c *Core) AdoptIfCurrent(epoch uint64, id types.MatchID, info *types.MatchInfo) error {
	return c.adopt(&epoch, id, info)
}

func (c *Core) adopt(epoch *uint64, id types.MatchID, info *types.MatchInfo) error {
	if !id.Valid() {
		return errorsmod.Wrapf(types.ErrInvalidRequest, "invalid match id %d", id)
	}
	c.mu.Lock()
	if epoch != nil && *epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Info("dropping discovered match after reset", "match_id", int64(id))
		return errorsmod.Wrapf(types.ErrSessionReset, "match %d", id)
	}
	switch c.view.Phase {
	case types.PhaseIdle, types.PhaseSearching:
	default:
		cur, phase := c.view.MatchID, c.view.Phase
		c.mu.Unlock()
		if cur == id {
			return nil
		}
		return errorsmod.Wrapf(types.ErrInvalidRequest, "match %d already active (%s)", cur, phase)
	}

	c.clearMatchLocked()
	c.view.MatchID = id
	c.view.CurrentRound = 1
	c.view.OpponentCardCount = types.HandSize
	if info != nil {
		c.seedLocked(*info)
	}
	if c.view.Phase == types.PhaseIdle {
		c.setPhaseLocked(types.PhaseSearching)
	}
	c.logger.Info("match adopted",
		"match_id", int64(id),
		"opponent", c.view.OpponentLabel,
		"round", c.view.CurrentRound,
	)
	c.mu.Unlock()
	c.flush()
	return nil
}

func (c *Core) seedLocked(info types.MatchInfo) {
	if info.Round > 0 {
		c.view.CurrentRound = info.Round
		c.settledRound = info.Round - 1
	}
	if opp, ok := info.Opponent(c.local); ok {
		c.view.OpponentLabel = opp.Address
		c.view.OpponentCardCount = opp.CardCount
	}
	if c.view.OpponentLabel == "" && info.Mode == types.OpponentBot {
		c.view.OpponentLabel = "bot"
	}
	self, ok := info.Self(c.local)
	if !ok {
		c.logger.Error("local player missing from match information", "match_id", int64(info.MatchID))
		return
	}
	hand := make([]types.Card, 0, len(self.Hand))
	for _, card := range self.Hand {
		if self.ChosenCard != 0 && card.ID == self.ChosenCard {
			played := card
			c.view.LocalCardInPlay = &played
			c.playedRound = c.view.CurrentRound
			continue
		}
		hand = append(hand, card)
	}
	c.view.LocalHand = hand
}

// Cancel abandons a search.
func (c *Core) Cancel() {
	c.mu.Lock()
	if c.view.Phase == types.PhaseSearching {
		c.resetLocked()
	}
	c.mu.Unlock()
	c.flush()
}

// Fail abandons the active search or match and reports err.
func (c *Core) Fail(err error) {
	c.mu.Lock()
	id := c.view.MatchID
	kind := types.EventSubmissionFailed
	switch {
	case errors.Is(err, types.ErrMatchNotFound):
		kind = types.EventMatchNotFound
	case errors.Is(err, types.ErrAuthorityDesync):
		kind = types.EventAuthorityDesync
	}
	c.logger.Info("match failed", "match_id", int64(id), "err", err)
	c.emitLocked(kind, id, types.ErrorPayload{Err: err})
	c.resetLocked()
	c.mu.Unlock()
	c.flush()
}

// Notify publishes an event that does not change the view, e.g. a rejected
// submission or a failed poll.
func (c *Core) Notify(kind types.EventKind, id types.MatchID, payload any) {
	c.mu.Lock()
	c.emitLocked(kind, id, payload)
	c.mu.Unlock()
	c.flush()
}

// RecordLocalPlay marks card as played in round once the authority accepted
// it. If round was settled in the meantime the card only leaves the hand.
// It returns false when id is no longer the active match.
func (c *Core) RecordLocalPlay(id types.MatchID, round int, card types.Card) bool {
	c.mu.Lock()
	if c.view.MatchID != id || c.view.Phase == types.PhaseIdle {
		c.mu.Unlock()
		c.logger.Debug("discarding play for inactive match", "match_id", int64(id))
		return false
	}
	for i, h := range c.view.LocalHand {
		if h.ID == card.ID {
			c.view.LocalHand = append(c.view.LocalHand[:i:i], c.view.LocalHand[i+1:]...)
			break
		}
	}
	if round > c.settledRound {
		played := card
		c.view.LocalCardInPlay = &played
		c.playedRound = round
		c.setTurnLocked(c.view.CurrentRound, false)
	}
	c.mu.Unlock()
	c.flush()
	return true
}

// Acknowledge settles a finished match and returns the view to Idle.
func (c *Core) Acknowledge() error {
	c.mu.Lock()
	if c.view.Phase != types.PhaseMatchSettling {
		phase := c.view.Phase
		c.mu.Unlock()
		return errorsmod.Wrapf(types.ErrInvalidRequest, "nothing to acknowledge while %s", phase)
	}
	id, outcome := c.view.MatchID, c.view.Outcome
	c.logger.Info("match settled", "match_id", int64(id), "outcome", outcome.String())
	c.emitLocked(types.EventMatchSettled, id, types.MatchOutcomePayload{Outcome: outcome})
	c.resetLocked()
	c.mu.Unlock()
	c.flush()
	return nil
}

// Reset drops the active match, if any.
func (c *Core) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.flush()
}

func (c *Core) resetLocked() {
	prev := c.view.Phase
	c.epoch++
	c.view = types.IdleView()
	c.clearMatchLocked()
	if prev != types.PhaseIdle {
		c.emitLocked(types.EventPhaseChanged, types.NoMatch, types.PhaseChangedPayload{From: prev, To: types.PhaseIdle})
	}
}

func (c *Core) clearMatchLocked() {
	phase := c.view.Phase
	c.view = types.IdleView()
	c.view.Phase = phase
	c.settledRound = 0
	c.opponentRound = 0
	c.playedRound = 0
	c.seenPlays = map[playKey]bool{}
}

func (c *Core) setPhaseLocked(to types.Phase) {
	from := c.view.Phase
	if from == to {
		return
	}
	c.view.Phase = to
	c.logger.Debug("phase changed", "match_id", int64(c.view.MatchID), "from", from.String(), "to", to.String())
	c.emitLocked(types.EventPhaseChanged, c.view.MatchID, types.PhaseChangedPayload{From: from, To: to})
}

func (c *Core) setTurnLocked(round int, local bool) {
	if c.view.CurrentRound == round && c.view.IsLocalPlayerTurn == local {
		return
	}
	c.view.CurrentRound = round
	c.view.IsLocalPlayerTurn = local
	c.emitLocked(types.EventTurnChanged, c.view.MatchID, types.TurnChangedPayload{Round: round, LocalTurn: local})
}

func (c *Core) emitLocked(kind types.EventKind, id types.MatchID, payload any) {
	c.queue = append(c.queue, types.Event{Kind: kind, MatchID: id, Payload: payload})
}

// flush delivers queued events. Only one goroutine drains at a time; events
// queued meanwhile are picked up by the active drainer.
func (c *Core) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		evs := c.queue
		c.queue = nil
		subs := append([]subscriber(nil), c.subs...)
		c.mu.Unlock()
		for _, ev := range evs {
			for _, s := range subs {
				s.fn(ev)
			}
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}
