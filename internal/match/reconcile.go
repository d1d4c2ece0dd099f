package match

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/Pranav2456/Rutzo/internal/types"
)

// Apply folds one snapshot of match id into the view and reports whether
// polling should stop. Snapshots for any other match are ignored.
//
// Precedence within a snapshot: does-not-exist, then finished, then
// round-finished, then the round state.
func (c *Core) Apply(id types.MatchID, snap types.Snapshot) (terminal bool) {
	c.mu.Lock()
	terminal = c.applyLocked(id, snap)
	c.mu.Unlock()
	c.flush()
	return terminal
}

func (c *Core) applyLocked(id types.MatchID, snap types.Snapshot) bool {
	if c.view.Phase == types.PhaseIdle || c.view.MatchID != id {
		c.logger.Debug("ignoring snapshot for inactive match", "match_id", int64(id), "active", int64(c.view.MatchID))
		return true
	}
	st := snap.State
	logger := c.logger.With("match_id", int64(id))

	if st.Tag == types.TagDoesNotExist {
		logger.Error("authority no longer knows the match", "phase", c.view.Phase.String())
		err := errorsmod.Wrapf(types.ErrAuthorityDesync, "match %d does not exist", id)
		c.emitLocked(types.EventAuthorityDesync, id, types.ErrorPayload{Err: err})
		c.resetLocked()
		return true
	}

	if c.view.Phase == types.PhaseMatchSettling {
		if st.Tag == types.TagFinished && st.OutcomeFor(c.local) == c.view.Outcome {
			return true
		}
		if st.Tag != types.TagFinished {
			// The authority regressed after reporting a result. Drop the
			// provisional outcome and wait for a fresh one.
			logger.Error("stale in-progress after finished", "observed", st.String(), "provisional", c.view.Outcome.String())
			c.emitLocked(types.EventStaleInProgress, id, types.StaleInProgressPayload{Observed: st})
			c.view.Outcome = types.OutcomePending
			c.setPhaseLocked(types.PhaseInMatch)
		}
	}

	// A round can complete in the same tick as the opponent's move.
	c.observePlayLocked(snap.Round)

	if st.Tag == types.TagFinished {
		outcome := st.OutcomeFor(c.local)
		c.view.Outcome = outcome
		c.view.IsLocalPlayerTurn = false
		c.setPhaseLocked(types.PhaseMatchSettling)
		logger.Info("match finished", "outcome", outcome.String(), "state", st.String())
		c.emitLocked(types.EventMatchOutcome, id, types.MatchOutcomePayload{Outcome: outcome})
		return true
	}

	if st.Tag == types.TagRoundFinished && st.Round > c.settledRound {
		c.settleRoundLocked(st)
	}

	c.applyRoundLocked(snap.Round)
	return false
}

// observePlayLocked surfaces the opponent's card once per observed play.
func (c *Core) observePlayLocked(rs types.RoundState) {
	card := rs.LastPlayedCard
	if card == nil {
		return
	}
	round := rs.LastPlayedRound
	if round == 0 {
		round = rs.Round
	}
	if round <= c.settledRound {
		return
	}

	var byOpponent bool
	if rs.LastPlayedBy != "" {
		byOpponent = rs.LastPlayedBy != c.local
	} else {
		// Without attribution, a card shown while it is not our turn and that
		// is not our own card is the opponent's. A card still in our hand is
		// ours: the play committed before RecordLocalPlay caught up.
		byOpponent = rs.CurrentPlayer != "" && rs.CurrentPlayer != c.local && !c.ownsLocked(card.ID)
	}
	if !byOpponent {
		return
	}

	key := playKey{round: round, card: card.ID}
	if c.seenPlays[key] {
		return
	}
	c.seenPlays[key] = true

	shown := *card
	c.view.OpponentCard = &shown
	c.opponentRound = round
	if c.view.OpponentCardCount > 0 {
		c.view.OpponentCardCount--
	}
	c.logger.Debug("opponent moved", "match_id", int64(c.view.MatchID), "round", round, "card", uint64(card.ID))
	c.emitLocked(types.EventOpponentMoved, c.view.MatchID, types.OpponentMovedPayload{
		Round:     round,
		Card:      shown,
		Remaining: c.view.OpponentCardCount,
	})
}

// ownsLocked reports whether id is the local card in play or still in hand.
func (c *Core) ownsLocked(id types.CardID) bool {
	if c.view.LocalCardInPlay != nil && c.view.LocalCardInPlay.ID == id {
		return true
	}
	for _, h := range c.view.LocalHand {
		if h.ID == id {
			return true
		}
	}
	return false
}

func (c *Core) settleRoundLocked(st types.MatchState) {
	round := st.Round
	outcome := st.OutcomeFor(c.local)
	id := c.view.MatchID
	// The opponent may already have opened the next round.
	current := c.opponentRound <= round

	var opp *types.Card
	if current {
		opp = c.view.OpponentCard
	}
	c.setPhaseLocked(types.PhaseRoundSettling)
	c.emitLocked(types.EventRoundOutcome, id, types.RoundOutcomePayload{
		Round:        round,
		Outcome:      outcome,
		LocalCard:    c.view.LocalCardInPlay,
		OpponentCard: opp,
	})
	c.logger.Info("round settled", "match_id", int64(id), "round", round, "outcome", outcome.String())

	c.view.RoundResults = append(c.view.RoundResults, outcome)
	c.view.LocalCardInPlay = nil
	if current {
		c.view.OpponentCard = nil
	}
	c.settledRound = round
	// Each settled round consumed one opponent card, observed or not.
	left := types.MaxRounds - round
	for k := range c.seenPlays {
		if k.round > round {
			left--
		}
	}
	if left < 0 {
		left = 0
	}
	if c.view.OpponentCardCount > left {
		c.view.OpponentCardCount = left
	}

	if round >= types.MaxRounds {
		c.view.IsLocalPlayerTurn = false
		return
	}
	c.setTurnLocked(round+1, false)
	c.setPhaseLocked(types.PhaseInMatch)
}

// applyRoundLocked takes turn and round from the round state. Round states
// older than the current round are ignored.
func (c *Core) applyRoundLocked(rs types.RoundState) {
	if !rs.Resolvable() {
		return
	}
	if c.view.Phase == types.PhaseRoundSettling {
		return
	}
	round := rs.Round
	if round == 0 {
		round = c.view.CurrentRound
	}
	if round < c.view.CurrentRound {
		return
	}
	if c.view.Phase == types.PhaseSearching {
		c.setPhaseLocked(types.PhaseInMatch)
	}
	// One card per round: a snapshot read before our play landed cannot
	// hand the turn back.
	local := rs.CurrentPlayer == c.local && round != c.playedRound
	c.setTurnLocked(round, local)
}
