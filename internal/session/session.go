package session

import (
	"context"
	"errors"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/Pranav2456/Rutzo/internal/gateway"
	"github.com/Pranav2456/Rutzo/internal/inventory"
	"github.com/Pranav2456/Rutzo/internal/ledger"
	"github.com/Pranav2456/Rutzo/internal/match"
	"github.com/Pranav2456/Rutzo/internal/poller"
	"github.com/Pranav2456/Rutzo/internal/types"
)

// DefaultDiscoveryAttempts bounds the post-join match lookup.
const DefaultDiscoveryAttempts = 10

// Ledger is everything a session reads from and writes to the authority.
// *ledger.Client implements it.
type Ledger interface {
	poller.Fetcher
	gateway.Submitter
	MatchInfo(ctx context.Context, id types.MatchID) (*types.MatchInfo, error)
	PlayerMatch(ctx context.Context, addr string) (types.MatchID, error)
	PlayerHistory(ctx context.Context, addr string) (types.History, error)
	Cards(ctx context.Context, addr string) ([]types.Card, error)
}

type Options struct {
	Ledger  Ledger
	Signers ledger.Provider
	// Identity defaults to the signer's address.
	Identity          string
	PollInterval      time.Duration
	DiscoveryAttempts int
	// VerifyOnAck re-reads the match state before settling a finished match.
	VerifyOnAck bool
	Logger      log.Logger
}

// Session is the consumer-facing engine: card selection, match start,
// moves, settlement and reset.
type Session struct {
	identity string
	ledger   Ledger
	logger   log.Logger

	attempts    int
	interval    time.Duration
	verifyOnAck bool

	inv  *inventory.Tracker
	gw   *gateway.Gateway
	core *match.Core
	poll *poller.Poller

	mu           sync.Mutex
	resets       uint64
	stopDiscover context.CancelFunc
}

func New(opts Options) (*Session, error) {
	if opts.Ledger == nil {
		return nil, errorsmod.Wrap(types.ErrInvalidRequest, "ledger is required")
	}
	signers := opts.Signers
	if signers == nil {
		signers = ledger.StaticProvider{}
	}
	identity := opts.Identity
	if identity == "" {
		if s, ok := signers.Signer(); ok {
			identity = s.Address()
		}
	}
	if identity == "" {
		return nil, errorsmod.Wrap(types.ErrInvalidRequest, "player identity is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	attempts := opts.DiscoveryAttempts
	if attempts <= 0 {
		attempts = DefaultDiscoveryAttempts
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = poller.DefaultInterval
	}

	s := &Session{
		identity:    identity,
		ledger:      opts.Ledger,
		logger:      logger.With("module", "session", "player", identity),
		attempts:    attempts,
		interval:    interval,
		verifyOnAck: opts.VerifyOnAck,
	}
	s.inv = inventory.New(logger)
	s.core = match.New(identity, logger)
	s.gw = gateway.New(opts.Ledger, signers, s.core, logger)
	s.poll = poller.New(opts.Ledger, s.core,
		poller.WithInterval(interval),
		poller.WithLogger(logger),
		poller.OnError(func(id types.MatchID, err error) {
			s.core.Notify(types.EventPollFailed, id, types.ErrorPayload{Err: err})
		}),
	)
	return s, nil
}

func (s *Session) Identity() string { return s.identity }

func (s *Session) View() types.MatchView { return s.core.View() }

func (s *Session) Inventory() *inventory.Tracker { return s.inv }

func (s *Session) Subscribe(fn types.Listener) func() { return s.core.Subscribe(fn) }

func (s *Session) Select(id types.CardID) error { return s.inv.Select(id) }

func (s *Session) Deselect(id types.CardID) error { return s.inv.Deselect(id) }

func (s *Session) ClearSelection() { s.inv.Clear() }

// LoadCards refreshes the inventory from the player's owned cards.
func (s *Session) LoadCards(ctx context.Context) error {
	cards, err := s.ledger.Cards(ctx, s.identity)
	if err != nil {
		return err
	}
	return s.inv.Load(cards)
}

// Resume adopts a match the player is already in. It reports whether one was
// found.
func (s *Session) Resume(ctx context.Context) (bool, error) {
	resets, epoch := s.resetCount(), s.core.Epoch()
	id, err := s.ledger.PlayerMatch(ctx, s.identity)
	if err != nil {
		return false, err
	}
	if !id.Valid() {
		return false, nil
	}
	return true, s.adopt(ctx, resets, epoch, id)
}

// StartMatch joins a match with the three selected cards and blocks until the
// match is discovered, discovery gives up, ctx ends or Reset is called. A
// match the player is already in is adopted instead of joining again.
//
// A Reset at any point wins: StartMatch then returns ErrSessionReset and
// leaves the session Idle, even if the join itself went through.
func (s *Session) StartMatch(ctx context.Context, mode types.OpponentMode) error {
	resets := s.resetCount()
	cards := s.inv.SelectedIDs()
	if len(cards) != types.HandSize {
		return errorsmod.Wrapf(types.ErrInvalidRequest, "select %d cards first, have %d", types.HandSize, len(cards))
	}

	epoch := s.core.Epoch()
	existing, err := s.ledger.PlayerMatch(ctx, s.identity)
	if err != nil {
		return err
	}
	if existing.Valid() {
		s.logger.Info("resuming active match", "match_id", int64(existing))
		return s.adopt(ctx, resets, epoch, existing)
	}
	hist, err := s.ledger.PlayerHistory(ctx, s.identity)
	if err != nil {
		return err
	}

	if epoch, err = s.core.BeginSearch(); err != nil {
		return err
	}
	dctx, cancel := context.WithCancel(ctx)
	if !s.watch(resets, cancel) {
		cancel()
		s.core.Cancel()
		return errorsmod.Wrap(types.ErrSessionReset, "before join")
	}
	defer s.unwatch(cancel)

	// The join is not cancelled by Reset; its outcome is dropped instead.
	if err := s.gw.JoinMatch(ctx, cards, mode, hist.RecentPastGame); err != nil {
		if s.resetCount() != resets {
			return errorsmod.Wrap(types.ErrSessionReset, "during join")
		}
		s.core.Fail(err)
		return err
	}
	if s.resetCount() != resets {
		return errorsmod.Wrap(types.ErrSessionReset, "during join")
	}

	id, err := s.discover(dctx)
	if err != nil {
		switch {
		case s.resetCount() != resets:
			return errorsmod.Wrap(types.ErrSessionReset, "during discovery")
		case errors.Is(err, types.ErrMatchNotFound):
			s.core.Fail(err)
		default:
			s.core.Cancel()
		}
		return err
	}
	return s.adopt(ctx, resets, epoch, id)
}

func (s *Session) resetCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// watch installs cancel as the discovery stop unless a Reset happened since
// resets was read.
func (s *Session) watch(resets uint64, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resets != resets {
		return false
	}
	s.stopDiscover = cancel
	return true
}

func (s *Session) unwatch(cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	s.stopDiscover = nil
	s.mu.Unlock()
}

// discover looks up the player's match at the poll cadence. The first lookup
// runs immediately.
func (s *Session) discover(ctx context.Context) (types.MatchID, error) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return types.NoMatch, ctx.Err()
			case <-t.C:
			}
		}
		id, err := s.ledger.PlayerMatch(ctx, s.identity)
		if err != nil {
			if ctx.Err() != nil {
				return types.NoMatch, ctx.Err()
			}
			s.logger.Error("match discovery failed", "attempt", attempt, "err", err)
			continue
		}
		if id.Valid() {
			s.logger.Info("match discovered", "match_id", int64(id), "attempt", attempt)
			return id, nil
		}
		s.logger.Debug("match not assigned yet", "attempt", attempt)
	}
	return types.NoMatch, errorsmod.Wrapf(types.ErrMatchNotFound, "no match after %d attempts", s.attempts)
}

func (s *Session) adopt(ctx context.Context, resets, epoch uint64, id types.MatchID) error {
	info, err := s.ledger.MatchInfo(ctx, id)
	if err != nil {
		// Round state still drives the view; only the seeding is lost.
		s.logger.Error("match information unavailable", "match_id", int64(id), "err", err)
		info = nil
	}
	if err := s.core.AdoptIfCurrent(epoch, id, info); err != nil {
		return err
	}
	s.poll.Arm(id)
	if s.resetCount() != resets {
		// Reset ran between adoption and arming.
		s.poll.Disarm()
		return errorsmod.Wrapf(types.ErrSessionReset, "match %d", id)
	}
	return nil
}

// PlayCard plays a card from the local hand in the active match.
func (s *Session) PlayCard(ctx context.Context, cardID types.CardID) error {
	v := s.core.View()
	if !v.MatchID.Valid() {
		return errorsmod.Wrap(types.ErrInvalidRequest, "no active match")
	}
	var card *types.Card
	for i := range v.LocalHand {
		if v.LocalHand[i].ID == cardID {
			card = &v.LocalHand[i]
			break
		}
	}
	if card == nil {
		return errorsmod.Wrapf(types.ErrNotFound, "card %d is not in hand", cardID)
	}

	if _, err := s.gw.PlayCard(ctx, v.MatchID, cardID); err != nil {
		s.core.Notify(types.EventSubmissionFailed, v.MatchID, types.ErrorPayload{Err: err})
		return err
	}
	s.core.RecordLocalPlay(v.MatchID, v.CurrentRound, *card)
	return nil
}

// Acknowledge settles a finished match and returns the engine to Idle. With
// VerifyOnAck the authority is read once more first; if it no longer reports
// the match as finished, polling resumes and settled is false.
func (s *Session) Acknowledge(ctx context.Context) (settled bool, err error) {
	v := s.core.View()
	if v.Phase != types.PhaseMatchSettling {
		return false, errorsmod.Wrapf(types.ErrInvalidRequest, "nothing to acknowledge while %s", v.Phase)
	}
	if s.verifyOnAck {
		snap, err := s.ledger.Snapshot(ctx, v.MatchID)
		if err != nil {
			return false, err
		}
		s.core.Apply(v.MatchID, snap)
		switch after := s.core.View(); {
		case after.Phase == types.PhaseIdle:
			return false, nil
		case after.Phase != types.PhaseMatchSettling:
			s.logger.Error("match reopened after finishing, polling again", "match_id", int64(v.MatchID))
			s.poll.Arm(v.MatchID)
			return false, nil
		}
	}
	if err := s.core.Acknowledge(); err != nil {
		return false, err
	}
	s.poll.Disarm()
	return true, nil
}

// History returns the player's finished-match summary.
func (s *Session) History(ctx context.Context) (types.History, error) {
	return s.ledger.PlayerHistory(ctx, s.identity)
}

// LastMatch returns the player's most recent finished match, or NoMatch.
func (s *Session) LastMatch(ctx context.Context) (types.MatchID, error) {
	h, err := s.History(ctx)
	if err != nil {
		return types.NoMatch, err
	}
	return h.RecentPastGame, nil
}

// Reset stops polling and discovery and returns everything to a fresh state.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resets++
	if s.stopDiscover != nil {
		s.stopDiscover()
	}
	s.mu.Unlock()
	s.poll.Disarm()
	s.inv.Clear()
	s.core.Reset()
	s.gw.Reset()
	s.logger.Debug("session reset")
}

// Close releases the session's background work.
func (s *Session) Close() error {
	s.Reset()
	return nil
}
