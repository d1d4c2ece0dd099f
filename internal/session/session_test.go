package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/Pranav2456/Rutzo/internal/codec"
	"github.com/Pranav2456/Rutzo/internal/devnet"
	"github.com/Pranav2456/Rutzo/internal/ledger"
	"github.com/Pranav2456/Rutzo/internal/types"
)

const (
	alice = "alice"
	bob   = "bob"
)

// fakeLedger scripts the authority. assignAfter is the number of post-join
// discovery lookups that come back empty before match 7 is reported.
type fakeLedger struct {
	mu          sync.Mutex
	assignAfter int
	joined      bool
	lookups     int
	submits     []string
	snap        types.Snapshot
	snapErr     error
	history     types.History
	chosen      types.CardID
	joinKeys    []string

	// joinEntered and joinRelease, when set, hold a join inside Submit.
	joinEntered chan struct{}
	joinRelease chan struct{}
}

func (f *fakeLedger) Snapshot(_ context.Context, _ types.MatchID) (types.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.snapErr
}

func (f *fakeLedger) setSnapshot(s types.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func (f *fakeLedger) Submit(_ context.Context, _ ledger.Signer, typ string, _ any, intentKey, _ string) (ledger.Ack, error) {
	if typ == codec.TxJoinMatch && f.joinRelease != nil {
		f.joinEntered <- struct{}{}
		<-f.joinRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, typ)
	if typ == codec.TxJoinMatch {
		f.joined = true
		f.joinKeys = append(f.joinKeys, intentKey)
	}
	return ledger.Ack{Height: int64(len(f.submits))}, nil
}

func (f *fakeLedger) MatchInfo(_ context.Context, id types.MatchID) (*types.MatchInfo, error) {
	return &types.MatchInfo{
		MatchID: id,
		Player1: types.PlayerInfo{Address: alice, CardCount: 3, Hand: hand(), ChosenCard: f.chosen},
		Player2: types.PlayerInfo{Address: bob, CardCount: 3},
		Mode:    types.OpponentHuman,
		Round:   1,
	}, nil
}

func (f *fakeLedger) PlayerMatch(_ context.Context, _ string) (types.MatchID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.joined {
		return types.NoMatch, nil
	}
	f.lookups++
	if f.assignAfter >= 0 && f.lookups > f.assignAfter {
		return 7, nil
	}
	return types.NoMatch, nil
}

func (f *fakeLedger) PlayerHistory(_ context.Context, _ string) (types.History, error) {
	return f.history, nil
}

func (f *fakeLedger) Cards(_ context.Context, _ string) ([]types.Card, error) {
	return hand(), nil
}

func (f *fakeLedger) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

type signer string

func (s signer) Address() string              { return string(s) }
func (s signer) Sign(_ []byte) ([]byte, error) { return []byte("sig"), nil }

func hand() []types.Card {
	return []types.Card{
		{ID: 1, Name: "a", Type: types.ElementFire, Power: 10},
		{ID: 2, Name: "b", Type: types.ElementWater, Power: 20},
		{ID: 3, Name: "c", Type: types.ElementRock, Power: 30},
	}
}

type recorder struct {
	mu    sync.Mutex
	kinds []types.EventKind
}

func (r *recorder) listen(ev types.Event) {
	r.mu.Lock()
	r.kinds = append(r.kinds, ev.Kind)
	r.mu.Unlock()
}

func (r *recorder) has(kind types.EventKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T, f *fakeLedger) (*Session, *recorder) {
	t.Helper()
	s, err := New(Options{
		Ledger:            f,
		Signers:           ledger.StaticProvider{S: signer(alice)},
		PollInterval:      5 * time.Millisecond,
		DiscoveryAttempts: 10,
		VerifyOnAck:       true,
		Logger:            log.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	rec := &recorder{}
	s.Subscribe(rec.listen)

	require.NoError(t, s.LoadCards(context.Background()))
	for _, c := range hand() {
		require.NoError(t, s.Select(c.ID))
	}
	return s, rec
}

func TestNew_RequiresIdentity(t *testing.T) {
	_, err := New(Options{Ledger: &fakeLedger{}})
	require.ErrorIs(t, err, types.ErrInvalidRequest)

	s, err := New(Options{Ledger: &fakeLedger{}, Identity: "watcher"})
	require.NoError(t, err)
	require.Equal(t, "watcher", s.Identity())
}

func TestStartMatch_NeedsFullSelection(t *testing.T) {
	s, _ := newTestSession(t, &fakeLedger{})
	require.NoError(t, s.Deselect(2))
	err := s.StartMatch(context.Background(), types.OpponentBot)
	require.ErrorIs(t, err, types.ErrInvalidRequest)
	require.Equal(t, types.PhaseIdle, s.View().Phase)
}

func TestStartMatch_DiscoversOnThirdAttempt(t *testing.T) {
	f := &fakeLedger{assignAfter: 2}
	f.setSnapshot(types.Snapshot{
		Round: types.RoundState{Round: 1, CurrentPlayer: alice},
		State: types.InProgress(),
	})
	s, _ := newTestSession(t, f)

	require.NoError(t, s.StartMatch(context.Background(), types.OpponentHuman))
	require.Equal(t, 3, f.lookupCount())
	require.Equal(t, types.MatchID(7), s.View().MatchID)

	require.Eventually(t, func() bool {
		v := s.View()
		return v.Phase == types.PhaseInMatch && v.IsLocalPlayerTurn
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, bob, s.View().OpponentLabel)

	id, armed := s.poll.Armed()
	require.True(t, armed)
	require.Equal(t, types.MatchID(7), id)
}

func TestStartMatch_DiscoveryExhausted(t *testing.T) {
	f := &fakeLedger{assignAfter: -1}
	s, rec := newTestSession(t, f)

	err := s.StartMatch(context.Background(), types.OpponentBot)
	require.ErrorIs(t, err, types.ErrMatchNotFound)
	require.Equal(t, 10, f.lookupCount())
	require.Equal(t, types.PhaseIdle, s.View().Phase)
	require.True(t, rec.has(types.EventMatchNotFound))
}

func TestStartMatch_ResetCancelsDiscovery(t *testing.T) {
	f := &fakeLedger{assignAfter: -1}
	s, _ := newTestSession(t, f)
	s.attempts = 1000

	done := make(chan error, 1)
	go func() { done <- s.StartMatch(context.Background(), types.OpponentBot) }()
	require.Eventually(t, func() bool { return f.lookupCount() > 0 }, time.Second, time.Millisecond)

	s.Reset()
	select {
	case err := <-done:
		require.ErrorIs(t, err, types.ErrSessionReset)
	case <-time.After(time.Second):
		t.Fatal("discovery did not stop on reset")
	}
	require.Equal(t, types.PhaseIdle, s.View().Phase)
	require.Empty(t, s.Inventory().Selected())
}

func TestStartMatch_ResetDuringJoinDropsMatch(t *testing.T) {
	f := &fakeLedger{
		assignAfter: 0,
		joinEntered: make(chan struct{}, 1),
		joinRelease: make(chan struct{}),
	}
	f.setSnapshot(types.Snapshot{Round: types.RoundState{Round: 1, CurrentPlayer: alice}, State: types.InProgress()})
	s, _ := newTestSession(t, f)

	done := make(chan error, 1)
	go func() { done <- s.StartMatch(context.Background(), types.OpponentBot) }()
	<-f.joinEntered
	require.Equal(t, types.PhaseSearching, s.View().Phase)

	s.Reset()
	require.Equal(t, types.PhaseIdle, s.View().Phase)
	close(f.joinRelease)

	select {
	case err := <-done:
		require.ErrorIs(t, err, types.ErrSessionReset)
	case <-time.After(time.Second):
		t.Fatal("start did not return after reset")
	}
	v := s.View()
	require.Equal(t, types.PhaseIdle, v.Phase)
	require.Equal(t, types.NoMatch, v.MatchID)
	_, armed := s.poll.Armed()
	require.False(t, armed)
	require.Zero(t, f.lookupCount())
}

func TestStartMatch_JoinKeyFollowsHistory(t *testing.T) {
	f := &fakeLedger{assignAfter: -1, history: types.History{RecentPastGame: 3}}
	s, _ := newTestSession(t, f)
	s.attempts = 1
	ctx := context.Background()

	require.ErrorIs(t, s.StartMatch(ctx, types.OpponentBot), types.ErrMatchNotFound)
	s.ClearSelection()
	for _, c := range hand() {
		require.NoError(t, s.Select(c.ID))
	}
	require.ErrorIs(t, s.StartMatch(ctx, types.OpponentBot), types.ErrMatchNotFound)
	f.history.RecentPastGame = 5
	s.ClearSelection()
	for _, c := range hand() {
		require.NoError(t, s.Select(c.ID))
	}
	require.ErrorIs(t, s.StartMatch(ctx, types.OpponentBot), types.ErrMatchNotFound)

	require.Len(t, f.joinKeys, 3)
	require.Equal(t, f.joinKeys[0], f.joinKeys[1])
	require.NotEqual(t, f.joinKeys[1], f.joinKeys[2])
}

func TestResume_RestoresChosenCard(t *testing.T) {
	ctx := context.Background()
	none := &fakeLedger{}
	s, _ := newTestSession(t, none)
	found, err := s.Resume(ctx)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, types.PhaseIdle, s.View().Phase)

	f := &fakeLedger{assignAfter: 0, joined: true, chosen: 2}
	f.setSnapshot(types.Snapshot{Round: types.RoundState{Round: 1, CurrentPlayer: bob}, State: types.InProgress()})
	s, _ = newTestSession(t, f)
	found, err = s.Resume(ctx)
	require.NoError(t, err)
	require.True(t, found)

	require.Eventually(t, func() bool { return s.View().Phase == types.PhaseInMatch }, time.Second, time.Millisecond)
	v := s.View()
	require.Equal(t, types.MatchID(7), v.MatchID)
	require.NotNil(t, v.LocalCardInPlay)
	require.Equal(t, types.CardID(2), v.LocalCardInPlay.ID)
	require.Len(t, v.LocalHand, 2)
	require.False(t, v.IsLocalPlayerTurn)
	require.Empty(t, f.submits)
}

func TestStartMatch_AdoptsExistingMatch(t *testing.T) {
	f := &fakeLedger{assignAfter: 0, joined: true}
	f.setSnapshot(types.Snapshot{Round: types.RoundState{Round: 1, CurrentPlayer: bob}, State: types.InProgress()})
	s, _ := newTestSession(t, f)

	require.NoError(t, s.StartMatch(context.Background(), types.OpponentBot))
	require.Empty(t, f.submits)
	require.Equal(t, types.MatchID(7), s.View().MatchID)
}

func TestPoll_DoesNotExistDisarms(t *testing.T) {
	f := &fakeLedger{assignAfter: 0}
	f.setSnapshot(types.Snapshot{Round: types.RoundState{Round: 1, CurrentPlayer: alice}, State: types.InProgress()})
	s, rec := newTestSession(t, f)
	require.NoError(t, s.StartMatch(context.Background(), types.OpponentHuman))
	require.Eventually(t, func() bool { return s.View().Phase == types.PhaseInMatch }, time.Second, time.Millisecond)

	f.setSnapshot(types.Snapshot{State: types.DoesNotExist()})
	require.Eventually(t, func() bool { return s.View().Phase == types.PhaseIdle }, time.Second, time.Millisecond)
	require.True(t, rec.has(types.EventAuthorityDesync))
	require.Eventually(t, func() bool {
		_, armed := s.poll.Armed()
		return !armed
	}, time.Second, time.Millisecond)
}

func TestPlayCard_RecordsAcceptedPlay(t *testing.T) {
	f := &fakeLedger{assignAfter: 0}
	f.setSnapshot(types.Snapshot{Round: types.RoundState{Round: 1, CurrentPlayer: alice}, State: types.InProgress()})
	s, _ := newTestSession(t, f)
	ctx := context.Background()
	require.NoError(t, s.StartMatch(ctx, types.OpponentHuman))
	require.Eventually(t, func() bool { return s.View().IsLocalPlayerTurn }, time.Second, time.Millisecond)

	require.ErrorIs(t, s.PlayCard(ctx, 99), types.ErrNotFound)

	s.poll.Disarm()
	require.NoError(t, s.PlayCard(ctx, 2))
	v := s.View()
	require.NotNil(t, v.LocalCardInPlay)
	require.Equal(t, types.CardID(2), v.LocalCardInPlay.ID)
	require.Len(t, v.LocalHand, 2)
	require.False(t, v.IsLocalPlayerTurn)

	require.ErrorIs(t, s.PlayCard(ctx, 1), types.ErrNotYourTurn)
}

func TestAcknowledge_VerifiesBeforeSettling(t *testing.T) {
	f := &fakeLedger{assignAfter: 0}
	f.setSnapshot(types.Snapshot{State: types.Finished(alice)})
	s, rec := newTestSession(t, f)
	ctx := context.Background()

	_, err := s.Acknowledge(ctx)
	require.ErrorIs(t, err, types.ErrInvalidRequest)

	require.NoError(t, s.StartMatch(ctx, types.OpponentHuman))
	require.Eventually(t, func() bool { return s.View().Phase == types.PhaseMatchSettling }, time.Second, time.Millisecond)
	require.Equal(t, types.OutcomeWon, s.View().Outcome)

	// The authority regresses before the acknowledgement.
	f.setSnapshot(types.Snapshot{Round: types.RoundState{Round: 3, CurrentPlayer: bob}, State: types.InProgress()})
	settled, err := s.Acknowledge(ctx)
	require.NoError(t, err)
	require.False(t, settled)
	require.True(t, rec.has(types.EventStaleInProgress))
	require.Equal(t, types.PhaseInMatch, s.View().Phase)

	f.setSnapshot(types.Snapshot{State: types.Finished(alice)})
	require.Eventually(t, func() bool { return s.View().Phase == types.PhaseMatchSettling }, time.Second, time.Millisecond)
	settled, err = s.Acknowledge(ctx)
	require.NoError(t, err)
	require.True(t, settled)
	require.Equal(t, types.PhaseIdle, s.View().Phase)
	require.True(t, rec.has(types.EventMatchSettled))
}

func TestLastMatch(t *testing.T) {
	f := &fakeLedger{history: types.History{RecentPastGame: 4, Wins: 1, Matches: []types.MatchID{4}}}
	s, _ := newTestSession(t, f)
	id, err := s.LastMatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.MatchID(4), id)
}

// TestBotMatchAgainstDevnet plays a full match against the in-process devnet.
func TestBotMatchAgainstDevnet(t *testing.T) {
	ctx := context.Background()
	app, err := devnet.New(t.TempDir(), log.NewNopLogger())
	require.NoError(t, err)
	tr, err := devnet.NewLocalTransport(app)
	require.NoError(t, err)
	client := ledger.NewClient(tr, log.NewNopLogger())

	key, err := ledger.GenerateKey()
	require.NoError(t, err)
	_, err = client.Submit(ctx, key, codec.TxRegisterAccount, codec.RegisterAccountTx{Account: key.Address(), PubKey: key.PubKey()}, "", "register")
	require.NoError(t, err)
	require.NoError(t, devnet.Faucet(ctx, tr, key.Address()))

	s, err := New(Options{
		Ledger:       client,
		Signers:      ledger.StaticProvider{S: key},
		PollInterval: 5 * time.Millisecond,
		VerifyOnAck:  true,
		Logger:       log.NewTestLogger(t),
	})
	require.NoError(t, err)
	defer s.Close()
	rec := &recorder{}
	s.Subscribe(rec.listen)

	require.NoError(t, s.LoadCards(ctx))
	for _, c := range s.Inventory().Available()[:types.HandSize] {
		require.NoError(t, s.Select(c.ID))
	}
	require.NoError(t, s.StartMatch(ctx, types.OpponentBot))
	require.Equal(t, devnet.BotAddress, s.View().OpponentLabel)

	for played := 0; played < types.MaxRounds; played++ {
		require.Eventually(t, func() bool {
			v := s.View()
			return v.Phase == types.PhaseInMatch && v.IsLocalPlayerTurn && v.CurrentRound == played+1
		}, 2*time.Second, 5*time.Millisecond, "round %d", played+1)
		require.NoError(t, s.PlayCard(ctx, s.View().LocalHand[0].ID))
	}

	require.Eventually(t, func() bool { return s.View().Phase == types.PhaseMatchSettling }, 2*time.Second, 5*time.Millisecond)
	v := s.View()
	require.Len(t, v.RoundResults, types.MaxRounds-1)
	require.NotEqual(t, types.OutcomePending, v.Outcome)

	settled, err := s.Acknowledge(ctx)
	require.NoError(t, err)
	require.True(t, settled)
	require.Equal(t, types.PhaseIdle, s.View().Phase)
	require.True(t, rec.has(types.EventMatchOutcome))

	last, err := s.LastMatch(ctx)
	require.NoError(t, err)
	require.Equal(t, types.MatchID(1), last)
}
