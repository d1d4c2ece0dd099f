package devnet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"strconv"
	"testing"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Pranav2456/Rutzo/internal/codec"
	"github.com/Pranav2456/Rutzo/internal/ledger"
	"github.com/Pranav2456/Rutzo/internal/types"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

type testAccount struct {
	key   *ledger.KeySigner
	nonce uint64
}

func newAccount(t *testing.T) *testAccount {
	t.Helper()
	k, err := ledger.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return &testAccount{key: k}
}

func (acc *testAccount) addr() string { return acc.key.Address() }

func signedTx(t *testing.T, acc *testAccount, typ string, value any, intentKey string) []byte {
	t.Helper()
	acc.nonce++
	raw := mustMarshal(t, value)
	nonce := strconv.FormatUint(acc.nonce, 10)
	sig, err := acc.key.Sign(codec.SignBytesV0(typ, raw, nonce, acc.addr(), intentKey))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return mustMarshal(t, codec.TxEnvelope{
		Type:      typ,
		Value:     raw,
		Nonce:     nonce,
		Signer:    acc.addr(),
		Sig:       sig,
		IntentKey: intentKey,
	})
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func newTestApp(t *testing.T) *DuelApp {
	t.Helper()
	a, err := New(t.TempDir(), log.NewTestLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got code=%d log=%q", res.Code, res.Log)
	}
	return res
}

func mustFail(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code == 0 {
		t.Fatalf("expected failure, got ok")
	}
	return res
}

func query(t *testing.T, a *DuelApp, path string) *abci.QueryResponse {
	t.Helper()
	res, err := a.Query(context.Background(), &abci.QueryRequest{Path: path})
	if err != nil {
		t.Fatalf("Query %s: %v", path, err)
	}
	return res
}

func register(t *testing.T, a *DuelApp, acc *testAccount) {
	t.Helper()
	msg := codec.RegisterAccountTx{Account: acc.addr(), PubKey: acc.key.PubKey()}
	mustOk(t, a.deliverTx(signedTx(t, acc, codec.TxRegisterAccount, msg, ""), 1))
}

// mintHand mints three cards with the given powers and returns their ids.
func mintHand(t *testing.T, a *DuelApp, to string, powers ...uint32) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, len(powers))
	for _, p := range powers {
		res := mustOk(t, a.deliverTx(txBytes(t, codec.TxMintCard, codec.MintCardTx{
			To: to, Name: "card", Type: "Fire", Power: p,
		}), 1))
		id, err := strconv.ParseUint(attr(findEvent(res.Events, "CardMinted"), "cardId"), 10, 64)
		if err != nil {
			t.Fatalf("parse card id: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func matchStateOf(t *testing.T, a *DuelApp, id int64) types.MatchState {
	t.Helper()
	res := query(t, a, codec.MatchStatePath(types.MatchID(id)))
	if res.Code != 0 {
		t.Fatalf("state query code=%d log=%q", res.Code, res.Log)
	}
	st, err := codec.DecodeMatchState(res.Value)
	if err != nil {
		t.Fatalf("DecodeMatchState: %v", err)
	}
	return st
}

func roundStateOf(t *testing.T, a *DuelApp, id int64) codec.RoundStateJSON {
	t.Helper()
	res := query(t, a, codec.MatchRoundPath(types.MatchID(id)))
	if res.Code != 0 {
		t.Fatalf("round query code=%d log=%q", res.Code, res.Log)
	}
	var resp codec.RoundInfoResponse
	if err := json.Unmarshal(res.Value, &resp); err != nil {
		t.Fatalf("decode round: %v", err)
	}
	return *resp.RoundState
}

func TestRegisterAccount_RequiresMatchingSignature(t *testing.T) {
	a := newTestApp(t)
	alice, mallory := newAccount(t), newAccount(t)

	// mallory signs a registration claiming alice's address.
	msg := codec.RegisterAccountTx{Account: alice.addr(), PubKey: mallory.key.PubKey()}
	mustFail(t, a.deliverTx(signedTx(t, mallory, codec.TxRegisterAccount, msg, ""), 1))

	register(t, a, alice)
	if len(a.st.AccountKeys[alice.addr()]) != ed25519.PublicKeySize {
		t.Fatalf("expected alice's key to be stored")
	}
}

func TestJoinMatch_BotStartsImmediately(t *testing.T) {
	a := newTestApp(t)
	alice := newAccount(t)
	register(t, a, alice)
	cards := mintHand(t, a, alice.addr(), 10, 20, 30)

	res := mustOk(t, a.deliverTx(signedTx(t, alice, codec.TxJoinMatch, codec.JoinMatchTx{
		Player: alice.addr(), CardIDs: cards, PlayWithBot: true,
	}, "join-1"), 2))
	ev := findEvent(res.Events, "MatchStarted")
	if ev == nil || attr(ev, "matchId") != "1" {
		t.Fatalf("expected MatchStarted for match 1, got %#v", res.Events)
	}

	var pm codec.PlayerInMatchResponse
	if err := json.Unmarshal(query(t, a, codec.PlayerMatchPath(alice.addr())).Value, &pm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pm.PlayerInMatch == nil || *pm.PlayerInMatch != 1 {
		t.Fatalf("expected alice in match 1, got %v", pm.PlayerInMatch)
	}
	if st := matchStateOf(t, a, 1); st != types.InProgress() {
		t.Fatalf("expected in progress, got %v", st)
	}
	if rs := roundStateOf(t, a, 1); rs.CurrentPlayer != alice.addr() || rs.Round != 1 {
		t.Fatalf("expected alice to lead round 1, got %#v", rs)
	}
}

func TestJoinMatch_Rejections(t *testing.T) {
	a := newTestApp(t)
	alice, bob := newAccount(t), newAccount(t)
	register(t, a, alice)
	register(t, a, bob)
	aliceCards := mintHand(t, a, alice.addr(), 10, 20, 30)
	bobCards := mintHand(t, a, bob.addr(), 10, 20, 30)

	join := func(acc *testAccount, cards []uint64, key string) *abci.ExecTxResult {
		return a.deliverTx(signedTx(t, acc, codec.TxJoinMatch, codec.JoinMatchTx{Player: acc.addr(), CardIDs: cards}, key), 2)
	}
	mustFail(t, join(alice, bobCards, "j1"))
	mustFail(t, join(alice, aliceCards[:2], "j2"))
	mustFail(t, join(alice, []uint64{aliceCards[0], aliceCards[0], aliceCards[1]}, "j3"))

	// Human mode waits for a second player.
	res := mustOk(t, join(alice, aliceCards, "j4"))
	if findEvent(res.Events, "MatchQueued") == nil {
		t.Fatalf("expected MatchQueued")
	}
	mustFail(t, join(alice, aliceCards, "j5"))

	res = mustOk(t, join(bob, bobCards, "j6"))
	if attr(findEvent(res.Events, "MatchStarted"), "matchId") != "1" {
		t.Fatalf("expected match 1 to start")
	}
	if rs := roundStateOf(t, a, 1); rs.CurrentPlayer != alice.addr() {
		t.Fatalf("expected the waiting player to lead, got %q", rs.CurrentPlayer)
	}
}

func TestIntentAndNonceReplayRejected(t *testing.T) {
	a := newTestApp(t)
	alice := newAccount(t)
	register(t, a, alice)
	cards := mintHand(t, a, alice.addr(), 10, 20, 30)

	tx := signedTx(t, alice, codec.TxJoinMatch, codec.JoinMatchTx{Player: alice.addr(), CardIDs: cards, PlayWithBot: true}, "join")
	mustOk(t, a.deliverTx(tx, 2))
	// Byte-identical replay.
	mustFail(t, a.deliverTx(tx, 3))

	mustOk(t, a.deliverTx(signedTx(t, alice, codec.TxPlayCard, codec.PlayCardTx{Player: alice.addr(), MatchID: 1, CardID: cards[0]}, "play"), 3))
	// Same intent key with a fresh nonce.
	res := mustFail(t, a.deliverTx(signedTx(t, alice, codec.TxPlayCard, codec.PlayCardTx{Player: alice.addr(), MatchID: 1, CardID: cards[1]}, "play"), 4))
	if res.Log == "" {
		t.Fatalf("expected a rejection reason")
	}
}

func TestBotMatch_PlaysToCompletion(t *testing.T) {
	a := newTestApp(t)
	alice := newAccount(t)
	register(t, a, alice)
	// Strong enough to beat any bot card.
	cards := mintHand(t, a, alice.addr(), 100, 100, 100)
	mustOk(t, a.deliverTx(signedTx(t, alice, codec.TxJoinMatch, codec.JoinMatchTx{Player: alice.addr(), CardIDs: cards, PlayWithBot: true}, "j"), 2))

	play := func(card uint64, key string) *abci.ExecTxResult {
		return a.deliverTx(signedTx(t, alice, codec.TxPlayCard, codec.PlayCardTx{Player: alice.addr(), MatchID: 1, CardID: card}, key), 3)
	}

	mustOk(t, play(cards[0], "p1"))
	if st := matchStateOf(t, a, 1); st != types.RoundFinished(1, alice.addr()) {
		t.Fatalf("expected alice to win round 1, got %v", st)
	}
	// The bot leads round 2 right away.
	rs := roundStateOf(t, a, 1)
	if rs.Round != 2 || rs.CurrentPlayer != alice.addr() || rs.LastPlayedBy != BotAddress || rs.LastPlayedRound != 2 {
		t.Fatalf("unexpected round state after round 1: %#v", rs)
	}
	if rs.LastPlayedCard == nil || rs.LastPlayedCard.Validate() != nil {
		t.Fatalf("expected a valid bot card, got %#v", rs.LastPlayedCard)
	}

	// Playing a consumed card is rejected.
	mustFail(t, play(cards[0], "p1-again"))

	mustOk(t, play(cards[1], "p2"))
	if st := matchStateOf(t, a, 1); st != types.RoundFinished(2, alice.addr()) {
		t.Fatalf("expected alice to win round 2, got %v", st)
	}
	mustOk(t, play(cards[2], "p3"))
	if st := matchStateOf(t, a, 1); st != types.Finished(alice.addr()) {
		t.Fatalf("expected alice to win the match, got %v", st)
	}

	var pm codec.PlayerInMatchResponse
	_ = json.Unmarshal(query(t, a, codec.PlayerMatchPath(alice.addr())).Value, &pm)
	if pm.PlayerInMatch != nil {
		t.Fatalf("expected alice to be out of the match")
	}
	var hist codec.PlayerInformationResponse
	if err := json.Unmarshal(query(t, a, codec.PlayerHistoryPath(alice.addr())).Value, &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	h := hist.PlayerInformation.ToDomain()
	if h.RecentPastGame != 1 || h.Wins != 1 || h.Losses != 0 {
		t.Fatalf("unexpected history: %#v", h)
	}
	mustFail(t, play(cards[2], "p4"))
}

func TestHumanMatch_TurnsAndDraw(t *testing.T) {
	a := newTestApp(t)
	alice, bob := newAccount(t), newAccount(t)
	register(t, a, alice)
	register(t, a, bob)
	ac := mintHand(t, a, alice.addr(), 10, 20, 30)
	bc := mintHand(t, a, bob.addr(), 10, 20, 30)
	mustOk(t, a.deliverTx(signedTx(t, alice, codec.TxJoinMatch, codec.JoinMatchTx{Player: alice.addr(), CardIDs: ac}, "j"), 2))
	mustOk(t, a.deliverTx(signedTx(t, bob, codec.TxJoinMatch, codec.JoinMatchTx{Player: bob.addr(), CardIDs: bc}, "j"), 2))

	play := func(acc *testAccount, card uint64) *abci.ExecTxResult {
		key := strconv.FormatUint(card, 10)
		return a.deliverTx(signedTx(t, acc, codec.TxPlayCard, codec.PlayCardTx{Player: acc.addr(), MatchID: 1, CardID: card}, key), 3)
	}

	mustFail(t, play(bob, bc[0]))
	mustOk(t, play(alice, ac[0]))
	rs := roundStateOf(t, a, 1)
	if rs.CurrentPlayer != bob.addr() || rs.LastPlayedBy != alice.addr() {
		t.Fatalf("unexpected round state: %#v", rs)
	}
	mustOk(t, play(bob, bc[0]))
	if st := matchStateOf(t, a, 1); st != types.RoundDrawn(1) {
		t.Fatalf("expected drawn round, got %v", st)
	}

	// bob leads round 2.
	mustFail(t, play(alice, ac[1]))
	mustOk(t, play(bob, bc[1]))
	if st := matchStateOf(t, a, 1); st != types.InProgress() {
		t.Fatalf("expected in progress after a new move, got %v", st)
	}
	mustOk(t, play(alice, ac[1]))
	mustOk(t, play(alice, ac[2]))
	mustOk(t, play(bob, bc[2]))
	if st := matchStateOf(t, a, 1); st != types.FinishedDraw() {
		t.Fatalf("expected draw, got %v", st)
	}
}

func TestMatchInfo_HandAndChosen(t *testing.T) {
	a := newTestApp(t)
	alice, bob := newAccount(t), newAccount(t)
	register(t, a, alice)
	register(t, a, bob)
	ac := mintHand(t, a, alice.addr(), 10, 20, 30)
	bc := mintHand(t, a, bob.addr(), 10, 20, 30)
	mustOk(t, a.deliverTx(signedTx(t, alice, codec.TxJoinMatch, codec.JoinMatchTx{Player: alice.addr(), CardIDs: ac}, "j"), 2))
	mustOk(t, a.deliverTx(signedTx(t, bob, codec.TxJoinMatch, codec.JoinMatchTx{Player: bob.addr(), CardIDs: bc}, "j"), 2))
	mustOk(t, a.deliverTx(signedTx(t, alice, codec.TxPlayCard, codec.PlayCardTx{Player: alice.addr(), MatchID: 1, CardID: ac[1]}, "p"), 3))

	var resp codec.GameInformationResponse
	if err := json.Unmarshal(query(t, a, codec.MatchInfoPath(1)).Value, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	info := resp.GameInformation.ToDomain()
	self, ok := info.Self(alice.addr())
	if !ok || self.ChosenCard != types.CardID(ac[1]) || len(self.Hand) != 3 || self.CardCount != 2 {
		t.Fatalf("unexpected self: %#v", self)
	}
	opp, _ := info.Opponent(alice.addr())
	if opp.Address != bob.addr() || opp.CardCount != 3 {
		t.Fatalf("unexpected opponent: %#v", opp)
	}
}

func TestAbandon_MatchDoesNotExist(t *testing.T) {
	a := newTestApp(t)
	alice := newAccount(t)
	register(t, a, alice)
	cards := mintHand(t, a, alice.addr(), 10, 20, 30)
	mustOk(t, a.deliverTx(signedTx(t, alice, codec.TxJoinMatch, codec.JoinMatchTx{Player: alice.addr(), CardIDs: cards, PlayWithBot: true}, "j"), 2))
	mustOk(t, a.deliverTx(signedTx(t, alice, codec.TxAbandonMatch, codec.AbandonMatchTx{MatchID: 1}, ""), 3))

	if st := matchStateOf(t, a, 1); st.Tag != types.TagDoesNotExist {
		t.Fatalf("expected does-not-exist, got %v", st)
	}
	if res := query(t, a, codec.MatchRoundPath(1)); res.Code != codec.CodeNotFound {
		t.Fatalf("expected not found, got code=%d", res.Code)
	}
}

func TestRejectedTxLeavesNoWrites(t *testing.T) {
	a := newTestApp(t)
	alice := newAccount(t)
	register(t, a, alice)
	before := a.st.AppHash()

	// Signed by alice but references cards she does not own.
	mustFail(t, a.deliverTx(signedTx(t, alice, codec.TxJoinMatch, codec.JoinMatchTx{Player: alice.addr(), CardIDs: []uint64{7, 8, 9}}, "j"), 1))
	if string(before) != string(a.st.AppHash()) {
		t.Fatalf("expected state to be unchanged")
	}
}

func TestQuery_UnknownPaths(t *testing.T) {
	a := newTestApp(t)
	for _, p := range []string{"/nope", "/duel/match/x/state", "/duel/match/1/what", "/duel/player/alice", "/duel/player/alice/bogus"} {
		if res := query(t, a, p); res.Code != codec.CodeInvalid {
			t.Fatalf("%s: expected code %d, got %d", p, codec.CodeInvalid, res.Code)
		}
	}
	if res := query(t, a, codec.PlayerHistoryPath("nobody")); res.Code != codec.CodeNotFound {
		t.Fatalf("expected not found for missing history")
	}
}

func TestState_SaveLoadAndHash(t *testing.T) {
	a := newTestApp(t)
	alice := newAccount(t)
	register(t, a, alice)
	mintHand(t, a, alice.addr(), 10, 20, 30)

	dir := t.TempDir()
	if err := a.st.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(st.AppHash()) != string(a.st.AppHash()) {
		t.Fatalf("expected identical hash after reload")
	}
	st.Owners[1] = "bob"
	if string(st.AppHash()) == string(a.st.AppHash()) {
		t.Fatalf("expected hash to change after state mutation")
	}
}

func TestAbandon_RecordsPastGame(t *testing.T) {
	st := NewState()
	var hand []uint64
	for _, p := range []uint32{10, 20, 30} {
		id, err := st.mint("p1", "c", "", types.ElementFire, p)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		hand = append(hand, id)
	}
	id, err := st.join("p1", hand, true)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := st.abandon("p1", id); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	ps := st.Players["p1"]
	if ps == nil || ps.RecentPastGame == nil || *ps.RecentPastGame != id {
		t.Fatalf("expected recent past game %d, got %+v", id, ps)
	}
	if ps.Wins+ps.Losses+ps.Draws != 0 {
		t.Fatalf("abandoned match must not count as a result: %+v", ps)
	}
	if _, err := st.join("p1", hand, true); err != nil {
		t.Fatalf("rejoin after abandon: %v", err)
	}
}

func TestPlay_BotWithoutCardsFails(t *testing.T) {
	st := NewState()
	var hand []uint64
	for _, p := range []uint32{10, 20, 30} {
		id, err := st.mint("p1", "c", "", types.ElementFire, p)
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		hand = append(hand, id)
	}
	id, err := st.join("p1", hand, true)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	st.Matches[id].Seats[1].Hand = nil

	if err := st.play("p1", id, hand[0]); err == nil {
		t.Fatalf("expected error when the bot cannot move")
	}
}
