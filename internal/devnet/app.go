package devnet

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Pranav2456/Rutzo/internal/codec"
	"github.com/Pranav2456/Rutzo/internal/types"
)

const (
	AppVersion uint64 = 1
)

// DuelApp is a single-node duel authority implementing the ABCI application
// interface. It backs dueld and the in-process LocalTransport.
type DuelApp struct {
	*abci.BaseApplication

	home   string
	logger log.Logger

	mu       sync.Mutex
	st       *State
	lastHash []byte
}

func New(home string, logger log.Logger) (*DuelApp, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	appHome := filepath.Join(home, "app")
	st, err := Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &DuelApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		logger:          logger.With("module", "devnet"),
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *DuelApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "duel (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *DuelApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	if env.Type != codec.TxMintCard {
		if err := requireSignedEnvelope(env); err != nil {
			return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
		}
	}
	// Signatures are verified at delivery against the committed account keys.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *DuelApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	return &abci.InitChainResponse{}, nil
}

func (a *DuelApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *DuelApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *DuelApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /duel/match/<id>[/round|/state]
	// - /duel/player/<addr>/match|history
	// - /duel/cards/<addr>
	path := strings.TrimSpace(req.Path)
	height := a.st.Height
	invalid := func(msg string) (*abci.QueryResponse, error) {
		return &abci.QueryResponse{Code: codec.CodeInvalid, Log: msg, Height: height}, nil
	}
	notFound := func(msg string) (*abci.QueryResponse, error) {
		return &abci.QueryResponse{Code: codec.CodeNotFound, Log: msg, Height: height}, nil
	}
	ok := func(v any) (*abci.QueryResponse, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return invalid(err.Error())
		}
		return &abci.QueryResponse{Code: codec.CodeOK, Value: b, Height: height}, nil
	}

	switch {
	case strings.HasPrefix(path, "/duel/match/"):
		parts := strings.Split(strings.TrimPrefix(path, "/duel/match/"), "/")
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || len(parts) > 2 {
			return invalid("invalid match path")
		}
		m := a.st.Matches[id]
		sub := ""
		if len(parts) == 2 {
			sub = parts[1]
		}
		switch sub {
		case "state":
			if m == nil {
				return ok(codec.MatchStateResponse{MatchDoesNotExist: true})
			}
			b, err := codec.EncodeMatchState(matchState(m))
			if err != nil {
				return invalid(err.Error())
			}
			return &abci.QueryResponse{Code: codec.CodeOK, Value: b, Height: height}, nil
		case "round":
			if m == nil {
				return notFound("match not found")
			}
			return ok(codec.RoundInfoResponse{RoundState: a.roundState(m)})
		case "":
			if m == nil {
				return notFound("match not found")
			}
			return ok(codec.GameInformationResponse{GameInformation: a.matchInfo(m)})
		default:
			return invalid("unknown match query " + sub)
		}

	case strings.HasPrefix(path, "/duel/player/"):
		rest := strings.TrimPrefix(path, "/duel/player/")
		addr, what, found := strings.Cut(rest, "/")
		if !found || addr == "" {
			return invalid("invalid player path")
		}
		switch what {
		case "match":
			resp := codec.PlayerInMatchResponse{}
			if id, in := a.st.PlayerMatch[addr]; in {
				resp.PlayerInMatch = &id
			}
			return ok(resp)
		case "history":
			ps := a.st.Players[addr]
			if ps == nil {
				return notFound("no history")
			}
			return ok(codec.PlayerInformationResponse{PlayerInformation: &codec.PlayerInformationJSON{
				RecentPastGame: ps.RecentPastGame,
				Wins:           ps.Wins,
				Losses:         ps.Losses,
				Draws:          ps.Draws,
				Matches:        ps.Matches,
			}})
		default:
			return invalid("unknown player query " + what)
		}

	case strings.HasPrefix(path, "/duel/cards/"):
		addr := strings.TrimPrefix(path, "/duel/cards/")
		if addr == "" {
			return invalid("missing owner")
		}
		return ok(codec.TokensForOwnerResponse{TokensForOwner: a.st.cardsOf(addr)})

	default:
		return invalid("unknown query path")
	}
}

func matchState(m *Match) types.MatchState {
	switch m.State {
	case StateFinished:
		return types.Finished(m.Winner)
	case StateDraw:
		return types.FinishedDraw()
	case StateRoundFinished:
		last := m.Results[len(m.Results)-1]
		if last.Draw {
			return types.RoundDrawn(last.Round)
		}
		return types.RoundFinished(last.Round, last.Winner)
	default:
		return types.InProgress()
	}
}

func (a *DuelApp) roundState(m *Match) *codec.RoundStateJSON {
	rs := &codec.RoundStateJSON{MatchID: m.ID, Round: m.Round}
	if !m.over() {
		rs.CurrentPlayer = m.Seats[m.Turn].Player
	}
	if m.Last != nil {
		if c := a.st.Cards[m.Last.Card]; c != nil {
			card := *c
			rs.LastPlayedCard = &card
		}
		rs.LastPlayedBy = m.Last.By
		rs.LastPlayedRound = m.Last.Round
	}
	return rs
}

func (a *DuelApp) matchInfo(m *Match) *codec.MatchInfoJSON {
	player := func(s Seat) codec.PlayerJSON {
		p := codec.PlayerJSON{UserID: s.Player, NftCount: s.unplayed(), ChosenNft: s.Chosen}
		for _, id := range s.Hand {
			if c := a.st.Cards[id]; c != nil {
				p.Hand = append(p.Hand, *c)
			}
		}
		return p
	}
	return &codec.MatchInfoJSON{
		MatchID:     m.ID,
		User1:       player(m.Seats[0]),
		User2:       player(m.Seats[1]),
		PlayWithBot: m.Bot,
		Round:       m.Round,
	}
}

func (a *DuelApp) deliverTx(txBytes []byte, height int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}
	logger := a.logger.With("tx", env.Type, "signer", env.Signer, "request_id", env.RequestID)

	// Execute against a copy so a rejected tx leaves no partial writes.
	prev := a.st
	staged, err := prev.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}
	a.st = staged
	res := a.execTx(env, height)
	if res.Code != 0 {
		a.st = prev
		logger.Info("tx rejected", "height", height, "log", res.Log)
		return res
	}
	if env.IntentKey != "" && env.Signer != "" {
		a.st.Intents[intentRecordKey(env)] = height
	}
	logger.Debug("tx executed", "height", height)
	return res
}

// authorize checks signature, nonce and intent freshness for account.
func (a *DuelApp) authorize(env codec.TxEnvelope, account string) error {
	if err := requireAccountAuth(a.st, env, account); err != nil {
		return err
	}
	if err := requireFreshIntent(a.st, env); err != nil {
		return err
	}
	return consumeNonce(a.st, env)
}

func (a *DuelApp) execTx(env codec.TxEnvelope, height int64) *abci.ExecTxResult {
	switch env.Type {
	case codec.TxRegisterAccount:
		var msg codec.RegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad duel/register_account value"}
		}
		if err := requireRegisterAccountAuth(env, msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if existing := a.st.AccountKeys[msg.Account]; len(existing) != 0 && string(existing) != string(msg.PubKey) {
			return &abci.ExecTxResult{Code: 1, Log: "account already registered with a different key"}
		}
		if err := consumeNonce(a.st, env); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		a.st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
		return okEvent("AccountRegistered", map[string]string{"account": msg.Account})

	case codec.TxMintCard:
		var msg codec.MintCardTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad duel/mint_card value"}
		}
		typ, err := types.ParseElementType(msg.Type)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		id, err := a.st.mint(msg.To, msg.Name, msg.Image, typ, msg.Power)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("CardMinted", map[string]string{
			"to":     msg.To,
			"cardId": fmt.Sprintf("%d", id),
		})

	case codec.TxJoinMatch:
		var msg codec.JoinMatchTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad duel/join_match value"}
		}
		if err := a.authorize(env, msg.Player); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		id, err := a.st.join(msg.Player, msg.CardIDs, msg.PlayWithBot)
		if err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if id == 0 {
			return okEvent("MatchQueued", map[string]string{"player": msg.Player})
		}
		return okEvent("MatchStarted", map[string]string{
			"matchId": fmt.Sprintf("%d", id),
			"player":  msg.Player,
			"bot":     strconv.FormatBool(msg.PlayWithBot),
		})

	case codec.TxPlayCard:
		var msg codec.PlayCardTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad duel/play_card value"}
		}
		if err := a.authorize(env, msg.Player); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := a.st.play(msg.Player, msg.MatchID, msg.CardID); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		m := a.st.Matches[msg.MatchID]
		return okEvent("CardPlayed", map[string]string{
			"matchId": fmt.Sprintf("%d", msg.MatchID),
			"player":  msg.Player,
			"cardId":  fmt.Sprintf("%d", msg.CardID),
			"round":   fmt.Sprintf("%d", m.Round),
			"state":   m.State,
		})

	case codec.TxAbandonMatch:
		var msg codec.AbandonMatchTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad duel/abandon_match value"}
		}
		if err := a.authorize(env, env.Signer); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := a.st.abandon(env.Signer, msg.MatchID); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent("MatchAbandoned", map[string]string{
			"matchId": fmt.Sprintf("%d", msg.MatchID),
			"player":  env.Signer,
		})

	default:
		return &abci.ExecTxResult{Code: 1, Log: "unknown tx type: " + env.Type}
	}
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
