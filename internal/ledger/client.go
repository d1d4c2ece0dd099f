package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/Pranav2456/Rutzo/internal/codec"
	"github.com/Pranav2456/Rutzo/internal/types"
)

// Ack is returned once a submission has been included in a block.
type Ack struct {
	Hash   string
	Height int64
}

// Client reads match state from and submits txs to a duel authority.
type Client struct {
	tr     Transport
	logger log.Logger

	mu     sync.Mutex
	nonces map[string]uint64 // signer -> last nonce used
	now    func() time.Time
}

func NewClient(tr Transport, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Client{
		tr:     tr,
		logger: logger.With("module", "ledger"),
		nonces: map[string]uint64{},
		now:    time.Now,
	}
}

// query returns (nil, nil) when the authority reports the value as absent.
func (c *Client) query(ctx context.Context, path string) ([]byte, error) {
	res, err := c.tr.ABCIQuery(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	switch res.Response.Code {
	case codec.CodeOK:
		return res.Response.Value, nil
	case codec.CodeNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("query %s: code=%d log=%q", path, res.Response.Code, res.Response.Log)
	}
}

// RoundInfo returns the round state of a match, or nil if the authority has none.
func (c *Client) RoundInfo(ctx context.Context, id types.MatchID) (*types.RoundState, error) {
	b, err := c.query(ctx, codec.MatchRoundPath(id))
	if err != nil || b == nil {
		return nil, err
	}
	var resp codec.RoundInfoResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("decode round info: %w", err)
	}
	if resp.RoundState == nil {
		return nil, nil
	}
	rs := resp.RoundState.ToDomain()
	return &rs, nil
}

// MatchState returns DoesNotExist when the authority has no such match.
func (c *Client) MatchState(ctx context.Context, id types.MatchID) (types.MatchState, error) {
	b, err := c.query(ctx, codec.MatchStatePath(id))
	if err != nil {
		return types.MatchState{}, err
	}
	if b == nil {
		return types.DoesNotExist(), nil
	}
	return codec.DecodeMatchState(b)
}

func (c *Client) MatchInfo(ctx context.Context, id types.MatchID) (*types.MatchInfo, error) {
	b, err := c.query(ctx, codec.MatchInfoPath(id))
	if err != nil || b == nil {
		return nil, err
	}
	var resp codec.GameInformationResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("decode match info: %w", err)
	}
	if resp.GameInformation == nil {
		return nil, nil
	}
	info := resp.GameInformation.ToDomain()
	return &info, nil
}

// PlayerMatch returns the player's active match id, or NoMatch.
func (c *Client) PlayerMatch(ctx context.Context, addr string) (types.MatchID, error) {
	b, err := c.query(ctx, codec.PlayerMatchPath(addr))
	if err != nil {
		return types.NoMatch, err
	}
	if b == nil {
		return types.NoMatch, nil
	}
	var resp codec.PlayerInMatchResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return types.NoMatch, fmt.Errorf("decode player match: %w", err)
	}
	if resp.PlayerInMatch == nil {
		return types.NoMatch, nil
	}
	return types.MatchID(*resp.PlayerInMatch), nil
}

func (c *Client) PlayerHistory(ctx context.Context, addr string) (types.History, error) {
	empty := types.History{RecentPastGame: types.NoMatch}
	b, err := c.query(ctx, codec.PlayerHistoryPath(addr))
	if err != nil {
		return empty, err
	}
	if b == nil {
		return empty, nil
	}
	var resp codec.PlayerInformationResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return empty, fmt.Errorf("decode player history: %w", err)
	}
	if resp.PlayerInformation == nil {
		return empty, nil
	}
	return resp.PlayerInformation.ToDomain(), nil
}

// Cards lists the cards owned by addr.
func (c *Client) Cards(ctx context.Context, addr string) ([]types.Card, error) {
	b, err := c.query(ctx, codec.CardsPath(addr))
	if err != nil || b == nil {
		return nil, err
	}
	var resp codec.TokensForOwnerResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	for _, card := range resp.TokensForOwner {
		if err := card.Validate(); err != nil {
			return nil, fmt.Errorf("decode cards: %w", err)
		}
	}
	return resp.TokensForOwner, nil
}

// Snapshot reads the match state and, unless the match is gone, its round
// state. A missing round state yields a zero RoundState.
func (c *Client) Snapshot(ctx context.Context, id types.MatchID) (types.Snapshot, error) {
	st, err := c.MatchState(ctx, id)
	if err != nil {
		return types.Snapshot{}, err
	}
	snap := types.Snapshot{State: st}
	if st.Tag == types.TagDoesNotExist {
		return snap, nil
	}
	rs, err := c.RoundInfo(ctx, id)
	if err != nil {
		return types.Snapshot{}, err
	}
	if rs != nil {
		snap.Round = *rs
	}
	return snap, nil
}

// nextNonce keeps nonces strictly increasing per signer even within the same
// nanosecond or after a clock step backwards.
func (c *Client) nextNonce(signer string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := uint64(c.now().UnixNano())
	if last := c.nonces[signer]; n <= last {
		n = last + 1
	}
	c.nonces[signer] = n
	return n
}

// Submit signs value as a typ tx and broadcasts it, waiting for commit.
// Any authority rejection is returned as ErrSubmissionRejected.
func (c *Client) Submit(ctx context.Context, signer Signer, typ string, value any, intentKey, requestID string) (Ack, error) {
	if signer == nil {
		return Ack{}, types.ErrNoSigner
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Ack{}, errorsmod.Wrapf(types.ErrInvalidRequest, "encode %s value: %v", typ, err)
	}
	nonce := strconv.FormatUint(c.nextNonce(signer.Address()), 10)
	sig, err := signer.Sign(codec.SignBytesV0(typ, raw, nonce, signer.Address(), intentKey))
	if err != nil {
		return Ack{}, errorsmod.Wrapf(types.ErrNoSigner, "sign %s: %v", typ, err)
	}
	env := codec.TxEnvelope{
		Type:      typ,
		Value:     raw,
		Nonce:     nonce,
		Signer:    signer.Address(),
		Sig:       sig,
		IntentKey: intentKey,
		RequestID: requestID,
	}
	tx, err := json.Marshal(env)
	if err != nil {
		return Ack{}, errorsmod.Wrapf(types.ErrInvalidRequest, "encode envelope: %v", err)
	}

	logger := c.logger.With("tx", typ, "request_id", requestID)
	res, err := c.tr.BroadcastTxCommit(ctx, cmttypes.Tx(tx))
	if err != nil {
		logger.Error("broadcast failed", "err", err)
		return Ack{}, errorsmod.Wrapf(types.ErrSubmissionRejected, "broadcast %s: %v", typ, err)
	}
	if res.CheckTx.Code != 0 {
		logger.Info("tx rejected in check", "code", res.CheckTx.Code, "log", res.CheckTx.Log)
		return Ack{}, errorsmod.Wrapf(types.ErrSubmissionRejected, "%s check code=%d: %s", typ, res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.TxResult.Code != 0 {
		logger.Info("tx rejected in block", "code", res.TxResult.Code, "log", res.TxResult.Log)
		return Ack{}, errorsmod.Wrapf(types.ErrSubmissionRejected, "%s code=%d: %s", typ, res.TxResult.Code, res.TxResult.Log)
	}
	ack := Ack{Hash: hex.EncodeToString(res.Hash), Height: res.Height}
	logger.Debug("tx committed", "hash", ack.Hash, "height", ack.Height)
	return ack, nil
}
