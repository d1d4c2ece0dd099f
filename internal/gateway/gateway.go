package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/Pranav2456/Rutzo/internal/codec"
	"github.com/Pranav2456/Rutzo/internal/ledger"
	"github.com/Pranav2456/Rutzo/internal/types"
)

// Submitter broadcasts signed txs. *ledger.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, signer ledger.Signer, typ string, value any, intentKey, requestID string) (ledger.Ack, error)
}

// TurnOracle reports the last-known turn for a match.
type TurnOracle interface {
	IsLocalTurn(id types.MatchID) bool
}

// Intent kinds.
const (
	KindJoin = "join"
	KindPlay = "play"
)

type pendingKey struct {
	match types.MatchID
	kind  string
}

// Gateway submits player intents. At most one intent per kind per match is in
// flight; a second call while one is pending fails with ErrAlreadyPending
// instead of reaching the authority. Rejections are never retried.
type Gateway struct {
	sub     Submitter
	signers ledger.Provider
	turns   TurnOracle
	logger  log.Logger

	mu      sync.Mutex
	pending map[pendingKey]string // -> request id of the in-flight call
}

func New(sub Submitter, signers ledger.Provider, turns TurnOracle, logger log.Logger) *Gateway {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Gateway{
		sub:     sub,
		signers: signers,
		turns:   turns,
		logger:  logger.With("module", "gateway"),
		pending: map[pendingKey]string{},
	}
}

// IntentKey is the idempotence key carried in the tx envelope.
func IntentKey(id types.MatchID, kind string, payload string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", id, kind, payload)))
	return hex.EncodeToString(sum[:])
}

// JoinMatch asks to be paired. The match id is not returned; it has to be
// discovered by polling the player's active match.
//
// after is the player's most recent past match. It tells apart joins with the
// same cards and mode, so the authority rejects a replay of this join but not
// a join made after the next match has ended.
func (g *Gateway) JoinMatch(ctx context.Context, cardIDs []types.CardID, mode types.OpponentMode, after types.MatchID) error {
	if len(cardIDs) != types.HandSize {
		return errorsmod.Wrapf(types.ErrInvalidRequest, "need exactly %d cards, got %d", types.HandSize, len(cardIDs))
	}
	seen := map[types.CardID]bool{}
	raw := make([]uint64, 0, len(cardIDs))
	for _, id := range cardIDs {
		if seen[id] {
			return errorsmod.Wrapf(types.ErrInvalidRequest, "card %d listed twice", id)
		}
		seen[id] = true
		raw = append(raw, uint64(id))
	}
	if _, err := types.ParseOpponentMode(string(mode)); err != nil {
		return errorsmod.Wrap(types.ErrInvalidRequest, err.Error())
	}

	signer, ok := g.signers.Signer()
	if !ok {
		return types.ErrNoSigner
	}
	msg := codec.JoinMatchTx{Player: signer.Address(), CardIDs: raw, PlayWithBot: mode == types.OpponentBot}
	key := IntentKey(types.NoMatch, KindJoin, fmt.Sprintf("%v|%s|after=%d", raw, mode, after))
	_, err := g.submit(ctx, pendingKey{match: types.NoMatch, kind: KindJoin}, signer, codec.TxJoinMatch, msg, key)
	return err
}

// PlayCard plays cardID in the match. The turn pre-check is advisory; the
// authority has the final word.
func (g *Gateway) PlayCard(ctx context.Context, id types.MatchID, cardID types.CardID) (ledger.Ack, error) {
	if !id.Valid() {
		return ledger.Ack{}, errorsmod.Wrapf(types.ErrInvalidRequest, "invalid match id %d", id)
	}
	if g.turns != nil && !g.turns.IsLocalTurn(id) {
		return ledger.Ack{}, errorsmod.Wrapf(types.ErrNotYourTurn, "match %d", id)
	}
	signer, ok := g.signers.Signer()
	if !ok {
		return ledger.Ack{}, types.ErrNoSigner
	}
	msg := codec.PlayCardTx{Player: signer.Address(), MatchID: int64(id), CardID: uint64(cardID)}
	key := IntentKey(id, KindPlay, fmt.Sprintf("%d", cardID))
	return g.submit(ctx, pendingKey{match: id, kind: KindPlay}, signer, codec.TxPlayCard, msg, key)
}

func (g *Gateway) submit(ctx context.Context, pk pendingKey, signer ledger.Signer, typ string, msg any, intentKey string) (ledger.Ack, error) {
	requestID := uuid.NewString()

	g.mu.Lock()
	if _, busy := g.pending[pk]; busy {
		g.mu.Unlock()
		return ledger.Ack{}, errorsmod.Wrapf(types.ErrAlreadyPending, "%s for match %d", pk.kind, pk.match)
	}
	g.pending[pk] = requestID
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		// Reset may have dropped this entry and a newer call may own the key.
		if g.pending[pk] == requestID {
			delete(g.pending, pk)
		}
		g.mu.Unlock()
	}()

	logger := g.logger.With("intent", pk.kind, "match_id", int64(pk.match), "request_id", requestID)
	logger.Debug("submitting intent")
	ack, err := g.sub.Submit(ctx, signer, typ, msg, intentKey, requestID)
	if err != nil {
		logger.Info("intent rejected", "err", err)
		if errors.Is(err, types.ErrSubmissionRejected) || errors.Is(err, types.ErrNoSigner) {
			return ledger.Ack{}, err
		}
		return ledger.Ack{}, errorsmod.Wrap(types.ErrSubmissionRejected, err.Error())
	}
	logger.Info("intent accepted", "height", ack.Height)
	return ack, nil
}

// Pending reports whether an intent of the given kind is in flight.
func (g *Gateway) Pending(id types.MatchID, kind string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[pendingKey{match: id, kind: kind}]
	return ok
}

// Reset forgets in-flight intents. Their calls still complete on their own.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = map[pendingKey]string{}
}
