package codec

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// TxDomainV0 separates duel tx signatures from any other signed payload.
const TxDomainV0 = "duel/tx/v0"

const (
	TxRegisterAccount = "duel/register_account"
	TxMintCard        = "duel/mint_card"
	TxJoinMatch       = "duel/join_match"
	TxPlayCard        = "duel/play_card"
	TxAbandonMatch    = "duel/abandon_match"
)

// TxEnvelope is the transaction container.
//
// CometBFT transactions are opaque bytes; duel txs are JSON encoded.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Auth:
	// - Nonce: must increase per signer (replay protection).
	// - Signer: account address.
	// - Sig: Ed25519 signature over SignBytesV0.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`

	// IntentKey identifies a logical intent; the authority rejects a second tx
	// carrying an intent key it already executed for the same signer.
	IntentKey string `json:"intentKey,omitempty"`
	// RequestID correlates client logs with authority events.
	RequestID string `json:"requestId,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// SignBytesV0 is the message covered by TxEnvelope.Sig:
// DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || intentKey || 0x00 || sha256(value)
func SignBytesV0(typ string, value []byte, nonce, signer, intentKey string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(TxDomainV0)+len(typ)+len(nonce)+len(signer)+len(intentKey)+5+sha256.Size)
	out = append(out, TxDomainV0...)
	out = append(out, 0)
	out = append(out, typ...)
	out = append(out, 0)
	out = append(out, nonce...)
	out = append(out, 0)
	out = append(out, signer...)
	out = append(out, 0)
	out = append(out, intentKey...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// ---- Auth ----

type RegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Cards ----

// MintCardTx is accepted by development authorities only.
type MintCardTx struct {
	To    string `json:"to"`
	Name  string `json:"name"`
	Image string `json:"media,omitempty"`
	Type  string `json:"type"`
	Power uint32 `json:"power"`
}

// ---- Duel ----

type JoinMatchTx struct {
	Player      string   `json:"player"`
	CardIDs     []uint64 `json:"cardIds"`
	PlayWithBot bool     `json:"playWithBot"`
}

type PlayCardTx struct {
	Player  string `json:"player"`
	MatchID int64  `json:"matchId"`
	CardID  uint64 `json:"cardId"`
}

type AbandonMatchTx struct {
	MatchID int64 `json:"matchId"`
}
