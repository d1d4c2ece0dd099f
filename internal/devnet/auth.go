package devnet

import (
	"crypto/ed25519"
	"fmt"
	"strconv"

	"github.com/Pranav2456/Rutzo/internal/codec"
)

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return fmt.Errorf("missing tx.nonce")
	}
	if env.Signer == "" {
		return fmt.Errorf("missing tx.signer")
	}
	if len(env.Sig) == 0 {
		return fmt.Errorf("missing tx.sig")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

func verifyEnvelope(pub ed25519.PublicKey, env codec.TxEnvelope) error {
	msg := codec.SignBytesV0(env.Type, env.Value, env.Nonce, env.Signer, env.IntentKey)
	if !ed25519.Verify(pub, msg, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func requireRegisterAccountAuth(env codec.TxEnvelope, msg codec.RegisterAccountTx) error {
	if msg.Account == "" {
		return fmt.Errorf("missing account")
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != msg.Account {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, msg.Account)
	}
	return verifyEnvelope(ed25519.PublicKey(msg.PubKey), env)
}

func requireAccountAuth(st *State, env codec.TxEnvelope, account string) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	if account == "" {
		return fmt.Errorf("missing account")
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != account {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, account)
	}
	pub := st.AccountKeys[account]
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("account %q missing pubKey (duel/register_account required)", account)
	}
	return verifyEnvelope(ed25519.PublicKey(pub), env)
}

// consumeNonce enforces strictly increasing nonces per signer.
func consumeNonce(st *State, env codec.TxEnvelope) error {
	n, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tx.nonce %q", env.Nonce)
	}
	if last, ok := st.NonceMax[env.Signer]; ok && n <= last {
		return fmt.Errorf("stale tx.nonce: got %d, last %d", n, last)
	}
	st.NonceMax[env.Signer] = n
	return nil
}

func intentRecordKey(env codec.TxEnvelope) string { return env.Signer + "/" + env.IntentKey }

func requireFreshIntent(st *State, env codec.TxEnvelope) error {
	if env.IntentKey == "" {
		return nil
	}
	if h, ok := st.Intents[intentRecordKey(env)]; ok {
		return fmt.Errorf("intent already executed at height %d", h)
	}
	return nil
}
