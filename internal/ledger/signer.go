package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Signer authorizes submissions on behalf of the local player.
type Signer interface {
	// Address is the ledger account the signer controls.
	Address() string
	Sign(msg []byte) ([]byte, error)
}

// Provider hands out the current signer, if any.
type Provider interface {
	Signer() (Signer, bool)
}

// KeySigner signs with a raw ed25519 key.
type KeySigner struct {
	addr string
	priv ed25519.PrivateKey
}

// AddressFromPubKey derives a short account address from an ed25519 public key.
func AddressFromPubKey(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "duel1" + hex.EncodeToString(sum[:20])
}

func NewKeySigner(priv ed25519.PrivateKey) (*KeySigner, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes", ed25519.PrivateKeySize)
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &KeySigner{addr: AddressFromPubKey(pub), priv: priv}, nil
}

func GenerateKey() (*KeySigner, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewKeySigner(priv)
}

func (k *KeySigner) Address() string { return k.addr }

func (k *KeySigner) PubKey() ed25519.PublicKey { return k.priv.Public().(ed25519.PublicKey) }

func (k *KeySigner) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, msg), nil
}

type keyFile struct {
	Address string `json:"address"`
	PubKey  []byte `json:"pubKey"`
	PrivKey []byte `json:"privKey"`
}

// LoadKeyFile reads a key written by SaveKeyFile.
func LoadKeyFile(path string) (*KeySigner, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	k, err := NewKeySigner(ed25519.PrivateKey(kf.PrivKey))
	if err != nil {
		return nil, err
	}
	if kf.Address != "" && kf.Address != k.addr {
		return nil, fmt.Errorf("key file address mismatch: file=%q derived=%q", kf.Address, k.addr)
	}
	return k, nil
}

func SaveKeyFile(path string, k *KeySigner) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir key dir: %w", err)
	}
	b, err := json.MarshalIndent(keyFile{Address: k.addr, PubKey: k.PubKey(), PrivKey: k.priv}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// StaticProvider always returns the same signer; a nil signer means none.
type StaticProvider struct {
	S Signer
}

func (p StaticProvider) Signer() (Signer, bool) {
	if p.S == nil {
		return nil, false
	}
	return p.S, true
}
