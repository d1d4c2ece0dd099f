package devnet

import (
	"context"
	"encoding/json"
	"fmt"

	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/Pranav2456/Rutzo/internal/codec"
	"github.com/Pranav2456/Rutzo/internal/types"
)

// Broadcaster is the write half of ledger.Transport.
type Broadcaster interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTxCommit, error)
}

// StarterDeck is minted to new devnet players.
var StarterDeck = []codec.MintCardTx{
	{Name: "Ember Fox", Type: string(types.ElementFire), Power: 42},
	{Name: "Tide Caller", Type: string(types.ElementWater), Power: 37},
	{Name: "Boulder Ram", Type: string(types.ElementRock), Power: 51},
	{Name: "Frost Wisp", Type: string(types.ElementIce), Power: 29},
	{Name: "Night Shade", Type: string(types.ElementDark), Power: 46},
	{Name: "Iron Fist", Type: string(types.ElementFighting), Power: 58},
}

// Mint sends an unsigned duel/mint_card tx.
func Mint(ctx context.Context, b Broadcaster, msg codec.MintCardTx) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	tx, err := json.Marshal(codec.TxEnvelope{Type: codec.TxMintCard, Value: value})
	if err != nil {
		return err
	}
	res, err := b.BroadcastTxCommit(ctx, tx)
	if err != nil {
		return fmt.Errorf("mint %q: %w", msg.Name, err)
	}
	if res.CheckTx.Code != 0 {
		return fmt.Errorf("mint %q: %s", msg.Name, res.CheckTx.Log)
	}
	if res.TxResult.Code != 0 {
		return fmt.Errorf("mint %q: %s", msg.Name, res.TxResult.Log)
	}
	return nil
}

// Faucet mints the starter deck to addr.
func Faucet(ctx context.Context, b Broadcaster, addr string) error {
	for _, c := range StarterDeck {
		c.To = addr
		if err := Mint(ctx, b, c); err != nil {
			return err
		}
	}
	return nil
}
