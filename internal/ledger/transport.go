package ledger

import (
	"context"
	"fmt"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
)

// Transport is the subset of the CometBFT RPC client the duel client needs.
// *rpchttp.HTTP satisfies it, as does devnet.LocalTransport.
type Transport interface {
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*coretypes.ResultABCIQuery, error)
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTxCommit, error)
}

var _ Transport = (*rpchttp.HTTP)(nil)

// Dial connects to a CometBFT node RPC endpoint, e.g. tcp://127.0.0.1:26657.
func Dial(remote string) (*rpchttp.HTTP, error) {
	c, err := rpchttp.New(remote)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", remote, err)
	}
	return c, nil
}
