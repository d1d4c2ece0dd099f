package devnet

import (
	"context"
	"fmt"
	"sync"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
)

// LocalTransport drives a DuelApp in-process, committing one block per
// broadcast tx. It satisfies ledger.Transport.
type LocalTransport struct {
	app *DuelApp

	mu     sync.Mutex
	height int64
}

func NewLocalTransport(app *DuelApp) (*LocalTransport, error) {
	info, err := app.Info(context.Background(), &abci.InfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("app info: %w", err)
	}
	return &LocalTransport{app: app, height: info.LastBlockHeight}, nil
}

func (t *LocalTransport) ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*coretypes.ResultABCIQuery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := t.app.Query(ctx, &abci.QueryRequest{Path: path, Data: data})
	if err != nil {
		return nil, err
	}
	return &coretypes.ResultABCIQuery{Response: *res}, nil
}

func (t *LocalTransport) BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTxCommit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	check, err := t.app.CheckTx(ctx, &abci.CheckTxRequest{Tx: tx})
	if err != nil {
		return nil, err
	}
	out := &coretypes.ResultBroadcastTxCommit{CheckTx: *check, Hash: tx.Hash()}
	if check.Code != 0 {
		return out, nil
	}

	height := t.height + 1
	fin, err := t.app.FinalizeBlock(ctx, &abci.FinalizeBlockRequest{
		Txs:    [][]byte{tx},
		Height: height,
		Time:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if _, err := t.app.Commit(ctx, &abci.CommitRequest{}); err != nil {
		return nil, err
	}
	t.height = height

	out.TxResult = *fin.TxResults[0]
	out.Height = height
	return out, nil
}
