package blockstream

import "context"

type IBlockStream interface {
	BroadcastTx(ctx context.Context, txHex string) (hash string, err error)
	EstimateFees(ctx context.Context) (fees map[string]float64, err error)
	GetUTXOs(ctx context.Context, address string) ([]UTXO, error)
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	GetTipHeight(ctx context.Context) (int64, error)
	GetTransactionsByAddress(ctx context.Context, address string, fromTxID string) ([]Transaction, error)
}
