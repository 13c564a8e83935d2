package zec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
)

// zcashd RPC error codes
const (
	codeWalletError       = -4
	codeInvalidAddressKey = -5
	codeInsufficientFunds = -6
	codeInvalidParameter  = -8
	codeVerifyRejected    = -26
)

type Client interface {
	GetRawTransaction(ctx context.Context, txID string) (*RawTransaction, error)
	GetBlockCount(ctx context.Context) (int64, error)
	SendToAddress(ctx context.Context, address string, zats int64, comment string) (string, error)
	ListTransactions(ctx context.Context, count, skip int) ([]WalletTransaction, error)
}

type client struct {
	rpc *rpc.Client
}

func Dial(ctx context.Context, cfg config.ZcashConfig) (Client, error) {
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.RPCUser+":"+cfg.RPCPass))
	c, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPAuth(func(h http.Header) error {
		h.Set("Authorization", auth)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("dial zcashd: %w", err)
	}
	return NewClient(c), nil
}

func NewClient(c *rpc.Client) Client {
	return &client{rpc: c}
}

func (c *client) GetRawTransaction(ctx context.Context, txID string) (*RawTransaction, error) {
	var tx *RawTransaction
	if err := c.rpc.CallContext(ctx, &tx, "getrawtransaction", txID, 1); err != nil {
		return nil, classify(err, map[int]error{
			codeInvalidAddressKey: chain.ErrTransactionNotFound,
			codeInvalidParameter:  chain.ErrInvalidTransaction,
		})
	}
	if tx == nil || tx.TxID == "" {
		return nil, fmt.Errorf("%w: empty getrawtransaction result", chain.ErrChainUnavailable)
	}
	return tx, nil
}

func (c *client) GetBlockCount(ctx context.Context) (int64, error) {
	var height int64
	if err := c.rpc.CallContext(ctx, &height, "getblockcount"); err != nil {
		return 0, classify(err, nil)
	}
	return height, nil
}

func (c *client) SendToAddress(ctx context.Context, address string, zats int64, comment string) (string, error) {
	var txID string
	err := c.rpc.CallContext(ctx, &txID, "sendtoaddress", address, FromZats(zats), comment)
	if err != nil {
		return "", classify(err, map[int]error{
			codeInvalidAddressKey: chain.ErrInvalidAddress,
			codeInsufficientFunds: chain.ErrInsufficientFunds,
			codeInvalidParameter:  chain.ErrRejected,
			codeWalletError:       chain.ErrRejected,
			codeVerifyRejected:    chain.ErrRejected,
		})
	}
	return txID, nil
}

func (c *client) ListTransactions(ctx context.Context, count, skip int) ([]WalletTransaction, error) {
	var txs []WalletTransaction
	if err := c.rpc.CallContext(ctx, &txs, "listtransactions", "*", count, skip); err != nil {
		return nil, classify(err, nil)
	}
	return txs, nil
}

type rpcErrorBody struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps a zcashd error onto the chain taxonomy. zcashd answers RPC
// errors with HTTP 500 and the error object in the body, so both rpc.Error and
// rpc.HTTPError are inspected. Unlisted codes are treated as transient.
func classify(err error, codes map[int]error) error {
	code, msg, ok := rpcCode(err)
	if !ok {
		return chain.Unavailable(err)
	}
	if target, found := codes[code]; found {
		return fmt.Errorf("%w: zcashd %d: %s", target, code, msg)
	}
	return chain.Unavailable(fmt.Errorf("zcashd %d: %s", code, msg))
}

func rpcCode(err error) (int, string, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), rpcErr.Error(), true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && len(httpErr.Body) > 0 {
		var body rpcErrorBody
		if json.Unmarshal(httpErr.Body, &body) == nil && body.Error != nil {
			return body.Error.Code, body.Error.Message, true
		}
	}
	return 0, "", false
}
