package sol

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
)

// Solana JSON-RPC error codes
const (
	codeInvalidParams             = -32602
	codeTransactionHistoryMissing = -32011
)

const (
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

type Client interface {
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
	GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error)
	GetSignaturesForAddress(ctx context.Context, address string, opts SignaturesOptions) ([]SignatureInfo, error)
}

type SignaturesOptions struct {
	Limit  int
	Before string
	Until  string
}

type client struct {
	rpc *rpc.Client
}

func Dial(ctx context.Context, url string) (Client, error) {
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{}))
	if err != nil {
		return nil, fmt.Errorf("dial solana rpc: %w", err)
	}
	return NewClient(c), nil
}

func NewClient(c *rpc.Client) Client {
	return &client{rpc: c}
}

// GetTransaction returns chain.ErrTransactionNotFound when the node has no
// record of the signature at confirmed commitment.
func (c *client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var tx *Transaction
	err := c.rpc.CallContext(ctx, &tx, "getTransaction", signature, map[string]interface{}{
		"encoding":                       "jsonParsed",
		"commitment":                     CommitmentConfirmed,
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil {
		return nil, classify(err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrTransactionNotFound, signature)
	}
	if tx.Meta == nil {
		return nil, chain.Unavailable(fmt.Errorf("transaction %s has no meta", signature))
	}
	return tx, nil
}

func (c *client) GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	var out struct {
		Value []*SignatureStatus `json:"value"`
	}
	err := c.rpc.CallContext(ctx, &out, "getSignatureStatuses", []string{signature}, map[string]interface{}{
		"searchTransactionHistory": true,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrTransactionNotFound, signature)
	}
	return out.Value[0], nil
}

func (c *client) GetSignaturesForAddress(ctx context.Context, address string, opts SignaturesOptions) ([]SignatureInfo, error) {
	var out []SignatureInfo
	cfg := map[string]interface{}{"commitment": CommitmentConfirmed}
	if opts.Limit > 0 {
		cfg["limit"] = opts.Limit
	}
	if opts.Before != "" {
		cfg["before"] = opts.Before
	}
	if opts.Until != "" {
		cfg["until"] = opts.Until
	}
	if err := c.rpc.CallContext(ctx, &out, "getSignaturesForAddress", address, cfg); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func classify(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeInvalidParams:
			return fmt.Errorf("%w: %s", chain.ErrInvalidTransaction, rpcErr.Error())
		case codeTransactionHistoryMissing:
			return fmt.Errorf("%w: %s", chain.ErrTransactionNotFound, rpcErr.Error())
		}
	}
	return chain.Unavailable(err)
}
