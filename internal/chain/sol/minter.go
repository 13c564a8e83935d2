package sol

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const (
	operationMint     = "mints"
	operationTransfer = "transfers"

	statusFailed = "failed"
)

type operationRequest struct {
	Key       string `json:"key"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type operationResponse struct {
	Key       string `json:"key"`
	Signature string `json:"signature"`
	Status    string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServiceBroadcaster talks to the mint authority service, which holds the
// zenZEC mint key and the SOL hot wallet. Every request carries the ledger key
// as its idempotency key.
type ServiceBroadcaster struct {
	client    *resty.Client
	operation string
	logger    *logger.Logger
}

// NewMinter mints zenZEC for settled deposits.
func NewMinter(cfg config.MinterConfig, logger *logger.Logger) *ServiceBroadcaster {
	return newServiceBroadcaster(cfg, operationMint, logger)
}

// NewTransferer pays native SOL for BurnSwap withdrawals.
func NewTransferer(cfg config.MinterConfig, logger *logger.Logger) *ServiceBroadcaster {
	return newServiceBroadcaster(cfg, operationTransfer, logger)
}

func newServiceBroadcaster(cfg config.MinterConfig, operation string, logger *logger.Logger) *ServiceBroadcaster {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30*time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.AuthToken != "" {
		client.SetAuthToken(cfg.AuthToken)
	}
	return &ServiceBroadcaster{client: client, operation: operation, logger: logger}
}

func (s *ServiceBroadcaster) Chain() model.Chain {
	return model.ChainSOL
}

func (s *ServiceBroadcaster) FindExisting(ctx context.Context, key string) (string, bool, error) {
	var out operationResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/operations/" + url.PathEscape(key))
	if err != nil {
		return "", false, chain.Unavailable(err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return "", false, nil
	case resp.StatusCode() != http.StatusOK:
		return "", false, s.classify(resp)
	case out.Signature == "" || out.Status == statusFailed:
		return "", false, nil
	}
	return out.Signature, true, nil
}

func (s *ServiceBroadcaster) Broadcast(ctx context.Context, t chain.Transfer) (string, error) {
	if t.Amount <= 0 {
		return "", fmt.Errorf("%w: non-positive amount %d", chain.ErrRejected, t.Amount)
	}
	if !IsAddress(t.Address) {
		return "", fmt.Errorf("%w: %q", chain.ErrInvalidAddress, t.Address)
	}

	var out operationResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", t.Key).
		SetBody(operationRequest{
			Key:       t.Key,
			Recipient: t.Address,
			Amount:    strconv.FormatInt(t.Amount, 10),
		}).
		SetResult(&out).
		Post("/v1/" + s.operation)
	if err != nil {
		return "", chain.Unavailable(err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", s.classify(resp)
	}
	if out.Signature == "" {
		return "", chain.Unavailable(fmt.Errorf("%s %s accepted without signature", s.operation, t.Key))
	}

	s.logger.Info("[Broadcast] solana operation sent", map[string]string{
		"operation": s.operation,
		"key":       t.Key,
		"signature": out.Signature,
	})
	return out.Signature, nil
}

// classify maps service responses onto the chain taxonomy. 409 means another
// request with the same key is still in flight.
func (s *ServiceBroadcaster) classify(resp *resty.Response) error {
	var body errorResponse
	_ = s.client.JSONUnmarshal(resp.Body(), &body)
	detail := fmt.Errorf("mint service %d %s: %s", resp.StatusCode(), body.Code, body.Message)

	switch resp.StatusCode() {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if body.Code == "invalid_address" {
			return fmt.Errorf("%w: %v", chain.ErrInvalidAddress, detail)
		}
		return fmt.Errorf("%w: %v", chain.ErrRejected, detail)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %v", chain.ErrInsufficientFunds, detail)
	default:
		s.logger.Error("[ServiceBroadcaster] unexpected response", map[string]string{
			"operation": s.operation,
			"error":     detail.Error(),
		})
		return chain.Unavailable(detail)
	}
}
