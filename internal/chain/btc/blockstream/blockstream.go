package blockstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const (
	maxRetries = 3

	feeCacheKey = "fee-estimates"
	tipCacheKey = "tip-height"
	feeCacheTTL = 30 * time.Second
	tipCacheTTL = 10 * time.Second
)

var minFeeRegex = regexp.MustCompile(`min relay fee not met, (\d+) < (\d+)`)

type blockstream struct {
	baseURL    string
	client     *http.Client
	logger     *logger.Logger
	retryDelay time.Duration
	cache      *cache.Cache
}

func New(cfg *config.AppConfig, logger *logger.Logger) IBlockStream {
	return NewWithClient(cfg.Bitcoin.BlockstreamAPIURL, &http.Client{Timeout: 30 * time.Second}, cfg.Bitcoin.RetryDelay, logger)
}

func NewWithClient(baseURL string, client *http.Client, retryDelay time.Duration, logger *logger.Logger) IBlockStream {
	return &blockstream{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     client,
		logger:     logger,
		retryDelay: retryDelay,
		cache:      cache.New(feeCacheTTL, time.Minute),
	}
}

func (c *blockstream) BroadcastTx(ctx context.Context, txHex string) (string, error) {
	url := fmt.Sprintf("%s/tx", c.baseURL)
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(txHex))
		if err != nil {
			return "", errors.Wrap(err, "failed to create request")
		}
		req.Header.Add("Content-Type", "text/plain")

		status, body, err := c.do(req)
		if err != nil {
			lastErr = chain.Unavailable(errors.Wrap(err, "failed to request broadcast transaction"))
			c.logger.Error("[BroadcastTx][client.Do]", map[string]string{
				"error":   err.Error(),
				"attempt": strconv.Itoa(attempt),
			})
			if !c.backoff(ctx, attempt) {
				return "", lastErr
			}
			continue
		}

		if status == http.StatusOK {
			return strings.TrimSpace(string(body)), nil
		}

		bodyStr := string(body)
		c.logger.Error("[BroadcastTx] broadcast error", map[string]string{
			"error":      bodyStr,
			"statusCode": strconv.Itoa(status),
			"attempt":    strconv.Itoa(attempt),
		})

		if matches := minFeeRegex.FindStringSubmatch(bodyStr); len(matches) == 3 {
			minFee, _ := strconv.ParseInt(matches[2], 10, 64)
			return "", chain.Unavailable(&BroadcastTxError{
				Message:    bodyStr,
				StatusCode: status,
				MinFee:     minFee,
			})
		}

		// 400 means the node validated and refused the transaction.
		if status == http.StatusBadRequest {
			return "", fmt.Errorf("%w: %s", chain.ErrRejected, bodyStr)
		}

		lastErr = chain.Unavailable(fmt.Errorf("status code: %v, failed to broadcast transaction: %s", status, bodyStr))
		if !c.backoff(ctx, attempt) {
			return "", lastErr
		}
	}

	return "", lastErr
}

// EstimateFees returns a map of confirmation target (in blocks) to fee rate (in sat/vB):
//
//	{"1": 25.0, "2": 20.0, "3": 15.0, "6": 10.0}
func (c *blockstream) EstimateFees(ctx context.Context) (map[string]float64, error) {
	if cached, ok := c.cache.Get(feeCacheKey); ok {
		return cached.(map[string]float64), nil
	}

	var fees map[string]float64
	if err := c.getJSON(ctx, "EstimateFees", "/fee-estimates", &fees); err != nil {
		return nil, err
	}
	c.cache.Set(feeCacheKey, fees, feeCacheTTL)
	return fees, nil
}

func (c *blockstream) GetUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var utxos []UTXO
	if err := c.getJSON(ctx, "GetUTXOs", "/address/"+address+"/utxo", &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

func (c *blockstream) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	var tx Transaction
	if err := c.getJSON(ctx, "GetTransaction", "/tx/"+txID, &tx); err != nil {
		return nil, err
	}
	if tx.TxID == "" {
		return nil, fmt.Errorf("%w: empty transaction body for %s", chain.ErrChainUnavailable, txID)
	}
	return &tx, nil
}

func (c *blockstream) GetTipHeight(ctx context.Context) (int64, error) {
	if cached, ok := c.cache.Get(tipCacheKey); ok {
		return cached.(int64), nil
	}

	body, err := c.get(ctx, "GetTipHeight", "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, chain.Unavailable(errors.Wrap(err, "failed to parse tip height"))
	}
	c.cache.Set(tipCacheKey, height, tipCacheTTL)
	return height, nil
}

// GetTransactionsByAddress pages through an address history, newest first.
// fromTxID continues after the last confirmed transaction of a previous page.
func (c *blockstream) GetTransactionsByAddress(ctx context.Context, address string, fromTxID string) ([]Transaction, error) {
	path := "/address/" + address + "/txs"
	if fromTxID != "" {
		path += "/chain/" + fromTxID
	}

	var txs []Transaction
	if err := c.getJSON(ctx, "GetTransactionsByAddress", path, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *blockstream) getJSON(ctx context.Context, op, path string, out interface{}) error {
	body, err := c.get(ctx, op, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("["+op+"][json.Unmarshal]", map[string]string{
			"error": err.Error(),
			"body":  string(body),
		})
		return chain.Unavailable(errors.Wrapf(err, "failed to parse %s response", op))
	}
	return nil
}

// get retries transport errors and 5xx responses. 404 maps to
// chain.ErrTransactionNotFound and other 4xx to chain.ErrInvalidTransaction.
func (c *blockstream) get(ctx context.Context, op, path string) ([]byte, error) {
	url := c.baseURL + path
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create request")
		}

		status, body, err := c.do(req)
		if err != nil {
			lastErr = chain.Unavailable(errors.Wrapf(err, "failed to call %s", path))
			c.logger.Error("["+op+"][client.Get]", map[string]string{
				"error":   err.Error(),
				"attempt": strconv.Itoa(attempt),
			})
			if !c.backoff(ctx, attempt) {
				return nil, lastErr
			}
			continue
		}

		switch {
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", chain.ErrTransactionNotFound, path)
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = chain.Unavailable(fmt.Errorf("unexpected status code: %d", status))
			c.logger.Error("["+op+"][client.Get]", map[string]string{
				"error":      lastErr.Error(),
				"statusCode": strconv.Itoa(status),
				"attempt":    strconv.Itoa(attempt),
			})
			if !c.backoff(ctx, attempt) {
				return nil, lastErr
			}
		default:
			return nil, fmt.Errorf("%w: status %d: %s", chain.ErrInvalidTransaction, status, strings.TrimSpace(string(body)))
		}
	}

	return nil, lastErr
}

func (c *blockstream) do(req *http.Request) (int, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to read response body")
	}
	return resp.StatusCode, body, nil
}

// backoff sleeps attempt*retryDelay and reports whether another attempt should follow.
func (c *blockstream) backoff(ctx context.Context, attempt int) bool {
	if attempt >= maxRetries {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(attempt) * c.retryDelay):
		return true
	}
}
