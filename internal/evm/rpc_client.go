package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Client using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Ethereum RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error returned by the node. Node-side
// errors (reverts, insufficient funds, nonce conflicts) are not retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ChainID retrieves the chain identifier.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_chainId", nil, &result); err != nil {
		return nil, err
	}
	id, err := hexutil.DecodeBig(result)
	if err != nil {
		return nil, fmt.Errorf("decode chain id %q: %w", result, err)
	}
	return id, nil
}

// BlockNumber retrieves the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	n, err := hexutil.DecodeUint64(result)
	if err != nil {
		return 0, fmt.Errorf("decode block number %q: %w", result, err)
	}
	return n, nil
}

// CallContract executes a read-only contract call against the latest block.
func (c *HTTPClient) CallContract(ctx context.Context, msg CallMsg) ([]byte, error) {
	call := map[string]interface{}{
		"to":   msg.To.Hex(),
		"data": hexutil.Encode(msg.Data),
	}
	if msg.From != nil {
		call["from"] = msg.From.Hex()
	}

	var result string
	if err := c.call(ctx, "eth_call", []interface{}{call, "latest"}, &result); err != nil {
		return nil, err
	}
	out, err := hexutil.Decode(result)
	if err != nil {
		return nil, fmt.Errorf("decode call result %q: %w", result, err)
	}
	return out, nil
}

// PendingNonceAt retrieves the pending-state nonce for an account.
func (c *HTTPClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_getTransactionCount", []interface{}{account.Hex(), "pending"}, &result); err != nil {
		return 0, err
	}
	n, err := hexutil.DecodeUint64(result)
	if err != nil {
		return 0, fmt.Errorf("decode nonce %q: %w", result, err)
	}
	return n, nil
}

// GasPrice retrieves the current gas price.
func (c *HTTPClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var result string
	if err := c.call(ctx, "eth_gasPrice", nil, &result); err != nil {
		return nil, err
	}
	price, err := hexutil.DecodeBig(result)
	if err != nil {
		return nil, fmt.Errorf("decode gas price %q: %w", result, err)
	}
	return price, nil
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
func (c *HTTPClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var result string
	if err := c.call(ctx, "eth_sendRawTransaction", []interface{}{hexutil.Encode(raw)}, &result); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(result), nil
}

// TransactionReceipt retrieves the receipt for a transaction.
// Returns nil, nil while the transaction is still pending.
func (c *HTTPClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var result *getReceiptResult
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash.Hex()}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		// Not mined yet
		return nil, nil
	}

	receipt := &Receipt{TxHash: common.HexToHash(result.TransactionHash)}

	var err error
	if receipt.Status, err = hexutil.DecodeUint64(result.Status); err != nil {
		return nil, fmt.Errorf("decode receipt status %q: %w", result.Status, err)
	}
	if receipt.BlockNumber, err = hexutil.DecodeUint64(result.BlockNumber); err != nil {
		return nil, fmt.Errorf("decode receipt block %q: %w", result.BlockNumber, err)
	}
	if result.GasUsed != "" {
		if receipt.GasUsed, err = hexutil.DecodeUint64(result.GasUsed); err != nil {
			return nil, fmt.Errorf("decode receipt gas %q: %w", result.GasUsed, err)
		}
	}
	for _, raw := range result.Logs {
		log := Log{Address: common.HexToAddress(raw.Address)}
		for _, topic := range raw.Topics {
			log.Topics = append(log.Topics, common.HexToHash(topic))
		}
		if raw.Data != "" {
			if log.Data, err = hexutil.Decode(raw.Data); err != nil {
				return nil, fmt.Errorf("decode receipt log data %q: %w", raw.Data, err)
			}
		}
		receipt.Logs = append(receipt.Logs, log)
	}
	return receipt, nil
}

// getReceiptResult is the raw RPC response for eth_getTransactionReceipt.
type getReceiptResult struct {
	TransactionHash string         `json:"transactionHash"`
	Status          string         `json:"status"`
	BlockNumber     string         `json:"blockNumber"`
	GasUsed         string         `json:"gasUsed"`
	Logs            []getLogResult `json:"logs"`
}

// getLogResult is one raw log entry inside a receipt.
type getLogResult struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}
