// =============================
// File: internal/pumpportal/client.go
// =============================
package pumpportal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Action: направление сделки.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxTries   = 3
	defaultRetryDelay = 300 * time.Millisecond
	maxErrorBody      = 512
)

var ErrEmptyTransaction = errors.New("swap service returned an empty transaction")

// TradeRequest: тело запроса trade-local. Amount бывает числом (SOL или
// токены) либо строкой процента вида "100%".
type TradeRequest struct {
	PublicKey        string      `json:"publicKey"`
	Action           Action      `json:"action"`
	Mint             string      `json:"mint"`
	DenominatedInSol string      `json:"denominatedInSol"`
	Amount           interface{} `json:"amount"`
	Slippage         float64     `json:"slippage"`
	PriorityFee      float64     `json:"priorityFee"`
	Pool             string      `json:"pool"`
}

// NewBuyRequest собирает запрос на покупку за amountSol SOL.
func NewBuyRequest(publicKey, mint string, amountSol, slippage, priorityFee float64, pool string) TradeRequest {
	return TradeRequest{
		PublicKey:        publicKey,
		Action:           ActionBuy,
		Mint:             mint,
		DenominatedInSol: "true",
		Amount:           amountSol,
		Slippage:         slippage,
		PriorityFee:      priorityFee,
		Pool:             pool,
	}
}

// NewSellRequest собирает запрос на продажу percentage процентов баланса токена.
func NewSellRequest(publicKey, mint string, percentage, slippage, priorityFee float64, pool string) TradeRequest {
	return TradeRequest{
		PublicKey:        publicKey,
		Action:           ActionSell,
		Mint:             mint,
		DenominatedInSol: "false",
		Amount:           strconv.FormatFloat(percentage, 'f', -1, 64) + "%",
		Slippage:         slippage,
		PriorityFee:      priorityFee,
		Pool:             pool,
	}
}

// StatusError: неуспешный HTTP-ответ сервиса.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("swap service returned status %d: %s", e.StatusCode, e.Body)
}

// Client запрашивает у PumpPortal готовые неподписанные транзакции.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	maxTries   uint
	retryDelay time.Duration
}

// NewClient создаёт клиента для endpoint вида https://pumpportal.fun/api/trade-local.
func NewClient(endpoint string, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Named("pumpportal"),
		maxTries:   defaultMaxTries,
		retryDelay: defaultRetryDelay,
	}
}

// BuildTransaction возвращает сериализованную транзакцию для подписи.
// 5xx и сетевые ошибки повторяются, 4xx считаются окончательными.
func (c *Client) BuildTransaction(ctx context.Context, req TradeRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trade request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.retryDelay * 10

	notify := func(err error, d time.Duration) {
		c.logger.Warn("Retrying trade-local request",
			zap.String("mint", req.Mint),
			zap.String("action", string(req.Action)),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	operation := func() ([]byte, error) {
		return c.doRequest(ctx, body)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify))
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("trade-local request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction: %w", err)
	}
	if len(raw) == 0 {
		return nil, backoff.Permanent(ErrEmptyTransaction)
	}
	return raw, nil
}
