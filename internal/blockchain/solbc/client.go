// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/pump-assistant/internal/blockchain"
	"go.uber.org/zap"
)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultConfirmTimeout = 60 * time.Second
)

// Определение ошибок
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// TransactionFailedError: транзакция попала в блок, но завершилась ошибкой.
type TransactionFailedError struct {
	Signature solana.Signature
	Reason    interface{}
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed on-chain: %v", e.Signature, e.Reason)
}

// IsAccountNotFoundError проверяет, является ли ошибка "not found"
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// Client – тонкий адаптер для взаимодействия с блокчейном Solana через solana-go.
type Client struct {
	rpc            *rpc.Client
	logger         *zap.Logger
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// Option настраивает Client.
type Option func(*Client)

// WithConfirmTimeout задаёт максимальное время ожидания подтверждения.
func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.confirmTimeout = d
		}
	}
}

// WithPollInterval задаёт период опроса статуса подписи.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewClient создаёт новый клиент, принимая RPC URL и логгер через dependency injection.
func NewClient(rpcURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:            rpc.New(rpcURL),
		logger:         logger.Named("solbc-client"),
		pollInterval:   defaultPollInterval,
		confirmTimeout: defaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendTransactionWithOpts отправляет транзакцию с заданными опциями.
func (c *Client) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts blockchain.TransactionOptions) (solana.Signature, error) {
	txOpts := rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.PreflightCommitment,
	}
	if opts.MaxRetries > 0 {
		maxRetries := opts.MaxRetries
		txOpts.MaxRetries = &maxRetries
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, txOpts)
	if err != nil {
		c.logger.Error("SendTransactionWithOpts error", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

// GetSignatureStatuses получает статусы транзакций.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	result, err := c.rpc.GetSignatureStatuses(ctx, false, signatures...)
	if err != nil {
		c.logger.Debug("GetSignatureStatuses error", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// WaitForTransactionConfirmation ожидает подтверждения транзакции (с простым polling‑механизмом).
// Finalized всегда засчитывается; confirmed: если запрошен не finalized.
func (c *Client) WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(c.confirmTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("%w after %s: %s", ErrConfirmationTimeout, c.confirmTimeout, signature)
		case <-ticker.C:
			statuses, err := c.GetSignatureStatuses(ctx, signature)
			if err != nil {
				c.logger.Warn("Error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return &TransactionFailedError{Signature: signature, Reason: status.Err}
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed && commitment != rpc.CommitmentFinalized {
				return nil
			}
		}
	}
}

// GetBalance получает баланс аккаунта.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	result, err := c.rpc.GetBalance(ctx, pubkey, commitment)
	if err != nil {
		c.logger.Error("GetBalance error", zap.Error(err))
		return 0, err
	}
	return result.Value, nil
}

// GetAccountDataInto получает данные аккаунта и декодирует их в указанную структуру.
func (c *Client) GetAccountDataInto(ctx context.Context, pubkey solana.PublicKey, dst interface{}) error {
	err := c.rpc.GetAccountDataInto(ctx, pubkey, dst)
	if err != nil {
		c.logger.Debug("GetAccountDataInto error",
			zap.String("pubkey", pubkey.String()),
			zap.Error(err))
		return err
	}
	return nil
}

// GetMintInfo читает SPL-минт: supply, decimals и обе authority.
func (c *Client) GetMintInfo(ctx context.Context, mint solana.PublicKey) (*token.Mint, error) {
	var mintInfo token.Mint
	if err := c.GetAccountDataInto(ctx, mint, &mintInfo); err != nil {
		if IsAccountNotFoundError(err) {
			return nil, fmt.Errorf("mint %s: %w", mint, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get mint info: %w", err)
	}
	return &mintInfo, nil
}

// GetLargestHolders возвращает до 20 крупнейших токен-аккаунтов (лимит RPC).
func (c *Client) GetLargestHolders(ctx context.Context, mint solana.PublicKey) ([]blockchain.TokenHolder, error) {
	result, err := c.rpc.GetTokenLargestAccounts(ctx, mint, rpc.CommitmentConfirmed)
	if err != nil {
		c.logger.Debug("GetTokenLargestAccounts error",
			zap.String("mint", mint.String()),
			zap.Error(err))
		return nil, err
	}

	holders := make([]blockchain.TokenHolder, 0, len(result.Value))
	for _, account := range result.Value {
		if account == nil {
			continue
		}
		amount, err := strconv.ParseUint(account.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid holder amount %q: %w", account.Amount, err)
		}
		holders = append(holders, blockchain.TokenHolder{Address: account.Address, Amount: amount})
	}
	return holders, nil
}

// Гарантируем, что Client реализует интерфейс blockchain.Client.
var _ blockchain.Client = (*Client)(nil)
