// internal/blockchain/types.go
package blockchain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// TransactionOptions определяет опции для отправки транзакций.
type TransactionOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
	MaxRetries          uint
}

// TokenHolder: один крупный держатель токена (сырые единицы).
type TokenHolder struct {
	Address solana.PublicKey
	Amount  uint64
}

// Client определяет общий интерфейс для взаимодействия с блокчейном.
type Client interface {
	// Отправить транзакцию с опциями.
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts TransactionOptions) (solana.Signature, error)
	// Ожидание подтверждения транзакции.
	WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error
	// Получить баланс аккаунта.
	GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
	// Получить данные SPL-минта.
	GetMintInfo(ctx context.Context, mint solana.PublicKey) (*token.Mint, error)
	// Получить крупнейших держателей токена.
	GetLargestHolders(ctx context.Context, mint solana.PublicKey) ([]TokenHolder, error)
}
