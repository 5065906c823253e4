// =============================
// File: internal/trade/executor.go
// =============================
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/pump-assistant/internal/blockchain"
	"github.com/rovshanmuradov/pump-assistant/internal/pumpportal"
	"github.com/rovshanmuradov/pump-assistant/internal/utils/logger"
	"github.com/rovshanmuradov/pump-assistant/internal/utils/metrics"
	"go.uber.org/zap"
)

// Этапы сделки для TradeError.
const (
	StageBuild   = "build"
	StageDecode  = "decode"
	StageSign    = "sign"
	StageSend    = "send"
	StageConfirm = "confirm"
)

const (
	sendMaxRetries        = 3
	defaultConfirmTimeout = 60 * time.Second
	fullPosition          = 100.0
)

var ErrInvalidAmount = errors.New("invalid trade amount")

// TradeError: единая обертка для любой ошибки сделки.
type TradeError struct {
	Action pumpportal.Action
	Mint   string
	Stage  string
	Err    error
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("%s %s failed at %s: %v", e.Action, e.Mint, e.Stage, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// TxBuilder отдает неподписанную сериализованную транзакцию.
type TxBuilder interface {
	BuildTransaction(ctx context.Context, req pumpportal.TradeRequest) ([]byte, error)
}

// Ledger: отправка и подтверждение транзакций.
type Ledger interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts blockchain.TransactionOptions) (solana.Signature, error)
	WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error
	GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
}

// Signer holds the trading key.
type Signer interface {
	Address() solana.PublicKey
	SignTransaction(tx *solana.Transaction) error
}

// Config задает параметры сделок.
type Config struct {
	Pool           string
	BuySlippage    float64
	SellSlippage   float64
	PriorityFee    float64
	ConfirmTimeout time.Duration
}

// Executor строит, подписывает, отправляет и подтверждает сделки.
type Executor struct {
	builder TxBuilder
	ledger  Ledger
	signer  Signer
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewExecutor(builder TxBuilder, ledger Ledger, signer Signer, cfg Config, log *zap.Logger, m *metrics.Collector) *Executor {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	return &Executor{
		builder: builder,
		ledger:  ledger,
		signer:  signer,
		cfg:     cfg,
		logger:  log.Named("trade"),
		metrics: m,
	}
}

// Address returns the trading wallet address.
func (e *Executor) Address() solana.PublicKey {
	return e.signer.Address()
}

// Balance returns the wallet SOL balance.
func (e *Executor) Balance(ctx context.Context) (float64, error) {
	lamports, err := e.ledger.GetBalance(ctx, e.signer.Address(), rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL), nil
}

// BuyToken покупает токен на amountSol SOL.
func (e *Executor) BuyToken(ctx context.Context, mint string, amountSol float64) (string, error) {
	if amountSol <= 0 {
		return "", &TradeError{Action: pumpportal.ActionBuy, Mint: mint, Stage: StageBuild, Err: ErrInvalidAmount}
	}
	req := pumpportal.NewBuyRequest(e.signer.Address().String(), mint, amountSol,
		e.cfg.BuySlippage, e.cfg.PriorityFee, e.cfg.Pool)
	return e.execute(ctx, req)
}

// SellToken продает percentage процентов баланса токена; 0 означает 100.
func (e *Executor) SellToken(ctx context.Context, mint string, percentage float64) (string, error) {
	if percentage == 0 {
		percentage = fullPosition
	}
	if percentage < 0 || percentage > fullPosition {
		return "", &TradeError{Action: pumpportal.ActionSell, Mint: mint, Stage: StageBuild, Err: ErrInvalidAmount}
	}
	req := pumpportal.NewSellRequest(e.signer.Address().String(), mint, percentage,
		e.cfg.SellSlippage, e.cfg.PriorityFee, e.cfg.Pool)
	return e.execute(ctx, req)
}

func (e *Executor) execute(ctx context.Context, req pumpportal.TradeRequest) (sig string, err error) {
	log := logger.WithOperation(e.logger, string(req.Action)).With(zap.String("mint", req.Mint))
	start := time.Now()
	defer func() {
		e.metrics.RecordTrade(string(req.Action), time.Since(start), err == nil)
	}()

	fail := func(stage string, cause error) (string, error) {
		log.Error("Trade failed", zap.String("stage", stage), zap.Error(cause))
		return "", &TradeError{Action: req.Action, Mint: req.Mint, Stage: stage, Err: cause}
	}

	raw, err := e.builder.BuildTransaction(ctx, req)
	if err != nil {
		return fail(StageBuild, err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return fail(StageDecode, err)
	}

	if err := e.signer.SignTransaction(tx); err != nil {
		return fail(StageSign, err)
	}

	signature, err := e.ledger.SendTransactionWithOpts(ctx, tx, blockchain.TransactionOptions{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentProcessed,
		MaxRetries:          sendMaxRetries,
	})
	if err != nil {
		return fail(StageSend, err)
	}
	log = log.With(zap.String("signature", signature.String()))
	log.Info("Transaction sent, waiting for confirmation")

	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()
	if err := e.ledger.WaitForTransactionConfirmation(confirmCtx, signature, rpc.CommitmentConfirmed); err != nil {
		return fail(StageConfirm, err)
	}

	log.Info("Trade confirmed", zap.Duration("elapsed", time.Since(start)))
	return signature.String(), nil
}
