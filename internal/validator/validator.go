// =============================
// File: internal/validator/validator.go
// =============================
package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/rovshanmuradov/pump-assistant/internal/blockchain"
	"github.com/rovshanmuradov/pump-assistant/internal/price"
	"github.com/rovshanmuradov/pump-assistant/internal/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Штрафы аддитивной модели риска.
const (
	PenaltyMintAuthority   = 3
	PenaltyFreezeAuthority = 2
	PenaltyLowLiquidity    = 2
	PenaltyLowMarketCap    = 1
	PenaltyTopHolder       = 2
	PenaltyFewHolders      = 1

	MaxScore = 10

	TopHolderLimitPercent = 50.0
	MinHolderCount        = 10

	DefaultTimeout = 15 * time.Second
)

// ChainReader: on-chain данные, нужные валидатору.
type ChainReader interface {
	GetMintInfo(ctx context.Context, mint solana.PublicKey) (*token.Mint, error)
	GetLargestHolders(ctx context.Context, mint solana.PublicKey) ([]blockchain.TokenHolder, error)
}

// MarketSource: рыночные данные токена.
type MarketSource interface {
	GetMarketData(ctx context.Context, mint string) (*price.MarketData, error)
}

// Config holds validation floors.
type Config struct {
	MinLiquidityUsd float64
	MinMarketCapUsd float64
	MaxRiskScore    int
	Timeout         time.Duration
}

// Result: итог проверки токена. Degraded отличает "источник недоступен"
// от "источник сообщил о высоком риске".
type Result struct {
	IsValid          bool
	RiskScore        int
	Liquidity        float64
	MarketCap        float64
	HolderCount      int
	TopHolderPercent float64
	CanMint          bool
	CanFreeze        bool
	Reasons          []string
	Degraded         bool

	Symbol   string
	Name     string
	PriceUsd float64
}

// Degraded строит максимально пессимистичный результат.
func Degraded(reason string) Result {
	return Result{
		IsValid:   false,
		RiskScore: MaxScore,
		CanMint:   true,
		CanFreeze: true,
		Reasons:   []string{reason},
		Degraded:  true,
	}
}

// Validator вычисляет риск токена по трем источникам.
type Validator struct {
	chain   ChainReader
	market  MarketSource
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

func New(chain ChainReader, market MarketSource, cfg Config, logger *zap.Logger, m *metrics.Collector) *Validator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Validator{
		chain:   chain,
		market:  market,
		cfg:     cfg,
		logger:  logger.Named("validator"),
		metrics: m,
	}
}

// ValidateToken never returns an error: any upstream failure yields a
// Degraded result.
func (v *Validator) ValidateToken(ctx context.Context, mint string) Result {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		v.metrics.RecordValidation("degraded")
		return Degraded(fmt.Sprintf("invalid mint address: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	var (
		mintInfo *token.Mint
		holders  []blockchain.TokenHolder
		market   *price.MarketData
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info, err := v.chain.GetMintInfo(gCtx, mintKey)
		if err != nil {
			return fmt.Errorf("mint account: %w", err)
		}
		mintInfo = info
		return nil
	})
	g.Go(func() error {
		list, err := v.chain.GetLargestHolders(gCtx, mintKey)
		if err != nil {
			return fmt.Errorf("largest holders: %w", err)
		}
		holders = list
		return nil
	})
	g.Go(func() error {
		data, err := v.market.GetMarketData(gCtx, mint)
		if err != nil {
			return fmt.Errorf("market data: %w", err)
		}
		market = data
		return nil
	})

	if err := g.Wait(); err != nil {
		v.logger.Warn("Validation degraded", zap.String("mint", mint), zap.Error(err))
		v.metrics.RecordValidation("degraded")
		return Degraded(fmt.Sprintf("upstream unavailable: %v", err))
	}

	result := Result{
		CanMint:   mintInfo.MintAuthority != nil,
		CanFreeze: mintInfo.FreezeAuthority != nil,
		Liquidity: market.LiquidityUsd,
		MarketCap: market.MarketCap,
		Symbol:    market.Symbol,
		Name:      market.Name,
		PriceUsd:  market.PriceUsd,
	}
	result.HolderCount, result.TopHolderPercent = holderStats(holders, mintInfo.Supply)

	Score(&result, v.cfg)

	outcome := "invalid"
	if result.IsValid {
		outcome = "valid"
	}
	v.metrics.RecordValidation(outcome)

	v.logger.Info("Token validated",
		zap.String("mint", mint),
		zap.String("symbol", result.Symbol),
		zap.Int("risk_score", result.RiskScore),
		zap.Bool("valid", result.IsValid))

	return result
}

// Score заполняет RiskScore, Reasons и IsValid по уже собранным сигналам.
func Score(r *Result, cfg Config) {
	score := 0
	var reasons []string

	if r.CanMint {
		score += PenaltyMintAuthority
		reasons = append(reasons, "Mint authority is active")
	}
	if r.CanFreeze {
		score += PenaltyFreezeAuthority
		reasons = append(reasons, "Freeze authority is active")
	}
	if r.Liquidity < cfg.MinLiquidityUsd {
		score += PenaltyLowLiquidity
		reasons = append(reasons, fmt.Sprintf("Liquidity $%.0f below minimum $%.0f", r.Liquidity, cfg.MinLiquidityUsd))
	}
	if r.MarketCap < cfg.MinMarketCapUsd {
		score += PenaltyLowMarketCap
		reasons = append(reasons, fmt.Sprintf("Market cap $%.0f below minimum $%.0f", r.MarketCap, cfg.MinMarketCapUsd))
	}
	if r.TopHolderPercent > TopHolderLimitPercent {
		score += PenaltyTopHolder
		reasons = append(reasons, fmt.Sprintf("Top holder owns %.1f%% of supply", r.TopHolderPercent))
	}
	if r.HolderCount < MinHolderCount {
		score += PenaltyFewHolders
		reasons = append(reasons, fmt.Sprintf("Only %d holders", r.HolderCount))
	}

	if score > MaxScore {
		score = MaxScore
	}

	r.RiskScore = score
	r.Reasons = reasons
	r.IsValid = score <= cfg.MaxRiskScore &&
		r.Liquidity >= cfg.MinLiquidityUsd &&
		r.MarketCap >= cfg.MinMarketCapUsd
}

// holderStats: RPC отдает не более 20 крупнейших счетов, поэтому число
// держателей: нижняя оценка.
func holderStats(holders []blockchain.TokenHolder, supply uint64) (int, float64) {
	count := 0
	var largest uint64
	for _, h := range holders {
		if h.Amount == 0 {
			continue
		}
		count++
		if h.Amount > largest {
			largest = h.Amount
		}
	}
	if supply == 0 {
		return count, 0
	}
	return count, float64(largest) / float64(supply) * 100
}
