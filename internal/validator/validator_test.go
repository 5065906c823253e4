package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/rovshanmuradov/pump-assistant/internal/blockchain"
	"github.com/rovshanmuradov/pump-assistant/internal/price"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

const testMint = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

var testCfg = Config{MinLiquidityUsd: 5000, MinMarketCapUsd: 10000, MaxRiskScore: 5}

type fakeChain struct {
	mint       *token.Mint
	mintErr    error
	holders    []blockchain.TokenHolder
	holdersErr error
}

func (f *fakeChain) GetMintInfo(context.Context, solana.PublicKey) (*token.Mint, error) {
	return f.mint, f.mintErr
}

func (f *fakeChain) GetLargestHolders(context.Context, solana.PublicKey) ([]blockchain.TokenHolder, error) {
	return f.holders, f.holdersErr
}

type fakeMarket struct {
	data *price.MarketData
	err  error
}

func (f *fakeMarket) GetMarketData(context.Context, string) (*price.MarketData, error) {
	return f.data, f.err
}

func spreadHolders(n int, each uint64) []blockchain.TokenHolder {
	out := make([]blockchain.TokenHolder, n)
	for i := range out {
		out[i] = blockchain.TokenHolder{Address: solana.NewWallet().PublicKey(), Amount: each}
	}
	return out
}

func healthyChain() *fakeChain {
	return &fakeChain{
		mint:    &token.Mint{Supply: 1_000_000, Decimals: 6, IsInitialized: true},
		holders: spreadHolders(20, 10_000),
	}
}

func healthyMarket() *fakeMarket {
	return &fakeMarket{data: &price.MarketData{PriceUsd: 0.002, LiquidityUsd: 40000, MarketCap: 200000, Symbol: "POP"}}
}

func TestValidateToken_Healthy(t *testing.T) {
	v := New(healthyChain(), healthyMarket(), testCfg, zaptest.NewLogger(t), nil)

	r := v.ValidateToken(context.Background(), testMint)

	assert.True(t, r.IsValid)
	assert.False(t, r.Degraded)
	assert.Equal(t, 0, r.RiskScore)
	assert.Equal(t, 20, r.HolderCount)
	assert.InDelta(t, 1.0, r.TopHolderPercent, 1e-9)
	assert.Equal(t, "POP", r.Symbol)
	assert.Empty(t, r.Reasons)
}

func TestValidateToken_AuthoritiesAndLiquidity(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	chain := healthyChain()
	chain.mint.MintAuthority = &authority
	chain.mint.FreezeAuthority = &authority
	market := healthyMarket()
	market.data.LiquidityUsd = 1000

	v := New(chain, market, testCfg, zaptest.NewLogger(t), nil)
	r := v.ValidateToken(context.Background(), testMint)

	assert.Equal(t, 3+2+2, r.RiskScore)
	assert.True(t, r.CanMint)
	assert.True(t, r.CanFreeze)
	assert.False(t, r.IsValid)
	assert.Len(t, r.Reasons, 3)
}

func TestValidateToken_UpstreamFailure(t *testing.T) {
	tests := []struct {
		name   string
		chain  *fakeChain
		market *fakeMarket
	}{
		{"mint account", &fakeChain{mintErr: errors.New("rpc down"), holders: spreadHolders(20, 1)}, healthyMarket()},
		{"holders", &fakeChain{mint: &token.Mint{Supply: 1}, holdersErr: errors.New("429")}, healthyMarket()},
		{"market", healthyChain(), &fakeMarket{err: price.ErrNoPairs}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(tt.chain, tt.market, testCfg, zaptest.NewLogger(t), nil)
			r := v.ValidateToken(context.Background(), testMint)

			assert.Equal(t, 10, r.RiskScore)
			assert.False(t, r.IsValid)
			assert.True(t, r.CanMint)
			assert.True(t, r.CanFreeze)
			assert.True(t, r.Degraded)
		})
	}
}

func TestValidateToken_InvalidMint(t *testing.T) {
	v := New(healthyChain(), healthyMarket(), testCfg, zaptest.NewLogger(t), nil)
	r := v.ValidateToken(context.Background(), "not-a-mint")
	assert.True(t, r.Degraded)
	assert.Equal(t, MaxScore, r.RiskScore)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		in        Result
		wantScore int
		wantValid bool
	}{
		{
			name:      "clean",
			in:        Result{Liquidity: 6000, MarketCap: 20000, HolderCount: 15, TopHolderPercent: 10},
			wantScore: 0,
			wantValid: true,
		},
		{
			name:      "low market cap only",
			in:        Result{Liquidity: 6000, MarketCap: 100, HolderCount: 15},
			wantScore: 1,
			wantValid: false,
		},
		{
			name:      "concentrated and thin holders",
			in:        Result{Liquidity: 6000, MarketCap: 20000, HolderCount: 3, TopHolderPercent: 80},
			wantScore: 3,
			wantValid: true,
		},
		{
			name:      "everything wrong caps at ten",
			in:        Result{CanMint: true, CanFreeze: true, HolderCount: 1, TopHolderPercent: 99},
			wantScore: 10,
			wantValid: false,
		},
		{
			name:      "score at max risk",
			in:        Result{CanMint: true, CanFreeze: true, Liquidity: 6000, MarketCap: 20000, HolderCount: 15},
			wantScore: 5,
			wantValid: true,
		},
		{
			name:      "exactly fifty percent is not penalized",
			in:        Result{Liquidity: 6000, MarketCap: 20000, HolderCount: 10, TopHolderPercent: 50},
			wantScore: 0,
			wantValid: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.in
			Score(&r, testCfg)
			assert.Equal(t, tt.wantScore, r.RiskScore)
			assert.Equal(t, tt.wantValid, r.IsValid)
		})
	}
}
