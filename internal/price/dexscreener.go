// =============================
// File: internal/price/dexscreener.go
// =============================
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultHTTPTimeout = 10 * time.Second

var ErrNoPairs = errors.New("no trading pairs found for token")

// MarketData: сводка по самой ликвидной паре токена.
type MarketData struct {
	PriceUsd     float64
	LiquidityUsd float64
	MarketCap    float64
	Symbol       string
	Name         string
}

type dexScreenerResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd  string `json:"priceUsd"`
	Liquidity *struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	Fdv       float64 `json:"fdv"`
}

// DexScreener: основной источник цены и рыночных данных.
type DexScreener struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDexScreener: baseURL вида https://api.dexscreener.com/latest/dex/tokens.
func NewDexScreener(baseURL string, logger *zap.Logger) *DexScreener {
	return &DexScreener{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.Named("dexscreener"),
	}
}

// Name returns the source label used in logs and metrics.
func (d *DexScreener) Name() string { return "dexscreener" }

// GetMarketData выбирает пару с наибольшей ликвидностью, в которой токен
// является базовым.
func (d *DexScreener) GetMarketData(ctx context.Context, mint string) (*MarketData, error) {
	var resp dexScreenerResponse
	if err := getJSON(ctx, d.httpClient, d.baseURL+"/"+mint, &resp); err != nil {
		return nil, err
	}

	var best *dexScreenerPair
	bestLiquidity := -1.0
	for i := range resp.Pairs {
		pair := &resp.Pairs[i]
		if !strings.EqualFold(pair.BaseToken.Address, mint) {
			continue
		}
		liq := 0.0
		if pair.Liquidity != nil {
			liq = pair.Liquidity.Usd
		}
		if liq > bestLiquidity {
			best, bestLiquidity = pair, liq
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPairs, mint)
	}

	priceUsd, err := strconv.ParseFloat(best.PriceUsd, 64)
	if err != nil && best.PriceUsd != "" {
		return nil, fmt.Errorf("invalid priceUsd %q: %w", best.PriceUsd, err)
	}

	marketCap := best.MarketCap
	if marketCap == 0 {
		marketCap = best.Fdv
	}

	d.logger.Debug("Market data fetched",
		zap.String("mint", mint),
		zap.String("pair", best.PairAddress),
		zap.String("dex", best.DexID),
		zap.Float64("price_usd", priceUsd),
		zap.Float64("liquidity_usd", bestLiquidity))

	return &MarketData{
		PriceUsd:     priceUsd,
		LiquidityUsd: bestLiquidity,
		MarketCap:    marketCap,
		Symbol:       best.BaseToken.Symbol,
		Name:         best.BaseToken.Name,
	}, nil
}

// GetPrice возвращает цену токена в USD.
func (d *DexScreener) GetPrice(ctx context.Context, mint string) (float64, error) {
	data, err := d.GetMarketData(ctx, mint)
	if err != nil {
		return 0, err
	}
	return data.PriceUsd, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
