// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting of the assistant. Values come from the process
// environment (optionally seeded from a .env file).
type Config struct {
	RPCURL           string
	WalletPrivateKey string
	TelegramToken    string
	AuthorizedUsers  []int64

	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AITemperature float64

	PumpPortalURL    string
	PricePrimaryURL  string
	PriceFallbackURL string
	Pool             string

	BuyAmounts   []float64
	BuySlippage  float64
	SellSlippage float64
	PriorityFee  float64

	TakeProfitPercent float64
	StopLossPercent   float64
	MaxHoldTime       time.Duration
	MonitorInterval   time.Duration
	MaxPositionSol    float64
	MaxDailyLossSol   float64

	MinLiquidityUsd float64
	MinMarketCapUsd float64
	MaxRiskScore    int

	ConfirmTimeout time.Duration
	MetricsAddr    string
	LogFile        string
	DebugLogging   bool
}

const (
	DefaultAIBaseURL         = "https://api.openai.com/v1"
	DefaultAIModel           = "gpt-4o-mini"
	DefaultPumpPortalURL     = "https://pumpportal.fun/api/trade-local"
	DefaultPricePrimaryURL   = "https://api.dexscreener.com/latest/dex/tokens"
	DefaultPriceFallbackURL  = "https://api.jup.ag/price/v2"
	DefaultPool              = "auto"
	DefaultBuyAmounts        = "0.1,0.25,0.5,1"
	DefaultBuySlippage       = 15.0
	DefaultSellSlippage      = 25.0
	DefaultPriorityFee       = 0.0005
	DefaultTakeProfitPercent = 50.0
	DefaultStopLossPercent   = -20.0
	DefaultMaxHoldMinutes    = 60
	DefaultMonitorSeconds    = 5
	DefaultMaxPositionSol    = 1.0
	DefaultMaxDailyLossSol   = 2.0
	DefaultMinLiquidityUsd   = 5000.0
	DefaultMinMarketCapUsd   = 10000.0
	DefaultMaxRiskScore      = 5
	DefaultConfirmSeconds    = 60
	DefaultLogFile           = "pump-assistant.log"
)

var (
	ErrMissingRPCURL     = errors.New("SOLANA_RPC_URL is required")
	ErrMissingPrivateKey = errors.New("WALLET_PRIVATE_KEY is required")
	ErrMissingBotToken   = errors.New("TELEGRAM_BOT_TOKEN is required")
)

// Load reads .env (if present) and the process environment into a Config and
// validates it. A validation error is a fatal startup condition.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// отсутствующий .env допустим: переменные могут прийти из окружения
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	defaults := map[string]interface{}{
		"AI_BASE_URL":              DefaultAIBaseURL,
		"AI_MODEL":                 DefaultAIModel,
		"AI_TEMPERATURE":           0.3,
		"PUMPPORTAL_URL":           DefaultPumpPortalURL,
		"PRICE_PRIMARY_URL":        DefaultPricePrimaryURL,
		"PRICE_FALLBACK_URL":       DefaultPriceFallbackURL,
		"TRADE_POOL":               DefaultPool,
		"DEFAULT_BUY_AMOUNTS":      DefaultBuyAmounts,
		"BUY_SLIPPAGE":             DefaultBuySlippage,
		"SELL_SLIPPAGE":            DefaultSellSlippage,
		"PRIORITY_FEE":             DefaultPriorityFee,
		"TAKE_PROFIT_PERCENT":      DefaultTakeProfitPercent,
		"STOP_LOSS_PERCENT":        DefaultStopLossPercent,
		"MAX_HOLD_TIME_MINUTES":    DefaultMaxHoldMinutes,
		"MONITOR_INTERVAL_SECONDS": DefaultMonitorSeconds,
		"MAX_POSITION_SIZE_SOL":    DefaultMaxPositionSol,
		"MAX_DAILY_LOSS_SOL":       DefaultMaxDailyLossSol,
		"MIN_LIQUIDITY_USD":        DefaultMinLiquidityUsd,
		"MIN_MARKET_CAP_USD":       DefaultMinMarketCapUsd,
		"MAX_RISK_SCORE":           DefaultMaxRiskScore,
		"CONFIRM_TIMEOUT_SECONDS":  DefaultConfirmSeconds,
		"LOG_FILE":                 DefaultLogFile,
		"DEBUG_LOGGING":            false,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{
		RPCURL:            strings.TrimSpace(v.GetString("SOLANA_RPC_URL")),
		WalletPrivateKey:  strings.TrimSpace(v.GetString("WALLET_PRIVATE_KEY")),
		TelegramToken:     strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
		AIAPIKey:          v.GetString("AI_API_KEY"),
		AIBaseURL:         strings.TrimRight(v.GetString("AI_BASE_URL"), "/"),
		AIModel:           v.GetString("AI_MODEL"),
		AITemperature:     v.GetFloat64("AI_TEMPERATURE"),
		PumpPortalURL:     v.GetString("PUMPPORTAL_URL"),
		PricePrimaryURL:   strings.TrimRight(v.GetString("PRICE_PRIMARY_URL"), "/"),
		PriceFallbackURL:  strings.TrimRight(v.GetString("PRICE_FALLBACK_URL"), "/"),
		Pool:              v.GetString("TRADE_POOL"),
		BuySlippage:       v.GetFloat64("BUY_SLIPPAGE"),
		SellSlippage:      v.GetFloat64("SELL_SLIPPAGE"),
		PriorityFee:       v.GetFloat64("PRIORITY_FEE"),
		TakeProfitPercent: v.GetFloat64("TAKE_PROFIT_PERCENT"),
		StopLossPercent:   v.GetFloat64("STOP_LOSS_PERCENT"),
		MaxHoldTime:       time.Duration(v.GetInt("MAX_HOLD_TIME_MINUTES")) * time.Minute,
		MonitorInterval:   time.Duration(v.GetInt("MONITOR_INTERVAL_SECONDS")) * time.Second,
		MaxPositionSol:    v.GetFloat64("MAX_POSITION_SIZE_SOL"),
		MaxDailyLossSol:   v.GetFloat64("MAX_DAILY_LOSS_SOL"),
		MinLiquidityUsd:   v.GetFloat64("MIN_LIQUIDITY_USD"),
		MinMarketCapUsd:   v.GetFloat64("MIN_MARKET_CAP_USD"),
		MaxRiskScore:      v.GetInt("MAX_RISK_SCORE"),
		ConfirmTimeout:    time.Duration(v.GetInt("CONFIRM_TIMEOUT_SECONDS")) * time.Second,
		MetricsAddr:       v.GetString("METRICS_ADDR"),
		LogFile:           v.GetString("LOG_FILE"),
		DebugLogging:      v.GetBool("DEBUG_LOGGING"),
	}

	users, err := parseUserIDs(v.GetString("AUTHORIZED_USERS"))
	if err != nil {
		return nil, err
	}
	cfg.AuthorizedUsers = users

	amounts, err := parseAmounts(v.GetString("DEFAULT_BUY_AMOUNTS"))
	if err != nil {
		return nil, err
	}
	cfg.BuyAmounts = amounts

	return cfg, validateConfig(cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return ErrMissingRPCURL
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return fmt.Errorf("invalid SOLANA_RPC_URL: %w", err)
	}
	if cfg.WalletPrivateKey == "" {
		return ErrMissingPrivateKey
	}
	if cfg.TelegramToken == "" {
		return ErrMissingBotToken
	}
	for name, raw := range map[string]string{
		"PUMPPORTAL_URL":     cfg.PumpPortalURL,
		"PRICE_PRIMARY_URL":  cfg.PricePrimaryURL,
		"PRICE_FALLBACK_URL": cfg.PriceFallbackURL,
		"AI_BASE_URL":        cfg.AIBaseURL,
	} {
		if err := validateURLWithCache(raw, "http"); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.TakeProfitPercent <= 0 {
		return errors.New("TAKE_PROFIT_PERCENT must be positive")
	}
	if cfg.StopLossPercent >= 0 {
		return errors.New("STOP_LOSS_PERCENT must be negative")
	}
	if cfg.MonitorInterval <= 0 {
		return errors.New("invalid MONITOR_INTERVAL_SECONDS")
	}
	if cfg.MaxHoldTime < 0 {
		return errors.New("invalid MAX_HOLD_TIME_MINUTES")
	}
	if cfg.BuySlippage <= 0 || cfg.SellSlippage <= 0 {
		return errors.New("slippage must be positive")
	}
	if cfg.PriorityFee < 0 {
		return errors.New("invalid PRIORITY_FEE")
	}
	if cfg.MaxRiskScore < 0 || cfg.MaxRiskScore > 10 {
		return errors.New("MAX_RISK_SCORE must be within 0..10")
	}
	if cfg.MaxPositionSol <= 0 {
		return errors.New("invalid MAX_POSITION_SIZE_SOL")
	}
	if cfg.ConfirmTimeout <= 0 {
		return errors.New("invalid CONFIRM_TIMEOUT_SECONDS")
	}
	if len(cfg.BuyAmounts) == 0 {
		return errors.New("DEFAULT_BUY_AMOUNTS is empty")
	}
	return nil
}

// AIEnabled reports whether model inference is configured.
func (c *Config) AIEnabled() bool {
	return c.AIAPIKey != ""
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		id, err := strconv.ParseInt(clean, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTHORIZED_USERS entry %q: %w", clean, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseAmounts(raw string) ([]float64, error) {
	var amounts []float64
	for _, part := range strings.Split(raw, ",") {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		amount, err := strconv.ParseFloat(clean, 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("invalid DEFAULT_BUY_AMOUNTS entry %q", clean)
		}
		amounts = append(amounts, amount)
	}
	return amounts, nil
}
