// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rovshanmuradov/pump-assistant/internal/ai"
	"github.com/rovshanmuradov/pump-assistant/internal/blockchain/solbc"
	"github.com/rovshanmuradov/pump-assistant/internal/config"
	"github.com/rovshanmuradov/pump-assistant/internal/monitor"
	"github.com/rovshanmuradov/pump-assistant/internal/price"
	"github.com/rovshanmuradov/pump-assistant/internal/pumpportal"
	"github.com/rovshanmuradov/pump-assistant/internal/risk"
	"github.com/rovshanmuradov/pump-assistant/internal/telegram"
	"github.com/rovshanmuradov/pump-assistant/internal/trade"
	"github.com/rovshanmuradov/pump-assistant/internal/utils/metrics"
	"github.com/rovshanmuradov/pump-assistant/internal/validator"
	"github.com/rovshanmuradov/pump-assistant/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	updatesTimeout = 30
	shutdownGrace  = 10 * time.Second
)

// Runner собирает все компоненты ассистента и управляет их жизненным циклом.
type Runner struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	wallet   *wallet.Wallet
	executor *trade.Executor
	monitor  *monitor.Service
	guard    *risk.Guard
	deps     telegram.Deps
}

// NewRunner: принимает cfg и logger, сетевых вызовов не делает.
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	w, err := wallet.NewWallet(cfg.WalletPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	m := metrics.NewCollector()
	chain := solbc.NewClient(cfg.RPCURL, logger, solbc.WithConfirmTimeout(cfg.ConfirmTimeout))
	portal := pumpportal.NewClient(cfg.PumpPortalURL, logger)

	dex := price.NewDexScreener(cfg.PricePrimaryURL, logger)
	feed := price.NewFeed(dex, price.NewJupiter(cfg.PriceFallbackURL, logger), logger, m)

	tokenValidator := validator.New(chain, dex, validator.Config{
		MinLiquidityUsd: cfg.MinLiquidityUsd,
		MinMarketCapUsd: cfg.MinMarketCapUsd,
		MaxRiskScore:    cfg.MaxRiskScore,
	}, logger, m)

	analyzer := ai.NewAnalyzer(ai.Config{
		APIKey:          cfg.AIAPIKey,
		BaseURL:         cfg.AIBaseURL,
		Model:           cfg.AIModel,
		Temperature:     cfg.AITemperature,
		MinLiquidityUsd: cfg.MinLiquidityUsd,
		MinMarketCapUsd: cfg.MinMarketCapUsd,
	}, logger)

	executor := trade.NewExecutor(portal, chain, w, trade.Config{
		Pool:           cfg.Pool,
		BuySlippage:    cfg.BuySlippage,
		SellSlippage:   cfg.SellSlippage,
		PriorityFee:    cfg.PriorityFee,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, logger, m)

	guard := risk.NewGuard(risk.Limits{
		MaxPositionSol:  cfg.MaxPositionSol,
		MaxDailyLossSol: cfg.MaxDailyLossSol,
	}, logger)

	// Уведомления подключаются в serve, когда появится чат.
	mon := monitor.NewService(monitor.Config{
		TakeProfitPercent: cfg.TakeProfitPercent,
		StopLossPercent:   cfg.StopLossPercent,
		MaxHoldTime:       cfg.MaxHoldTime,
		Interval:          cfg.MonitorInterval,
	}, feed, executor, guard, logger, m)

	return &Runner{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		wallet:   w,
		executor: executor,
		monitor:  mon,
		guard:    guard,
		deps: telegram.Deps{
			Validator: tokenValidator,
			Analyzer:  analyzer,
			Trader:    executor,
			Monitor:   mon,
			Prices:    feed,
			Risk:      guard,
		},
	}, nil
}

// Run подключается к Telegram и работает до SIGINT/SIGTERM или отмены ctx.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := tgbotapi.NewBotAPI(r.cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	r.logger.Info("🤖 Authorized on Telegram", zap.String("account", api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updatesTimeout
	updates := api.GetUpdatesChan(u)

	shutdown := NewShutdownHandler(r.logger, r.shutdownTimeout())
	shutdown.AddFunc("monitor", func() error {
		r.monitor.StopAll()
		return nil
	})
	shutdown.AddFunc("telegram", func() error {
		api.StopReceivingUpdates()
		return nil
	})

	runErr := r.serve(ctx, api, updates)
	if err := shutdown.Shutdown(context.Background()); err != nil {
		r.logger.Warn("Shutdown finished with errors", zap.Error(err))
	}
	// логгер сбрасывается последним и вне общего таймаута
	if err := r.syncLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
	}
	return runErr
}

// shutdownTimeout должен покрывать продажу, уже начатую монитором.
func (r *Runner) shutdownTimeout() time.Duration {
	timeout := r.monitor.ExitTimeout() + shutdownGrace
	if timeout < defaultShutdownTimeout {
		timeout = defaultShutdownTimeout
	}
	return timeout
}

// serve запускает чат и /metrics и блокируется до отмены ctx.
func (r *Runner) serve(ctx context.Context, sender telegram.Sender, updates tgbotapi.UpdatesChannel) error {
	chat := telegram.New(sender, r.deps, telegram.Config{
		AuthorizedUsers:   r.cfg.AuthorizedUsers,
		BuyAmounts:        r.cfg.BuyAmounts,
		TakeProfitPercent: r.cfg.TakeProfitPercent,
		StopLossPercent:   r.cfg.StopLossPercent,
		MaxHoldMinutes:    int(r.cfg.MaxHoldTime.Minutes()),
	}, r.logger)
	r.monitor.SetNotifier(monitor.MultiNotifier{chat, r.guard})

	if len(r.cfg.AuthorizedUsers) == 0 {
		r.logger.Warn("⚠️ AUTHORIZED_USERS is empty, every chat request will be rejected")
	}
	r.logStartup(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		chat.Run(gctx, updates)
		return nil
	})
	if r.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return r.metrics.Serve(gctx, r.cfg.MetricsAddr, r.logger)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("runner stopped: %w", err)
	}
	r.logger.Info("👋 Assistant stopped")
	return nil
}

func (r *Runner) logStartup(ctx context.Context) {
	fields := []zap.Field{
		zap.String("wallet", r.wallet.Address().String()),
		zap.Bool("ai_enabled", r.cfg.AIEnabled()),
		zap.Float64("take_profit_percent", r.cfg.TakeProfitPercent),
		zap.Float64("stop_loss_percent", r.cfg.StopLossPercent),
		zap.Duration("max_hold_time", r.cfg.MaxHoldTime),
	}

	balanceCtx, cancel := context.WithTimeout(ctx, r.cfg.ConfirmTimeout)
	defer cancel()
	if balance, err := r.executor.Balance(balanceCtx); err != nil {
		r.logger.Warn("Failed to fetch wallet balance", zap.Error(err))
	} else {
		fields = append(fields, zap.Float64("balance_sol", balance))
	}
	r.logger.Info("🚀 Pump.fun assistant started", fields...)
}

func (r *Runner) syncLogger() error {
	if err := r.logger.Sync(); err != nil {
		if !os.IsNotExist(err) &&
			err.Error() != "sync /dev/stdout: invalid argument" &&
			err.Error() != "sync /dev/stderr: inappropriate ioctl for device" {
			return err
		}
	}
	return nil
}
