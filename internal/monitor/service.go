// internal/monitor/service.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rovshanmuradov/pump-assistant/internal/utils/metrics"
	"go.uber.org/zap"
)

const (
	DefaultInterval        = 5 * time.Second
	DefaultCheckTimeout    = 10 * time.Second
	DefaultExitTimeout     = 90 * time.Second
	DefaultMaxExitAttempts = 3

	fullPosition = 100.0
)

var (
	ErrNoActivePosition = errors.New("no active position")
	ErrExitInProgress   = errors.New("exit already in progress")
)

// PriceSource: текущая цена токена в той же валюте, что и цена входа.
type PriceSource interface {
	GetPrice(ctx context.Context, mint string) (float64, error)
}

// Seller закрывает позицию.
type Seller interface {
	SellToken(ctx context.Context, mint string, percentage float64) (string, error)
}

// Config задает правила выхода и параметры опроса.
type Config struct {
	TakeProfitPercent float64
	StopLossPercent   float64
	MaxHoldTime       time.Duration

	Interval        time.Duration
	CheckTimeout    time.Duration
	ExitTimeout     time.Duration
	MaxExitAttempts int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = DefaultCheckTimeout
	}
	if c.ExitTimeout <= 0 {
		c.ExitTimeout = DefaultExitTimeout
	}
	if c.MaxExitAttempts <= 0 {
		c.MaxExitAttempts = DefaultMaxExitAttempts
	}
}

// tracked: запись индекса: позиция и ее задача опроса.
type tracked struct {
	pos     Position
	cancel  context.CancelFunc
	exiting bool
	// lastPrice: последняя успешно полученная цена
	lastPrice float64
}

// Service владеет индексом позиций и ведет каждую к выходу.
type Service struct {
	mu        sync.Mutex
	positions map[string]*tracked
	wg        sync.WaitGroup

	cfg      Config
	prices   PriceSource
	seller   Seller
	notifier ExitNotifier
	logger   *zap.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewService creates a monitor. notifier and m may be nil.
func NewService(cfg Config, prices PriceSource, seller Seller, notifier ExitNotifier, logger *zap.Logger, m *metrics.Collector) *Service {
	cfg.applyDefaults()
	return &Service{
		positions: make(map[string]*tracked),
		cfg:       cfg,
		prices:    prices,
		seller:    seller,
		notifier:  notifier,
		logger:    logger.Named("monitor"),
		metrics:   m,
		now:       time.Now,
	}
}

// SetNotifier подключает получателя событий после создания сервиса.
func (s *Service) SetNotifier(n ExitNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// AddPosition регистрирует позицию и запускает ее опрос. Существующая
// запись для mint перезаписывается, а ее задача отменяется.
func (s *Service) AddPosition(mint, symbol string, entryPrice, amountSol float64) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &tracked{
		pos: Position{
			TokenMint:   mint,
			TokenSymbol: symbol,
			EntryPrice:  entryPrice,
			EntryTime:   s.now(),
			AmountSol:   amountSol,
			Active:      true,
			State:       StateOpen,
		},
		cancel: cancel,
	}

	s.mu.Lock()
	if prev, ok := s.positions[mint]; ok && prev.cancel != nil {
		prev.cancel()
	}
	s.positions[mint] = t
	s.wg.Add(1)
	go s.run(ctx, t)
	t.pos.State = StateMonitoring
	active := s.countActiveLocked()
	s.mu.Unlock()

	s.metrics.SetActivePositions(active)
	s.logger.Info("📊 Position added",
		zap.String("mint", mint),
		zap.String("symbol", symbol),
		zap.Float64("entry_price", entryPrice),
		zap.Float64("amount_sol", amountSol),
		zap.Duration("interval", s.cfg.Interval))
}

// run: задача опроса одной позиции. Следующий тик читается только после
// завершения текущей проверки, поэтому проверки одного mint не пересекаются.
func (s *Service) run(ctx context.Context, t *tracked) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.check(ctx, t); err != nil {
				s.logger.Warn("Automatic exit failed",
					zap.String("mint", t.pos.TokenMint),
					zap.Error(err))
			}
		}
	}
}

// checkPosition runs one evaluation cycle for mint.
func (s *Service) checkPosition(ctx context.Context, mint string) (*ExitResult, error) {
	s.mu.Lock()
	t := s.positions[mint]
	s.mu.Unlock()
	if t == nil {
		return nil, nil
	}
	return s.check(ctx, t)
}

func (s *Service) check(ctx context.Context, t *tracked) (*ExitResult, error) {
	s.mu.Lock()
	if !s.currentLocked(t) || t.pos.State != StateMonitoring {
		s.mu.Unlock()
		return nil, nil
	}
	pos := t.pos
	s.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	price, err := s.prices.GetPrice(checkCtx, pos.TokenMint)
	if err != nil || price <= 0 {
		// пропуск цикла: временный разрыв данных
		s.logger.Debug("Price unavailable, skipping cycle",
			zap.String("mint", pos.TokenMint),
			zap.Error(err))
		return nil, nil
	}

	s.mu.Lock()
	t.lastPrice = price
	s.mu.Unlock()

	held := s.now().Sub(pos.EntryTime)
	reason, ok := EvaluateExit(pos.EntryPrice, price, held, s.cfg)

	s.logger.Debug("Position checked",
		zap.String("mint", pos.TokenMint),
		zap.Float64("price", price),
		zap.Float64("profit_percent", pos.ProfitPercent(price)),
		zap.Duration("held", held))

	if !ok {
		return nil, nil
	}

	s.logger.Info("🎯 Exit condition triggered",
		zap.String("mint", pos.TokenMint),
		zap.String("reason", string(reason)),
		zap.Float64("price", price),
		zap.Float64("profit_percent", pos.ProfitPercent(price)))

	return s.exitPosition(ctx, t, reason, price)
}

// exitPosition продает позицию целиком. Active сбрасывается только после
// подтвержденной продажи. Отсутствующая или неактивная позиция: no-op.
func (s *Service) exitPosition(ctx context.Context, t *tracked, reason ExitReason, price float64) (*ExitResult, error) {
	s.mu.Lock()
	if !s.currentLocked(t) || !t.pos.Active {
		s.mu.Unlock()
		return nil, nil
	}
	if t.exiting {
		s.mu.Unlock()
		return nil, ErrExitInProgress
	}
	t.exiting = true
	prevState := t.pos.State
	t.pos.State = StateExitRequested
	pos := t.pos
	s.mu.Unlock()

	// продажа не прерывается остановкой опроса, только своим таймаутом
	sellCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ExitTimeout)
	defer cancel()

	signature, sellErr := s.seller.SellToken(sellCtx, pos.TokenMint, fullPosition)

	s.mu.Lock()
	t.exiting = false
	if sellErr != nil {
		t.pos.ExitAttempts++
		switch {
		case prevState == StateExitFailed:
			t.pos.State = StateExitFailed
		case reason != ReasonManual && t.pos.ExitAttempts >= s.cfg.MaxExitAttempts:
			t.pos.State = StateExitFailed
			t.cancel()
		default:
			t.pos.State = StateMonitoring
		}
		failed := t.pos
		notifier := s.notifier
		s.mu.Unlock()

		s.metrics.RecordExitFailure(string(reason))
		s.logger.Error("Exit sell failed",
			zap.String("mint", failed.TokenMint),
			zap.String("reason", string(reason)),
			zap.Int("attempts", failed.ExitAttempts),
			zap.String("state", string(failed.State)),
			zap.Error(sellErr))

		if failed.State == StateExitFailed && prevState != StateExitFailed && notifier != nil {
			notifier.OnExitFailed(failed, sellErr)
		}
		return nil, fmt.Errorf("exit %s (%s): %w", pos.TokenMint, reason, sellErr)
	}

	t.pos.Active = false
	t.pos.State = StateClosed
	t.cancel()
	closedAt := s.now()
	notifier := s.notifier
	active := s.countActiveLocked()
	s.mu.Unlock()

	result := &ExitResult{
		TokenMint:   pos.TokenMint,
		TokenSymbol: pos.TokenSymbol,
		Reason:      reason,
		Signature:   signature,
		FinalPrice:  price,
		AmountSol:   pos.AmountSol,
		HeldFor:     closedAt.Sub(pos.EntryTime),
	}
	if price > 0 {
		result.ProfitPercent = pos.ProfitPercent(price)
	}

	s.metrics.RecordExit(string(reason))
	s.metrics.SetActivePositions(active)
	s.logger.Info("✅ Position closed",
		zap.String("mint", result.TokenMint),
		zap.String("reason", string(reason)),
		zap.String("signature", signature),
		zap.Float64("profit_percent", result.ProfitPercent),
		zap.Duration("held", result.HeldFor))

	if notifier != nil {
		notifier.OnExit(*result)
	}
	return result, nil
}

// ManualExit закрывает позицию по запросу пользователя.
func (s *Service) ManualExit(ctx context.Context, mint string) (*ExitResult, error) {
	s.mu.Lock()
	t, ok := s.positions[mint]
	if !ok || !t.pos.Active {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w for %s", ErrNoActivePosition, mint)
	}
	lastPrice := t.lastPrice
	s.mu.Unlock()

	// цена нужна для отчета и учета дневного убытка
	priceCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	price, err := s.prices.GetPrice(priceCtx, mint)
	cancel()
	if err != nil || price <= 0 {
		s.logger.Warn("Price unavailable for manual exit, using last polled price",
			zap.String("mint", mint),
			zap.Float64("last_price", lastPrice),
			zap.Error(err))
		price = lastPrice
	}

	result, err := s.exitPosition(ctx, t, ReasonManual, price)
	if err != nil {
		return nil, fmt.Errorf("manual exit: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoActivePosition, mint)
	}
	return result, nil
}

// GetActivePositions возвращает копии активных позиций в произвольном порядке.
func (s *Service) GetActivePositions() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Position, 0, len(s.positions))
	for _, t := range s.positions {
		if t.pos.Active {
			out = append(out, t.pos)
		}
	}
	return out
}

func (s *Service) HasActivePosition(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.positions[mint]
	return ok && t.pos.Active
}

// position returns the record for mint, including closed ones.
func (s *Service) position(mint string) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.positions[mint]
	if !ok {
		return Position{}, false
	}
	return t.pos, true
}

// ExitTimeout is the upper bound of one exit sell.
func (s *Service) ExitTimeout() time.Duration {
	return s.cfg.ExitTimeout
}

// StopAll отменяет все задачи опроса и ждет их завершения. Позиции
// остаются активными.
func (s *Service) StopAll() {
	s.mu.Lock()
	for _, t := range s.positions {
		t.cancel()
	}
	count := len(s.positions)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("🛑 Monitoring stopped", zap.Int("positions", count))
}

func (s *Service) currentLocked(t *tracked) bool {
	return s.positions[t.pos.TokenMint] == t
}

func (s *Service) countActiveLocked() int {
	n := 0
	for _, t := range s.positions {
		if t.pos.Active {
			n++
		}
	}
	return n
}
