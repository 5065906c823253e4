// internal/risk/guard.go
package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rovshanmuradov/pump-assistant/internal/monitor"
	"go.uber.org/zap"
)

var (
	ErrPositionLimit  = errors.New("position size exceeds limit")
	ErrDailyLossLimit = errors.New("max daily loss reached")
)

// Limits: ограничения сессии. Нулевое значение отключает проверку.
type Limits struct {
	MaxPositionSol  float64
	MaxDailyLossSol float64
}

// Guard проверяет новые покупки против лимитов и учитывает реализованные
// убытки за текущие сутки (UTC).
type Guard struct {
	mu        sync.Mutex
	limits    Limits
	day       time.Time
	dailyLoss float64
	logger    *zap.Logger
	now       func() time.Time
}

func NewGuard(limits Limits, logger *zap.Logger) *Guard {
	g := &Guard{
		limits: limits,
		logger: logger.Named("risk"),
		now:    time.Now,
	}
	g.day = dayOf(g.now())
	return g
}

// CanOpen returns nil when a buy of amountSol is allowed.
func (g *Guard) CanOpen(amountSol float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()

	if g.limits.MaxPositionSol > 0 && amountSol > g.limits.MaxPositionSol {
		return fmt.Errorf("%w: %.4g SOL > %.4g SOL", ErrPositionLimit, amountSol, g.limits.MaxPositionSol)
	}
	if g.limits.MaxDailyLossSol > 0 && g.dailyLoss >= g.limits.MaxDailyLossSol {
		return fmt.Errorf("%w: %.4g SOL", ErrDailyLossLimit, g.dailyLoss)
	}
	return nil
}

// RecordExit учитывает результат закрытой позиции.
func (g *Guard) RecordExit(amountSol, profitPercent float64) {
	if profitPercent >= 0 || amountSol <= 0 {
		return
	}
	loss := amountSol * -profitPercent / 100

	g.mu.Lock()
	g.rollLocked()
	g.dailyLoss += loss
	total := g.dailyLoss
	g.mu.Unlock()

	g.logger.Info("Realized loss recorded",
		zap.Float64("loss_sol", loss),
		zap.Float64("daily_loss_sol", total),
		zap.Float64("limit_sol", g.limits.MaxDailyLossSol))
}

// DailyLoss returns realized losses for the current UTC day.
func (g *Guard) DailyLoss() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollLocked()
	return g.dailyLoss
}

// OnExit реализует monitor.ExitNotifier.
func (g *Guard) OnExit(result monitor.ExitResult) {
	g.RecordExit(result.AmountSol, result.ProfitPercent)
}

func (g *Guard) OnExitFailed(monitor.Position, error) {}

func (g *Guard) rollLocked() {
	today := dayOf(g.now())
	if today.After(g.day) {
		g.day = today
		g.dailyLoss = 0
	}
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
