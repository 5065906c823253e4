package risk

import (
	"testing"
	"time"

	"github.com/rovshanmuradov/pump-assistant/internal/monitor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestGuard(t *testing.T, limits Limits, now *time.Time) *Guard {
	g := NewGuard(limits, zaptest.NewLogger(t))
	g.now = func() time.Time { return *now }
	g.day = dayOf(*now)
	return g
}

func TestCanOpen_PositionLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := newTestGuard(t, Limits{MaxPositionSol: 1, MaxDailyLossSol: 2}, &now)

	assert.NoError(t, g.CanOpen(1))
	assert.ErrorIs(t, g.CanOpen(1.5), ErrPositionLimit)
}

func TestDailyLoss_BlocksAndResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	g := newTestGuard(t, Limits{MaxPositionSol: 1, MaxDailyLossSol: 0.5}, &now)

	g.OnExit(monitor.ExitResult{AmountSol: 1, ProfitPercent: -25})
	assert.InDelta(t, 0.25, g.DailyLoss(), 1e-9)
	assert.NoError(t, g.CanOpen(0.1))

	// profits do not offset losses
	g.RecordExit(1, 80)
	g.RecordExit(1, -25)
	assert.InDelta(t, 0.5, g.DailyLoss(), 1e-9)
	assert.ErrorIs(t, g.CanOpen(0.1), ErrDailyLossLimit)

	now = now.Add(3 * time.Hour) // next UTC day
	assert.Zero(t, g.DailyLoss())
	assert.NoError(t, g.CanOpen(0.1))
}

func TestZeroLimitsDisableChecks(t *testing.T) {
	now := time.Now()
	g := newTestGuard(t, Limits{}, &now)
	g.RecordExit(100, -100)
	assert.NoError(t, g.CanOpen(1000))
}
