// internal/monitor/service_test.go
package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testMint = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

type fakePrices struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (f *fakePrices) set(price float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price, f.err = price, err
}

func (f *fakePrices) GetPrice(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, f.err
}

type fakeSeller struct {
	mu    sync.Mutex
	errs  []error
	calls []float64
}

func (f *fakeSeller) SellToken(_ context.Context, _ string, percentage float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, percentage)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "5igSig", nil
}

func (f *fakeSeller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mu     sync.Mutex
	exits  []ExitResult
	failed []Position
}

func (r *recordingNotifier) OnExit(res ExitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, res)
}

func (r *recordingNotifier) OnExitFailed(p Position, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, p)
}

func (r *recordingNotifier) exitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exits)
}

type fixture struct {
	svc      *Service
	prices   *fakePrices
	seller   *fakeSeller
	notifier *recordingNotifier
	now      time.Time
}

// newFixture uses an hour-long interval so only explicit checkPosition calls
// evaluate positions.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	f := &fixture{
		prices:   &fakePrices{},
		seller:   &fakeSeller{},
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(cfg, f.prices, f.seller, f.notifier, zaptest.NewLogger(t), nil)
	f.svc.now = func() time.Time { return f.now }
	t.Cleanup(f.svc.StopAll)
	return f
}

func defaultRules() Config {
	return Config{TakeProfitPercent: 20, StopLossPercent: -10, MaxHoldTime: time.Hour}
}

func TestEvaluateExit(t *testing.T) {
	cfg := defaultRules()
	tests := []struct {
		name   string
		entry  float64
		price  float64
		held   time.Duration
		want   ExitReason
		wantOK bool
	}{
		{"take profit", 1.0, 1.25, time.Minute, ReasonTakeProfit, true},
		{"take profit at threshold", 1.0, 1.2, time.Minute, ReasonTakeProfit, true},
		{"stop loss", 1.0, 0.85, time.Minute, ReasonStopLoss, true},
		{"stop loss at threshold", 1.0, 0.9, time.Minute, ReasonStopLoss, true},
		{"take profit at threshold on tiny prices", 0.001, 0.0012, time.Minute, ReasonTakeProfit, true},
		{"stop loss at threshold on tiny prices", 0.00003, 0.000027, time.Minute, ReasonStopLoss, true},
		{"just below take profit", 1.0, 1.1999, time.Minute, "", false},
		{"just above stop loss", 1.0, 0.9001, time.Minute, "", false},
		{"max hold", 1.0, 1.05, time.Hour, ReasonMaxHoldTime, true},
		{"take profit beats max hold", 1.0, 1.25, 2 * time.Hour, ReasonTakeProfit, true},
		{"stop loss beats max hold", 1.0, 0.5, 2 * time.Hour, ReasonStopLoss, true},
		{"inside band", 1.0, 1.1, time.Minute, "", false},
		{"unknown entry only checks time", 0, 5, time.Minute, "", false},
		{"unknown entry max hold", 0, 5, time.Hour, ReasonMaxHoldTime, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EvaluateExit(tt.entry, tt.price, tt.held, cfg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckPosition_TakeProfit(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "POP", 1.0, 0.5)
	f.prices.set(1.25, nil)

	res, err := f.svc.checkPosition(context.Background(), testMint)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, ReasonTakeProfit, res.Reason)
	assert.InDelta(t, 25.0, res.ProfitPercent, 1e-9)
	assert.Equal(t, 1.25, res.FinalPrice)
	assert.Equal(t, "5igSig", res.Signature)
	assert.Equal(t, []float64{100}, f.seller.calls)

	pos, ok := f.svc.position(testMint)
	require.True(t, ok)
	assert.False(t, pos.Active)
	assert.Equal(t, StateClosed, pos.State)
	assert.False(t, f.svc.HasActivePosition(testMint))
	assert.Equal(t, 1, f.notifier.exitCount())
}

func TestCheckPosition_StopLoss(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "POP", 1.0, 0.5)
	f.prices.set(0.85, nil)

	res, err := f.svc.checkPosition(context.Background(), testMint)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ReasonStopLoss, res.Reason)
	assert.InDelta(t, -15.0, res.ProfitPercent, 1e-9)
}

func TestCheckPosition_TakeProfitPriorityOverMaxHold(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "POP", 1.0, 0.5)
	f.now = f.now.Add(3 * time.Hour)
	f.prices.set(1.3, nil)

	res, err := f.svc.checkPosition(context.Background(), testMint)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ReasonTakeProfit, res.Reason)
	assert.Equal(t, 3*time.Hour, res.HeldFor)
}

func TestCheckPosition_NoPriceSkipsCycle(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "POP", 1.0, 0.5)
	// даже просроченная позиция не оценивается без цены
	f.now = f.now.Add(2 * time.Hour)

	for _, tc := range []struct {
		price float64
		err   error
	}{
		{0, nil},
		{0, errors.New("price unavailable")},
	} {
		f.prices.set(tc.price, tc.err)
		res, err := f.svc.checkPosition(context.Background(), testMint)
		require.NoError(t, err)
		assert.Nil(t, res)
	}

	assert.True(t, f.svc.HasActivePosition(testMint))
	assert.Zero(t, f.seller.callCount())
}

func TestManualExit_NoPosition(t *testing.T) {
	f := newFixture(t, defaultRules())

	res, err := f.svc.ManualExit(context.Background(), testMint)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoActivePosition)
	assert.Zero(t, f.seller.callCount())
	assert.Empty(t, f.svc.GetActivePositions())
	_, ok := f.svc.position(testMint)
	assert.False(t, ok)
}

func TestManualExit(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "POP", 2.0, 0.5)
	f.prices.set(2.2, nil)

	res, err := f.svc.ManualExit(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, ReasonManual, res.Reason)
	assert.InDelta(t, 10.0, res.ProfitPercent, 1e-9)

	// second manual exit sees no active position
	_, err = f.svc.ManualExit(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrNoActivePosition)
	assert.Equal(t, 1, f.seller.callCount())
}

func TestManualExit_FallsBackToLastPolledPrice(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "POP", 2.0, 0.5)

	f.prices.set(1.9, nil)
	res, err := f.svc.checkPosition(context.Background(), testMint)
	require.NoError(t, err)
	require.Nil(t, res)

	f.prices.set(0, errors.New("feed down"))
	res, err = f.svc.ManualExit(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, 1.9, res.FinalPrice)
	assert.InDelta(t, -5.0, res.ProfitPercent, 1e-9)
}

func TestManualExit_NoPriceEver(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "POP", 2.0, 0.5)
	f.prices.set(0, errors.New("feed down"))

	res, err := f.svc.ManualExit(context.Background(), testMint)
	require.NoError(t, err)
	assert.Zero(t, res.FinalPrice)
	assert.Zero(t, res.ProfitPercent)
}

func TestExitTimeoutDefault(t *testing.T) {
	f := newFixture(t, defaultRules())
	assert.Equal(t, DefaultExitTimeout, f.svc.ExitTimeout())
}

func TestClosedPositionNeverReactivates(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "POP", 1.0, 0.5)
	f.prices.set(1.5, nil)

	_, err := f.svc.checkPosition(context.Background(), testMint)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f.prices.set(0.1, nil)
		res, err := f.svc.checkPosition(context.Background(), testMint)
		require.NoError(t, err)
		assert.Nil(t, res)

		pos, ok := f.svc.position(testMint)
		require.True(t, ok, "closed positions stay in the index")
		assert.False(t, pos.Active)
		assert.Equal(t, StateClosed, pos.State)
	}
	assert.Equal(t, 1, f.seller.callCount())
}

func TestFailedExitKeepsPositionActive(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPercent: 20, StopLossPercent: -10, MaxExitAttempts: 3})
	sellErr := errors.New("slippage exceeded")
	f.seller.errs = []error{sellErr, sellErr, sellErr}
	f.svc.AddPosition(testMint, "POP", 1.0, 0.5)
	f.prices.set(0.5, nil)

	for attempt := 1; attempt <= 2; attempt++ {
		res, err := f.svc.checkPosition(context.Background(), testMint)
		assert.Nil(t, res)
		require.ErrorIs(t, err, sellErr)

		pos, _ := f.svc.position(testMint)
		assert.True(t, pos.Active)
		assert.Equal(t, StateMonitoring, pos.State)
		assert.Equal(t, attempt, pos.ExitAttempts)
	}

	_, err := f.svc.checkPosition(context.Background(), testMint)
	require.ErrorIs(t, err, sellErr)

	pos, _ := f.svc.position(testMint)
	assert.True(t, pos.Active)
	assert.Equal(t, StateExitFailed, pos.State)
	require.Len(t, f.notifier.failed, 1)
	assert.Equal(t, 3, f.notifier.failed[0].ExitAttempts)

	// polling no longer evaluates the position
	res, err := f.svc.checkPosition(context.Background(), testMint)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 3, f.seller.callCount())

	// manual exit still closes it
	res, err = f.svc.ManualExit(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, ReasonManual, res.Reason)
	assert.False(t, f.svc.HasActivePosition(testMint))
}

func TestAddPosition_Overwrites(t *testing.T) {
	f := newFixture(t, defaultRules())
	f.svc.AddPosition(testMint, "OLD", 1.0, 0.1)
	f.svc.AddPosition(testMint, "NEW", 2.0, 0.2)

	active := f.svc.GetActivePositions()
	require.Len(t, active, 1)
	assert.Equal(t, "NEW", active[0].TokenSymbol)
	assert.Equal(t, 2.0, active[0].EntryPrice)
	assert.Equal(t, StateMonitoring, active[0].State)
}

func TestPolling_ExitsAutomatically(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPercent: 20, StopLossPercent: -10, Interval: 10 * time.Millisecond})
	f.prices.set(1.0, nil)
	f.svc.AddPosition(testMint, "POP", 1.0, 0.5)

	f.prices.set(1.5, nil)
	assert.Eventually(t, func() bool {
		return !f.svc.HasActivePosition(testMint)
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.notifier.exitCount())
	assert.Equal(t, 1, f.seller.callCount())
}

func TestStopAll_FreezesPositions(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPercent: 20, StopLossPercent: -10, Interval: 10 * time.Millisecond})
	f.prices.set(1.0, nil)
	f.svc.AddPosition(testMint, "POP", 1.0, 0.5)

	f.svc.StopAll()
	f.prices.set(3.0, nil)
	time.Sleep(50 * time.Millisecond)

	assert.True(t, f.svc.HasActivePosition(testMint))
	assert.Zero(t, f.seller.callCount())
	assert.Len(t, f.svc.GetActivePositions(), 1)
}

type blockingSeller struct {
	release chan struct{}
	started chan struct{}
}

func (b *blockingSeller) SellToken(ctx context.Context, _ string, _ float64) (string, error) {
	close(b.started)
	select {
	case <-b.release:
		return "sig", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestManualExit_WhileExitInFlight(t *testing.T) {
	seller := &blockingSeller{release: make(chan struct{}), started: make(chan struct{})}
	prices := &fakePrices{price: 1.5}
	svc := NewService(Config{TakeProfitPercent: 20, StopLossPercent: -10, Interval: time.Hour},
		prices, seller, nil, zaptest.NewLogger(t), nil)
	t.Cleanup(svc.StopAll)
	svc.AddPosition(testMint, "POP", 1.0, 0.5)

	done := make(chan error, 1)
	go func() {
		_, err := svc.checkPosition(context.Background(), testMint)
		done <- err
	}()
	<-seller.started

	pos, _ := svc.position(testMint)
	assert.Equal(t, StateExitRequested, pos.State)
	assert.True(t, pos.Active)

	_, err := svc.ManualExit(context.Background(), testMint)
	assert.ErrorIs(t, err, ErrExitInProgress)

	close(seller.release)
	require.NoError(t, <-done)
	assert.False(t, svc.HasActivePosition(testMint))
}

func TestMultiNotifier(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	m := MultiNotifier{a, nil, b}
	m.OnExit(ExitResult{TokenMint: testMint})
	m.OnExitFailed(Position{TokenMint: testMint}, errors.New("x"))

	assert.Equal(t, 1, a.exitCount())
	assert.Equal(t, 1, b.exitCount())
	assert.Len(t, a.failed, 1)
}
