// internal/monitor/position.go
package monitor

import "time"

// State: стадия жизненного цикла позиции.
type State string

const (
	StateOpen          State = "OPEN"
	StateMonitoring    State = "MONITORING"
	StateExitRequested State = "EXIT_REQUESTED"
	StateClosed        State = "CLOSED"
	// StateExitFailed: продажа не удалась MaxExitAttempts раз подряд,
	// опрос остановлен, позиция ждет ручного выхода.
	StateExitFailed State = "EXIT_FAILED"
)

// ExitReason: причина закрытия позиции.
type ExitReason string

const (
	ReasonTakeProfit  ExitReason = "take_profit"
	ReasonStopLoss    ExitReason = "stop_loss"
	ReasonMaxHoldTime ExitReason = "max_hold_time"
	ReasonManual      ExitReason = "manual"
)

// Position represents one open trade tracked for automatic exit.
// EntryPrice, EntryTime and AmountSol never change after creation.
type Position struct {
	TokenMint    string
	TokenSymbol  string
	EntryPrice   float64
	EntryTime    time.Time
	AmountSol    float64
	Active       bool
	State        State
	ExitAttempts int
}

// ProfitPercent считает PnL относительно цены входа.
func (p Position) ProfitPercent(currentPrice float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (currentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// ExitResult описывает подтвержденный выход.
type ExitResult struct {
	TokenMint     string
	TokenSymbol   string
	Reason        ExitReason
	Signature     string
	FinalPrice    float64
	ProfitPercent float64
	AmountSol     float64
	HeldFor       time.Duration
}

// thresholdEpsilon гасит ошибку округления float64 на границе порога:
// (1.2-1.0)/1.0*100 дает 19.999999999999996.
const thresholdEpsilon = 1e-9

// EvaluateExit возвращает первую сработавшую причину выхода в порядке
// приоритета: take-profit, stop-loss, max-hold. Без цены входа проверяется
// только время удержания. Нулевые пороги отключают соответствующее правило.
func EvaluateExit(entryPrice, currentPrice float64, held time.Duration, cfg Config) (ExitReason, bool) {
	if entryPrice > 0 && currentPrice > 0 {
		profit := (currentPrice - entryPrice) / entryPrice * 100
		if cfg.TakeProfitPercent > 0 && profit >= cfg.TakeProfitPercent-thresholdEpsilon {
			return ReasonTakeProfit, true
		}
		if cfg.StopLossPercent < 0 && profit <= cfg.StopLossPercent+thresholdEpsilon {
			return ReasonStopLoss, true
		}
	}
	if cfg.MaxHoldTime > 0 && held >= cfg.MaxHoldTime {
		return ReasonMaxHoldTime, true
	}
	return "", false
}
