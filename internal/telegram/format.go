// internal/telegram/format.go
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rovshanmuradov/pump-assistant/internal/ai"
	"github.com/rovshanmuradov/pump-assistant/internal/monitor"
	"github.com/rovshanmuradov/pump-assistant/internal/validator"
)

const explorerTxURL = "https://solscan.io/tx/"

func formatStart(cfg Config) string {
	return "👋 Pump.fun trading assistant\n\n" +
		"Send a token mint address and I will check its on-chain risk, ask the AI for an opinion " +
		"and offer buy buttons.\n\n" +
		fmt.Sprintf("Auto-exit: take profit +%.0f%%, stop loss %.0f%%, max hold %d min.\n\n",
			cfg.TakeProfitPercent, cfg.StopLossPercent, cfg.MaxHoldMinutes) +
		formatHelp()
}

func formatHelp() string {
	return "Commands:\n" +
		"/wallet - wallet address and SOL balance\n" +
		"/positions - open positions with PnL and sell buttons\n" +
		"/help - this message\n\n" +
		"Paste a mint address to analyze a token."
}

func formatAnalysis(mint string, v validator.Result, a ai.Analysis) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "🪙 %s", displaySymbol(v.Symbol, mint))
	if v.Name != "" {
		fmt.Fprintf(&sb, " (%s)", v.Name)
	}
	fmt.Fprintf(&sb, "\n%s\n\n", mint)

	if v.Degraded {
		sb.WriteString("⚠️ Validation data unavailable, treating token as maximum risk.\n")
	} else {
		if v.PriceUsd > 0 {
			fmt.Fprintf(&sb, "💵 Price: $%s\n", formatPrice(v.PriceUsd))
		}
		fmt.Fprintf(&sb, "💧 Liquidity: $%s\n", formatUsd(v.Liquidity))
		fmt.Fprintf(&sb, "🏦 Market cap: $%s\n", formatUsd(v.MarketCap))
		fmt.Fprintf(&sb, "👥 Holders: %d (top %.1f%%)\n", v.HolderCount, v.TopHolderPercent)
		fmt.Fprintf(&sb, "🔑 Mint authority: %s, freeze authority: %s\n", onOff(v.CanMint), onOff(v.CanFreeze))
	}
	fmt.Fprintf(&sb, "🎯 Risk score: %d/10 %s\n", v.RiskScore, validMark(v))

	fmt.Fprintf(&sb, "\n🤖 %s (confidence %d%%)", a.Recommendation, a.Confidence)
	if a.Degraded {
		sb.WriteString(" [rule-based]")
	}
	fmt.Fprintf(&sb, "\n%s\n", a.Summary)

	if len(a.KeyPoints) > 0 {
		sb.WriteString("\n")
		for _, p := range a.KeyPoints {
			fmt.Fprintf(&sb, "• %s\n", p)
		}
	}
	if !v.Degraded && !v.IsValid {
		sb.WriteString("\n⚠️ Token failed validation. Trade at your own risk.")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatPosition(p monitor.Position, price float64, now time.Time) string {
	held := now.Sub(p.EntryTime).Truncate(time.Second)
	line := fmt.Sprintf("%s | %s SOL | held %s", displaySymbol(p.TokenSymbol, p.TokenMint), formatAmount(p.AmountSol), held)
	switch {
	case price > 0 && p.EntryPrice > 0:
		line += fmt.Sprintf(" | PnL %+.2f%%", p.ProfitPercent(price))
	case price <= 0:
		line += " | price n/a"
	}
	if p.State == monitor.StateExitFailed {
		line += " | ⚠️ auto-exit failed"
	}
	return line
}

func formatBuy(mint, symbol string, amount, entry float64, signature string, cfg Config) string {
	text := fmt.Sprintf("✅ Bought %s for %s SOL\n%s%s\n",
		displaySymbol(symbol, mint), formatAmount(amount), explorerTxURL, signature)
	if entry > 0 {
		text += fmt.Sprintf("Entry price: $%s\n", formatPrice(entry))
		text += fmt.Sprintf("Monitoring: TP +%.0f%% / SL %.0f%% / max %d min", cfg.TakeProfitPercent, cfg.StopLossPercent, cfg.MaxHoldMinutes)
	} else {
		text += fmt.Sprintf("⚠️ Entry price unknown: only the %d min max hold exit applies", cfg.MaxHoldMinutes)
	}
	return text
}

func formatExit(r monitor.ExitResult) string {
	text := fmt.Sprintf("%s %s closed: %s\n", exitIcon(r), displaySymbol(r.TokenSymbol, r.TokenMint), reasonLabel(r.Reason))
	if r.FinalPrice > 0 {
		text += fmt.Sprintf("Price: $%s | PnL %+.2f%%\n", formatPrice(r.FinalPrice), r.ProfitPercent)
	}
	text += fmt.Sprintf("Held: %s\n%s%s", r.HeldFor.Truncate(time.Second), explorerTxURL, r.Signature)
	return text
}

func formatExitFailed(p monitor.Position, err error) string {
	return fmt.Sprintf("🚨 Auto-exit for %s failed %d times: %v\nAutomatic monitoring stopped. Use /positions to sell manually.",
		displaySymbol(p.TokenSymbol, p.TokenMint), p.ExitAttempts, err)
}

func reasonLabel(r monitor.ExitReason) string {
	switch r {
	case monitor.ReasonTakeProfit:
		return "take profit"
	case monitor.ReasonStopLoss:
		return "stop loss"
	case monitor.ReasonMaxHoldTime:
		return "max hold time"
	case monitor.ReasonManual:
		return "manual sell"
	}
	return string(r)
}

func exitIcon(r monitor.ExitResult) string {
	if r.ProfitPercent > 0 {
		return "🟢"
	}
	if r.ProfitPercent < 0 {
		return "🔴"
	}
	return "⚪"
}

func displaySymbol(symbol, mint string) string {
	if symbol != "" {
		return symbol
	}
	if len(mint) > 8 {
		return mint[:4] + "…" + mint[len(mint)-4:]
	}
	return mint
}

func validMark(v validator.Result) string {
	if v.IsValid {
		return "✅"
	}
	return "❌"
}

func onOff(active bool) string {
	if active {
		return "active"
	}
	return "revoked"
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v float64) string {
	if v >= 1 {
		return strconv.FormatFloat(v, 'f', 4, 64)
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func formatUsd(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%.2fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", v/1_000)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
