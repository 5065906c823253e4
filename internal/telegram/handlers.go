// internal/telegram/handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rovshanmuradov/pump-assistant/internal/ai"
	"github.com/rovshanmuradov/pump-assistant/internal/monitor"
	"github.com/rovshanmuradov/pump-assistant/internal/utils/logger"
	"go.uber.org/zap"
)

const (
	callbackBuy  = "buy"
	callbackSell = "sell"

	analyzeTimeout = 45 * time.Second
	tradeTimeout   = 2 * time.Minute
	queryTimeout   = 15 * time.Second
)

var mintPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// IsMintAddress сообщает, похож ли текст на base58-адрес токена.
func IsMintAddress(text string) bool {
	return mintPattern.MatchString(text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.send(chatID, formatStart(b.cfg))
	case "help":
		b.send(chatID, formatHelp())
	case "wallet":
		b.handleWallet(ctx, chatID)
	case "positions":
		b.handlePositions(ctx, chatID)
	default:
		b.send(chatID, "Unknown command. Try /help")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if IsMintAddress(text) {
		b.handleAnalyze(ctx, msg.Chat.ID, text)
		return
	}
	b.send(msg.Chat.ID, "Send a token mint address to analyze it, or /help for commands.")
}

func (b *Bot) handleWallet(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	address := b.deps.Trader.Address().String()
	balance, err := b.deps.Trader.Balance(ctx)
	if err != nil {
		b.logger.Error("Failed to get balance", zap.Error(err))
		b.send(chatID, fmt.Sprintf("👛 Wallet: %s\n⚠️ Balance unavailable: %v", address, err))
		return
	}
	b.send(chatID, fmt.Sprintf("👛 Wallet: %s\n💰 Balance: %.4f SOL\n📉 Realized loss today: %.4f SOL",
		address, balance, b.deps.Risk.DailyLoss()))
}

func (b *Bot) handlePositions(ctx context.Context, chatID int64) {
	positions := b.deps.Monitor.GetActivePositions()
	if len(positions) == 0 {
		b.send(chatID, "📭 No open positions")
		return
	}

	now := time.Now()
	var rows [][]tgbotapi.InlineKeyboardButton
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Open positions (%d)\n", len(positions))

	for _, p := range positions {
		priceCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		price, err := b.deps.Prices.GetPrice(priceCtx, p.TokenMint)
		cancel()
		if err != nil {
			price = 0
		}
		sb.WriteString("\n")
		sb.WriteString(formatPosition(p, price, now))

		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💰 Sell "+displaySymbol(p.TokenSymbol, p.TokenMint), callbackSell+":"+p.TokenMint),
		))
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

func (b *Bot) handleAnalyze(ctx context.Context, chatID int64, mint string) {
	log := logger.WithOperation(b.logger, "analyze").With(zap.String("mint", mint))
	b.send(chatID, "🔍 Analyzing "+mint+" ...")

	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	validation := b.deps.Validator.ValidateToken(ctx, mint)
	meta := ai.Metadata{Symbol: validation.Symbol, Name: validation.Name, PriceUsd: validation.PriceUsd}
	analysis := b.deps.Analyzer.AnalyzeToken(ctx, mint, meta, validation)

	b.rememberToken(mint, tokenInfo{symbol: validation.Symbol, priceUsd: validation.PriceUsd})
	log.Info("Token analyzed",
		zap.Int("risk_score", validation.RiskScore),
		zap.Bool("valid", validation.IsValid),
		zap.Bool("degraded", validation.Degraded),
		zap.String("recommendation", string(analysis.Recommendation)))

	msg := tgbotapi.NewMessage(chatID, formatAnalysis(mint, validation, analysis))
	if !validation.Degraded && len(b.cfg.BuyAmounts) > 0 {
		msg.ReplyMarkup = buyKeyboard(mint, b.cfg.BuyAmounts)
	}
	b.sendMessage(msg)
}

func buyKeyboard(mint string, amounts []float64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, amount := range amounts {
		label := "🟢 Buy " + formatAmount(amount) + " SOL"
		data := callbackBuy + ":" + mint + ":" + formatAmount(amount)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))
		if len(row) == 2 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(ctx context.Context, chatID int64, data string) {
	parts := strings.Split(data, ":")
	switch {
	case len(parts) == 3 && parts[0] == callbackBuy:
		amount, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || amount <= 0 || !IsMintAddress(parts[1]) {
			b.send(chatID, "⚠️ Invalid buy request")
			return
		}
		b.handleBuy(ctx, chatID, parts[1], amount)
	case len(parts) == 2 && parts[0] == callbackSell:
		b.handleSell(ctx, chatID, parts[1])
	default:
		b.logger.Warn("Unknown callback", zap.String("data", data))
	}
}

func (b *Bot) handleBuy(ctx context.Context, chatID int64, mint string, amount float64) {
	if !b.acquire(mint) {
		b.send(chatID, "⏳ A trade for this token is already in progress")
		return
	}
	defer b.release(mint)

	// проверка под блокировкой: повторное нажатие увидит уже открытую позицию
	if b.deps.Monitor.HasActivePosition(mint) {
		b.send(chatID, "⚠️ A position for this token is already open")
		return
	}
	if err := b.deps.Risk.CanOpen(amount); err != nil {
		b.send(chatID, "⛔ Trade blocked: "+err.Error())
		return
	}

	log := logger.WithOperation(b.logger, "buy").With(zap.String("mint", mint), zap.Float64("amount_sol", amount))
	b.send(chatID, fmt.Sprintf("⏳ Buying %s SOL of %s ...", formatAmount(amount), mint))

	tradeCtx, cancel := context.WithTimeout(ctx, tradeTimeout)
	defer cancel()

	signature, err := b.deps.Trader.BuyToken(tradeCtx, mint, amount)
	if err != nil {
		log.Error("Buy failed", zap.Error(err))
		b.send(chatID, "❌ Buy failed: "+err.Error())
		return
	}

	info := b.lookupToken(mint)
	entry := info.priceUsd
	priceCtx, cancelPrice := context.WithTimeout(ctx, queryTimeout)
	if price, err := b.deps.Prices.GetPrice(priceCtx, mint); err == nil && price > 0 {
		entry = price
	}
	cancelPrice()

	b.deps.Monitor.AddPosition(mint, info.symbol, entry, amount)
	log.Info("Position opened", zap.String("signature", signature), zap.Float64("entry_price", entry))

	b.send(chatID, formatBuy(mint, info.symbol, amount, entry, signature, b.cfg))
}

func (b *Bot) handleSell(ctx context.Context, chatID int64, mint string) {
	if !b.acquire(mint) {
		b.send(chatID, "⏳ A trade for this token is already in progress")
		return
	}
	defer b.release(mint)

	b.send(chatID, "⏳ Selling "+mint+" ...")

	tradeCtx, cancel := context.WithTimeout(ctx, tradeTimeout)
	defer cancel()

	result, err := b.deps.Monitor.ManualExit(tradeCtx, mint)
	switch {
	case errors.Is(err, monitor.ErrNoActivePosition):
		b.send(chatID, "📭 No active position for this token")
	case errors.Is(err, monitor.ErrExitInProgress):
		b.send(chatID, "⏳ Exit already in progress")
	case err != nil:
		b.logger.Error("Manual sell failed", zap.String("mint", mint), zap.Error(err))
		b.send(chatID, "❌ Sell failed: "+err.Error())
	default:
		b.send(chatID, formatExit(*result))
	}
}
