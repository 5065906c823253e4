// internal/telegram/bot.go
package telegram

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rovshanmuradov/pump-assistant/internal/ai"
	"github.com/rovshanmuradov/pump-assistant/internal/monitor"
	"github.com/rovshanmuradov/pump-assistant/internal/validator"
	"go.uber.org/zap"
)

const unauthorizedText = "⛔ Unauthorized"

// Sender: часть tgbotapi.BotAPI, которой пользуется бот.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, mint string) validator.Result
}

type TokenAnalyzer interface {
	AnalyzeToken(ctx context.Context, mint string, meta ai.Metadata, v validator.Result) ai.Analysis
}

type Trader interface {
	BuyToken(ctx context.Context, mint string, amountSol float64) (string, error)
	Address() solana.PublicKey
	Balance(ctx context.Context) (float64, error)
}

type PositionMonitor interface {
	AddPosition(mint, symbol string, entryPrice, amountSol float64)
	ManualExit(ctx context.Context, mint string) (*monitor.ExitResult, error)
	GetActivePositions() []monitor.Position
	HasActivePosition(mint string) bool
}

type PriceSource interface {
	GetPrice(ctx context.Context, mint string) (float64, error)
}

type RiskGuard interface {
	CanOpen(amountSol float64) error
	DailyLoss() float64
}

// Deps: компоненты, к которым обращается чат.
type Deps struct {
	Validator TokenValidator
	Analyzer  TokenAnalyzer
	Trader    Trader
	Monitor   PositionMonitor
	Prices    PriceSource
	Risk      RiskGuard
}

// Config: параметры чата.
type Config struct {
	AuthorizedUsers   []int64
	BuyAmounts        []float64
	TakeProfitPercent float64
	StopLossPercent   float64
	MaxHoldMinutes    int
}

// tokenInfo: последние данные анализа, нужны для символа и цены входа.
type tokenInfo struct {
	symbol   string
	priceUsd float64
}

// Bot обслуживает команды, анализ токенов и кнопки сделок.
type Bot struct {
	sender Sender
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	tokens   map[string]tokenInfo
	inflight map[string]bool

	wg sync.WaitGroup
}

func New(sender Sender, deps Deps, cfg Config, logger *zap.Logger) *Bot {
	return &Bot{
		sender:   sender,
		deps:     deps,
		cfg:      cfg,
		logger:   logger.Named("telegram"),
		tokens:   make(map[string]tokenInfo),
		inflight: make(map[string]bool),
	}
}

// Run обрабатывает обновления до отмены контекста или закрытия канала.
// Каждое обновление обрабатывается в своей горутине; Run дожидается их.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer b.wg.Wait()
	b.logger.Info("Telegram bot started", zap.Int("authorized_users", len(b.cfg.AuthorizedUsers)))

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// 1) Обычные сообщения
	if msg := update.Message; msg != nil {
		if msg.Chat == nil || msg.From == nil {
			return
		}
		if !b.isAuthorized(msg.From.ID) {
			b.logger.Warn("Unauthorized message", zap.Int64("user_id", msg.From.ID))
			b.send(msg.Chat.ID, unauthorizedText)
			return
		}

		if msg.IsCommand() {
			b.handleCommand(ctx, msg)
			return
		}
		b.handleText(ctx, msg)
		return
	}

	// 2) Inline-кнопки
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil || cb.From == nil {
			return
		}
		// снимаем "часики" с кнопки
		if _, err := b.sender.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.logger.Debug("Callback answer failed", zap.Error(err))
		}
		if !b.isAuthorized(cb.From.ID) {
			b.logger.Warn("Unauthorized callback", zap.Int64("user_id", cb.From.ID))
			b.send(cb.Message.Chat.ID, unauthorizedText)
			return
		}
		b.handleCallback(ctx, cb.Message.Chat.ID, cb.Data)
	}
}

// isAuthorized: пустой список не пускает никого.
func (b *Bot) isAuthorized(userID int64) bool {
	for _, id := range b.cfg.AuthorizedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) send(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) {
	msg.DisableWebPagePreview = true
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}

func (b *Bot) rememberToken(mint string, info tokenInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[mint] = info
}

func (b *Bot) lookupToken(mint string) tokenInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[mint]
}

// acquire не дает запустить две сделки по одному mint одновременно.
func (b *Bot) acquire(mint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight[mint] {
		return false
	}
	b.inflight[mint] = true
	return true
}

func (b *Bot) release(mint string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, mint)
}
