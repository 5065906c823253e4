// internal/telegram/notifier.go
package telegram

import (
	"github.com/rovshanmuradov/pump-assistant/internal/monitor"
)

// OnExit рассылает автоматические выходы всем авторизованным чатам.
// Ручной выход уже подтвержден в чате, где была нажата кнопка.
func (b *Bot) OnExit(result monitor.ExitResult) {
	if result.Reason == monitor.ReasonManual {
		return
	}
	b.broadcast(formatExit(result))
}

// OnExitFailed сообщает, что позиция требует ручного выхода.
func (b *Bot) OnExitFailed(position monitor.Position, err error) {
	b.broadcast(formatExitFailed(position, err))
}

// broadcast: в личных чатах chat ID совпадает с user ID.
func (b *Bot) broadcast(text string) {
	for _, userID := range b.cfg.AuthorizedUsers {
		b.send(userID, text)
	}
}
