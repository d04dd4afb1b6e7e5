package telegram

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*BotNotifier)(nil)

// BotNotifier adapts the bot's outbound send to the core's Notifier port.
// User IDs in the ledger are chat IDs rendered as strings.
//
// The bot itself depends on the use cases and the use cases depend on the
// notifier, so the transport is bound late via SetBot during startup.
type BotNotifier struct {
	mu  sync.RWMutex
	bot adapter.TelegramBotAdapter
	log *zerolog.Logger
}

func NewBotNotifier(logger *zerolog.Logger) *BotNotifier {
	l := logger.With().Str("component", "BotNotifier").Logger()
	return &BotNotifier{log: &l}
}

func (n *BotNotifier) SetBot(bot adapter.TelegramBotAdapter) {
	n.mu.Lock()
	n.bot = bot
	n.mu.Unlock()
}

func (n *BotNotifier) NotifyUser(ctx context.Context, userID, message string) error {
	n.mu.RLock()
	bot := n.bot
	n.mu.RUnlock()
	if bot == nil {
		return domain.ErrOperationFailed
	}
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	return bot.SendMessage(ctx, chatID, message)
}
