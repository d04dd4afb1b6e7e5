package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-crypto-subscription/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs sends instead of talking to Telegram. Used in dev
// when bot.enabled is false.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "NoopBot").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) StartPolling(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *NoopBotAdapter) StopPolling() {}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	b.log.Info().Int64("chat", tgID).Str("text", text).Msg("noop send")
	return nil
}

func (b *NoopBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	b.log.Info().Int64("chat", tgID).Str("text", text).Int("rows", len(rows)).Msg("noop send buttons")
	return nil
}
