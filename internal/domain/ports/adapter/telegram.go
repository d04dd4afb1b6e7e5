package adapter

import "context"

// InlineButton is a transport-neutral description of one inline keyboard
// button. URL buttons open links; Data buttons send callback payloads.
type InlineButton struct {
	Text string
	URL  string
	Data string
}

// TelegramBotAdapter is the full bot surface: long polling plus outbound
// sends. The noop implementation stands in during dev and tests.
type TelegramBotAdapter interface {
	StartPolling(ctx context.Context) error
	StopPolling()
	SendMessage(ctx context.Context, tgID int64, text string) error
	SendButtons(ctx context.Context, tgID int64, text string, rows [][]InlineButton) error
}
