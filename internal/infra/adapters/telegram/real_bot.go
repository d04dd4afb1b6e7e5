// File: internal/infra/adapters/telegram/real_bot.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-crypto-subscription/internal/config"
	"telegram-crypto-subscription/internal/domain"
	"telegram-crypto-subscription/internal/domain/model"
	"telegram-crypto-subscription/internal/domain/ports/adapter"
	"telegram-crypto-subscription/internal/infra/metrics"
	red "telegram-crypto-subscription/internal/infra/redis"
	"telegram-crypto-subscription/internal/usecase"
)

var _ adapter.TelegramBotAdapter = (*RealBotAdapter)(nil)

// RealBotAdapter polls Telegram updates and drives the payment flow:
// pick a plan, pick a currency, pay to the deposit address, then /paid to
// trigger verification. The user ID on the wire is the chat ID as a string.
type RealBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	obligations usecase.ObligationUseCase
	subs        usecase.SubscriptionUseCase
	reconcile   usecase.ReconcileUseCase
	rateLimiter *red.RateLimiter
	log         *zerolog.Logger

	adminIDs      map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealBotAdapter(
	cfg *config.BotConfig,
	obligations usecase.ObligationUseCase,
	subs usecase.SubscriptionUseCase,
	reconcile usecase.ReconcileUseCase,
	rateLimiter *red.RateLimiter,
	logger *zerolog.Logger,
) (*RealBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	adminIDs := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		adminIDs[id] = struct{}{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	l := logger.With().Str("component", "TelegramBot").Logger()

	return &RealBotAdapter{
		bot:           bot,
		cfg:           cfg,
		obligations:   obligations,
		subs:          subs,
		reconcile:     reconcile,
		rateLimiter:   rateLimiter,
		log:           &l,
		adminIDs:      adminIDs,
		updateWorkers: workers,
	}, nil
}

func (r *RealBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	dispatchUpdates(ctx, updates, r.updateWorkers, func(ctx context.Context, up tgbotapi.Update) {
		if err := r.handleUpdate(ctx, up); err != nil {
			r.log.Warn().Err(err).Msg("update handling failed")
		}
	})
	return ctx.Err()
}

// dispatchUpdates fans updates out to a fixed worker pool. The buffer is
// never closed; workers drain via cancellation, so none can observe a
// spurious zero-value update from a closed channel during shutdown.
func dispatchUpdates(ctx context.Context, updates <-chan tgbotapi.Update, workers int, handle func(context.Context, tgbotapi.Update)) {
	buf := make(chan tgbotapi.Update, 100)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-buf:
					handle(ctx, up)
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case up, ok := <-updates:
			if !ok {
				wg.Wait()
				return
			}
			select {
			case buf <- up:
			case <-ctx.Done():
				wg.Wait()
				return
			}
		}
	}
}

func (r *RealBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	msg := tgbotapi.NewMessage(tgID, text)
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealBotAdapter) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				line = append(line, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				line = append(line, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				line = append(line, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, line)
	}

	msg := tgbotapi.NewMessage(tgID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	_, err := r.bot.Send(msg)
	return err
}

func (r *RealBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	chatID := update.Message.Chat.ID

	fields := strings.Fields(update.Message.Text)
	command := "message"
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		command = fields[0]
	}

	if r.rateLimiter != nil {
		allowed, err := r.rateLimiter.Allow(ctx, userCommandKey(chatID, command), 20, time.Minute)
		if err != nil {
			r.log.Warn().Err(err).Msg("rate limiter unavailable; allowing")
		} else if !allowed {
			return r.SendMessage(ctx, chatID, "Too many requests. Please slow down.")
		}
	}

	switch command {
	case "/start":
		return r.sendMainMenu(ctx, chatID, "Welcome! Pay with crypto to join the channel.")

	case "/plans", "/plan":
		return r.sendPlansMenu(ctx, chatID)

	case "/subscribe", "/buy":
		if len(fields) < 3 {
			return r.SendMessage(ctx, chatID, "Usage: /subscribe <plan> <currency>\nExample: /subscribe monthly eth")
		}
		return r.startSubscription(ctx, chatID, fields[1], fields[2])

	case "/paid", "/verify":
		txRef := ""
		if len(fields) >= 2 {
			txRef = strings.TrimSpace(fields[1])
		}
		return r.verifyPayment(ctx, chatID, txRef)

	case "/status", "/myplan":
		return r.sendStatus(ctx, chatID)

	case "/sweep":
		if _, ok := r.adminIDs[chatID]; !ok {
			return r.SendMessage(ctx, chatID, "Unknown command. Try /help.")
		}
		metrics.IncSweep("admin")
		counts := r.reconcile.SweepAll(ctx)
		return r.SendMessage(ctx, chatID, formatSweepResult(counts))

	case "/help":
		return r.SendMessage(ctx, chatID,
			"Commands:\n/plans - available plans\n/subscribe <plan> <currency> - get a payment quote\n/paid [tx hash] - verify your payment\n/status - your subscription")

	default:
		return r.SendMessage(ctx, chatID, "Unknown command. Try /help.")
	}
}

type cbHandler func(ctx context.Context, chatID int64, data string) error

func (r *RealBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"cmd:menu": func(ctx context.Context, id int64, _ string) error {
			return r.sendMainMenu(ctx, id, "Choose an action:")
		},
		"cmd:plans": func(ctx context.Context, id int64, _ string) error { return r.sendPlansMenu(ctx, id) },
		"cmd:status": func(ctx context.Context, id int64, _ string) error {
			return r.sendStatus(ctx, id)
		},
		"cmd:paid": func(ctx context.Context, id int64, _ string) error {
			return r.verifyPayment(ctx, id, "")
		},
	}
}

func (r *RealBotAdapter) cbPrefixRoutes() []struct {
	Prefix string
	Fn     cbHandler
} {
	return []struct {
		Prefix string
		Fn     cbHandler
	}{
		{
			Prefix: "plan:",
			Fn: func(ctx context.Context, id int64, data string) error {
				plan := strings.TrimPrefix(data, "plan:")
				return r.sendCurrencyMenu(ctx, id, plan)
			},
		},
		{
			Prefix: "pay:",
			Fn: func(ctx context.Context, id int64, data string) error {
				parts := strings.Split(strings.TrimPrefix(data, "pay:"), ":")
				if len(parts) != 2 {
					return r.SendMessage(ctx, id, "Malformed selection. Start over with /plans.")
				}
				return r.startSubscription(ctx, id, parts[0], parts[1])
			},
		},
	}
}

func (r *RealBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	var chatID int64
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	} else {
		chatID = query.From.ID
	}
	if chatID == 0 {
		return nil
	}

	data := strings.TrimSpace(query.Data)
	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, chatID, data)
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, chatID, data)
		}
	}
	return errors.New("unknown callback data")
}

func (r *RealBotAdapter) startSubscription(ctx context.Context, chatID int64, planRaw, currencyRaw string) error {
	plan, err := model.ParsePlan(planRaw)
	if err != nil {
		return r.SendMessage(ctx, chatID, "Unknown plan. See /plans.")
	}
	currency, err := model.ParseCurrency(currencyRaw)
	if err != nil {
		return r.SendMessage(ctx, chatID, "Unknown currency. Supported: ETH, SOL.")
	}

	o, err := r.obligations.Create(ctx, userIDFromChat(chatID), plan, currency)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCurrencyNotConfigured):
			return r.SendMessage(ctx, chatID, fmt.Sprintf("%s payments are temporarily unavailable.", currency))
		case errors.Is(err, domain.ErrObservationUnavailable):
			return r.SendMessage(ctx, chatID, "Price feed is unavailable right now. Please try again in a minute.")
		default:
			r.log.Error().Err(err).Int64("chat", chatID).Msg("obligation creation failed")
			return r.SendMessage(ctx, chatID, "Could not create your payment request. Please try again.")
		}
	}

	text := fmt.Sprintf(
		"Send at least %s %s to:\n\n%s\n\nThen tap the button below or use /paid <tx hash> to verify.",
		o.ExpectedAmount.String(), o.Currency, o.Recipient)
	rows := [][]adapter.InlineButton{
		{{Text: "✅ I've paid", Data: "cmd:paid"}},
		{{Text: "◀️ Menu", Data: "cmd:menu"}},
	}
	return r.SendButtons(ctx, chatID, text, rows)
}

func (r *RealBotAdapter) verifyPayment(ctx context.Context, chatID int64, txRef string) error {
	sub, err := r.reconcile.VerifyNow(ctx, userIDFromChat(chatID), txRef)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		metrics.IncVerifyRequest("rate_limited")
		return r.SendMessage(ctx, chatID, "Too many verification attempts. Please wait a minute.")
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncVerifyRequest("no_obligation")
		return r.SendMessage(ctx, chatID, "No pending payment found. Start with /plans.")
	case err != nil:
		r.log.Error().Err(err).Int64("chat", chatID).Msg("verification failed")
		metrics.IncVerifyRequest("error")
		return r.SendMessage(ctx, chatID, "Verification failed. Please try again later.")
	case sub == nil:
		metrics.IncVerifyRequest("pending")
		return r.SendMessage(ctx, chatID, "Payment not detected yet. Confirmations may still be pending; try again in a few minutes.")
	}

	metrics.IncVerifyRequest("granted")
	return r.SendMessage(ctx, chatID, "Payment confirmed! "+describeExpiry(sub))
}

func (r *RealBotAdapter) sendStatus(ctx context.Context, chatID int64) error {
	sub, err := r.subs.Effective(ctx, userIDFromChat(chatID))
	if err != nil {
		if errors.Is(err, domain.ErrNoEffectiveSubscription) {
			return r.SendMessage(ctx, chatID, "You have no active subscription. See /plans.")
		}
		return r.SendMessage(ctx, chatID, "Failed to get status.")
	}
	return r.SendMessage(ctx, chatID, describeExpiry(sub))
}

func (r *RealBotAdapter) sendMainMenu(ctx context.Context, chatID int64, intro string) error {
	rows := [][]adapter.InlineButton{
		{{Text: "🛒 Plans", Data: "cmd:plans"}},
		{{Text: "📊 Status", Data: "cmd:status"}},
		{{Text: "✅ I've paid", Data: "cmd:paid"}},
	}
	if strings.TrimSpace(intro) == "" {
		intro = "Choose an action:"
	}
	return r.SendButtons(ctx, chatID, intro, rows)
}

func (r *RealBotAdapter) sendPlansMenu(ctx context.Context, chatID int64) error {
	plans := model.AllPlans()
	rows := make([][]adapter.InlineButton, 0, len(plans)+1)
	for _, p := range plans {
		label := fmt.Sprintf("%s — $%s", p, p.PriceUSD().StringFixed(0))
		rows = append(rows, []adapter.InlineButton{{Text: label, Data: "plan:" + string(p)}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: "◀️ Menu", Data: "cmd:menu"}})
	return r.SendButtons(ctx, chatID, "Available plans (tap to pick):", rows)
}

func (r *RealBotAdapter) sendCurrencyMenu(ctx context.Context, chatID int64, plan string) error {
	currencies := model.AllCurrencies()
	rows := make([][]adapter.InlineButton, 0, len(currencies)+1)
	for _, c := range currencies {
		rows = append(rows, []adapter.InlineButton{{Text: string(c), Data: "pay:" + plan + ":" + string(c)}})
	}
	rows = append(rows, []adapter.InlineButton{{Text: "◀️ Menu", Data: "cmd:menu"}})
	return r.SendButtons(ctx, chatID, "Pay with:", rows)
}

func describeExpiry(sub *model.Subscription) string {
	if sub.ExpiresAt.Equal(model.LifetimeExpiry) {
		return fmt.Sprintf("Your %s subscription never expires.", sub.Plan)
	}
	return fmt.Sprintf("Your %s subscription is active until %s.", sub.Plan, sub.ExpiresAt.Format(time.RFC1123))
}

func formatSweepResult(counts map[model.Currency]int) string {
	if len(counts) == 0 {
		return "Sweep finished: no currencies configured."
	}
	parts := make([]string, 0, len(counts))
	total := 0
	for _, cur := range model.AllCurrencies() {
		n, ok := counts[cur]
		if !ok {
			continue
		}
		total += n
		parts = append(parts, fmt.Sprintf("%s: %d", cur, n))
	}
	return fmt.Sprintf("Sweep finished, %d settled (%s).", total, strings.Join(parts, ", "))
}

func userIDFromChat(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func userCommandKey(chatID int64, command string) string {
	return fmt.Sprintf("rate_limit:%d:%s", chatID, command)
}
