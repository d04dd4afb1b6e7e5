package telegram

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestDispatchUpdates(t *testing.T) {
	t.Run("handles updates and stops cleanly on cancellation", func(t *testing.T) {
		src := make(chan tgbotapi.Update, 8)
		handled := make(chan int, 16)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		go func() {
			dispatchUpdates(ctx, src, 3, func(_ context.Context, up tgbotapi.Update) {
				handled <- up.UpdateID
			})
			close(done)
		}()

		for i := 1; i <= 5; i++ {
			src <- tgbotapi.Update{UpdateID: i}
		}
		for i := 0; i < 5; i++ {
			select {
			case id := <-handled:
				if id == 0 {
					t.Fatal("zero-value update reached a worker")
				}
			case <-time.After(time.Second):
				t.Fatal("update was not handled")
			}
		}

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatch did not stop after cancellation")
		}

		// shutdown must not feed workers fabricated updates
		select {
		case id := <-handled:
			t.Fatalf("unexpected update %d handled during shutdown", id)
		default:
		}
	})

	t.Run("stops when the update source closes", func(t *testing.T) {
		src := make(chan tgbotapi.Update)
		close(src)

		done := make(chan struct{})
		go func() {
			dispatchUpdates(context.Background(), src, 2, func(context.Context, tgbotapi.Update) {
				t.Error("no update should be handled from a closed source")
			})
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatch did not stop when the source closed")
		}
	})
}
