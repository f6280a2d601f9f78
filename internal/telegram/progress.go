package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// progressTask is the cosmetic typing indicator shown while a long external
// call is in flight. It carries no functional contract: every transport error
// inside the loop is ignored, and stop() always cleans up the trailing
// message.
type progressTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (b *Bot) startProgress(ctx context.Context, chatID int64, text string) *progressTask {
	ctx, cancel := context.WithCancel(ctx)
	task := &progressTask{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(task.done)

		sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text+"…"))
		if err != nil {
			<-ctx.Done()
			return
		}
		messageID := sent.MessageID
		defer func() {
			// Best effort: the chat should not keep a stale spinner.
			_, _ = b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		}()

		frames := []string{"…", "⏳", "⌛", "✨"}
		ticker := time.NewTicker(900 * time.Millisecond)
		defer ticker.Stop()

		for i := 1; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				edit := tgbotapi.NewEditMessageText(chatID, messageID, text+" "+frames[i%len(frames)])
				if _, err := b.api.Send(edit); err != nil {
					return
				}
			}
		}
	}()

	return task
}

// stop cancels the animation and waits for its cleanup to finish.
func (t *progressTask) stop() {
	t.cancel()
	<-t.done
}
