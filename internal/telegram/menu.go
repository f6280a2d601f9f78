package telegram

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marketvision/cardgenbot/internal/models"
)

// Callback identifiers. countPrefix carries the chosen variant count as a
// parameter, e.g. "count:4".
const (
	cbCreatePhoto = "create_photo"
	cbAnalyzeCTR  = "analyze_ctr"
	cbImproveCTR  = "improve_ctr"
	cbChangeCount = "change_count"
	countPrefix   = "count:"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		return
	}

	switch msg.Command() {
	case "start":
		b.sendMainMenu(msg.Chat.ID, user)
	case "create_photo":
		b.enterCreatePhoto(ctx, msg.Chat.ID, user)
	case "analyze_ctr":
		b.enterAnalyzeCTR(ctx, msg.Chat.ID, user)
	case "balance":
		b.sendText(msg.Chat.ID, fmt.Sprintf(msgBalance, user.Balance, b.ledger.Cost(models.FeatureCreatePhoto), b.ledger.Cost(models.FeatureAnalyzeCTR)))
	case "help":
		b.sendText(msg.Chat.ID, msgHelp)
	default:
		b.sendText(msg.Chat.ID, msgUnknownCommand)
	}
}

// sendMainMenu shows the banner with the welcome caption and the two feature
// buttons. A missing banner degrades to a plain text message.
func (b *Bot) sendMainMenu(chatID int64, user *models.User) {
	username := ""
	if user.Username != "" {
		username = fmt.Sprintf(" (@%s)", user.Username)
	}
	text := fmt.Sprintf(msgWelcome, user.FirstName, username, user.Balance, b.cfg.ImageModel)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎨 Создать фото", cbCreatePhoto),
			tgbotapi.NewInlineKeyboardButtonData("📊 Анализ CTR", cbAnalyzeCTR),
		),
	)

	if banner, err := os.ReadFile(b.cfg.BannerPath); err == nil {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "menu_banner.png", Bytes: banner})
		photo.Caption = text
		photo.ReplyMarkup = keyboard
		if _, err := b.api.Send(photo); err == nil {
			return
		}
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send menu", "err", err)
	}
}

// handleCallback is the stateless dispatch table for button presses. Unknown
// identifiers are acknowledged and dropped.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("callback ack", "err", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	user, err := b.ensureUser(ctx, cb.From, chatID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		return
	}

	data := cb.Data
	switch {
	case data == cbCreatePhoto:
		b.logButton(ctx, user, models.FeatureCreatePhoto, data)
		b.enterCreatePhoto(ctx, chatID, user)
	case data == cbAnalyzeCTR:
		b.logButton(ctx, user, models.FeatureAnalyzeCTR, data)
		b.enterAnalyzeCTR(ctx, chatID, user)
	case data == cbImproveCTR:
		b.logButton(ctx, user, models.FeatureCTRImprovement, data)
		b.handleImproveCTR(ctx, chatID, user)
	case data == cbChangeCount:
		b.sendCountMenu(chatID)
	case strings.HasPrefix(data, countPrefix):
		b.handleCountSelection(ctx, chatID, user, strings.TrimPrefix(data, countPrefix))
	}
}

func (b *Bot) logButton(ctx context.Context, user *models.User, feature models.Feature, data string) {
	b.ledger.LogUsage(ctx, models.UsageEntry{
		UserID:      user.ID,
		Feature:     feature,
		MessageType: models.MessageButtonClick,
		Content:     data,
		Success:     true,
	})
}

func (b *Bot) sendCountMenu(chatID int64) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("1", countPrefix+"1"),
			tgbotapi.NewInlineKeyboardButtonData("2", countPrefix+"2"),
			tgbotapi.NewInlineKeyboardButtonData("4", countPrefix+"4"),
		),
	)
	msg := tgbotapi.NewMessage(chatID, msgCountPrompt)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send count menu", "err", err)
	}
}

func (b *Bot) handleCountSelection(ctx context.Context, chatID int64, user *models.User, raw string) {
	count, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	if err := b.users.SetPreferredImageCount(ctx, user.ID, count); err != nil {
		b.log.Error("set preferred image count", "err", err, "user_id", user.ID)
		return
	}
	user.PreferredImageCount = count
	b.sendText(chatID, fmt.Sprintf(msgCountSaved, count))
}
