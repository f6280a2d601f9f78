package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marketvision/cardgenbot/internal/models"
)

// enterAnalyzeCTR opens the analysis flow: the next photo from this user is
// analyzed, anything else gets a reminder.
func (b *Bot) enterAnalyzeCTR(ctx context.Context, chatID int64, user *models.User) {
	if err := b.states.Set(ctx, user.ID, models.FeatureAnalyzeCTR, models.StepAwaitingImage, models.StepData{}); err != nil {
		b.log.Error("set state", "err", err, "user_id", user.ID)
		b.sendText(chatID, msgGenericFailure)
		return
	}
	b.sendMarkdown(chatID, fmt.Sprintf(msgAnalyzeIntro, b.ledger.Cost(models.FeatureAnalyzeCTR), user.Balance))
}

// handleAnalyzePhoto runs the critique on a received product-card photo. The
// state is cleared regardless of outcome; a successful analysis stores the
// photo reference and the recommendations for the improvement follow-up.
func (b *Bot) handleAnalyzePhoto(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	fileID := largestPhotoID(msg.Photo)
	b.clearState(ctx, user.ID)

	b.ledger.LogUsage(ctx, models.UsageEntry{
		UserID:      user.ID,
		Feature:     models.FeatureAnalyzeCTR,
		MessageType: models.MessageUserImage,
		ImageCount:  1,
		Success:     true,
	})

	image, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.reportError(ctx, msg.Chat.ID, user, models.FeatureAnalyzeCTR, err)
		return
	}

	progress := b.startProgress(ctx, msg.Chat.ID, msgProgressAnalyzing)
	result, err := b.analysis.Analyze(ctx, user, image)
	progress.stop()

	if err != nil {
		b.reportError(ctx, msg.Chat.ID, user, models.FeatureAnalyzeCTR, err)
		return
	}
	if result.Recommendations == "" {
		b.sendText(msg.Chat.ID, msgAnalysisFailed)
		return
	}

	b.sendLongMarkdown(msg.Chat.ID, fmt.Sprintf(msgAnalysisHeader, result.Recommendations))

	// Park the analyzed image and the critique so the improvement button can
	// pick them up later.
	if err := b.states.Set(ctx, user.ID, models.FeatureCTRImprovement, models.StepReady, models.StepData{
		ImageFileID:     fileID,
		Recommendations: result.Recommendations,
	}); err != nil {
		b.log.Error("set improvement state", "err", err, "user_id", user.ID)
		return
	}

	offer := tgbotapi.NewMessage(msg.Chat.ID, msgImproveOffer)
	offer.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Улучшить карточку", cbImproveCTR),
		),
	)
	if _, err := b.api.Send(offer); err != nil {
		b.log.Error("send improve offer", "err", err)
	}
}
