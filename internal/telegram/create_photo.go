package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marketvision/cardgenbot/internal/models"
	"github.com/marketvision/cardgenbot/internal/service"
)

// enterCreatePhoto opens the generation flow: the next text message or
// captioned photo/album from this user is consumed as the request.
func (b *Bot) enterCreatePhoto(ctx context.Context, chatID int64, user *models.User) {
	if !user.SeenCountPrompt {
		// One-shot: offered exactly once per account.
		if err := b.users.MarkCountPromptSeen(ctx, user.ID); err != nil {
			b.log.Error("mark count prompt seen", "err", err, "user_id", user.ID)
		}
		b.sendCountMenu(chatID)
	}

	if err := b.states.Set(ctx, user.ID, models.FeatureCreatePhoto, models.StepAwaitingInput, models.StepData{}); err != nil {
		b.log.Error("set state", "err", err, "user_id", user.ID)
		b.sendText(chatID, msgGenericFailure)
		return
	}

	cost := b.ledger.Cost(models.FeatureCreatePhoto)
	b.sendMarkdown(chatID, fmt.Sprintf(msgCreatePhotoIntro, b.cfg.MaxImages, cost, user.PreferredImageCount, user.Balance))
}

// handleCreatePhotoText consumes a plain text prompt in awaiting_input.
func (b *Bot) handleCreatePhotoText(ctx context.Context, chatID int64, user *models.User, prompt string) {
	b.ledger.LogUsage(ctx, models.UsageEntry{
		UserID:      user.ID,
		Feature:     models.FeatureCreatePhoto,
		MessageType: models.MessageUserText,
		Content:     prompt,
		Success:     true,
	})
	b.clearState(ctx, user.ID)
	b.runGeneration(ctx, chatID, user, models.FeatureCreatePhoto, prompt, nil, msgProgressGenerating)
}

// handleCreatePhotoImage consumes a photo in awaiting_input. Album members
// are buffered until the group goes quiet; a single photo must carry its
// prompt in the caption.
func (b *Bot) handleCreatePhotoImage(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	fileID := largestPhotoID(msg.Photo)

	if msg.MediaGroupID != "" {
		b.albums.add(msg.MediaGroupID, albumPhoto{
			userID:     user.ID,
			telegramID: user.TelegramID,
			chatID:     msg.Chat.ID,
			fileID:     fileID,
			caption:    msg.Caption,
		})
		return
	}

	if msg.Caption == "" {
		// Re-prompt; the state is retained so the user can resend.
		b.sendMarkdown(msg.Chat.ID, msgCaptionRequired)
		return
	}

	b.ledger.LogUsage(ctx, models.UsageEntry{
		UserID:      user.ID,
		Feature:     models.FeatureCreatePhoto,
		MessageType: models.MessageUserImage,
		Content:     msg.Caption,
		ImageCount:  1,
		Success:     true,
	})

	image, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.clearState(ctx, user.ID)
		b.reportError(ctx, msg.Chat.ID, user, models.FeatureCreatePhoto, err)
		return
	}

	b.clearState(ctx, user.ID)
	b.runGeneration(ctx, msg.Chat.ID, user, models.FeatureCreatePhoto, msg.Caption, [][]byte{image}, msgProgressProcessing)
}

// processAlbum fires after the album's quiet period. The gate is re-checked
// because the state may have changed while the group was being buffered.
// The lock key must match dispatch, which serializes on the Telegram sender
// id, so a flush cannot interleave with the same user's in-flight handler.
func (b *Bot) processAlbum(group album) {
	ctx := context.Background()
	mu := b.lockFor(group.telegramID)
	mu.Lock()
	defer mu.Unlock()

	state, err := b.states.Get(ctx, group.userID)
	if err != nil {
		b.log.Error("get state", "err", err)
		return
	}
	if state == nil || state.Feature != models.FeatureCreatePhoto || state.Step != models.StepAwaitingInput {
		return
	}

	user, _, err := b.users.Ensure(ctx, group.telegramID, "", "", b.cfg.DefaultBalance)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		return
	}

	if group.caption == "" {
		// Unlike a single photo, a rejected album drops the whole flow: the
		// user has to resend it with a caption.
		b.clearState(ctx, user.ID)
		b.sendText(group.chatID, msgAlbumCaptionRequired)
		return
	}

	fileIDs := group.fileIDs
	if len(fileIDs) > b.cfg.MaxImages {
		fileIDs = fileIDs[:b.cfg.MaxImages]
		b.sendText(group.chatID, fmt.Sprintf(msgAlbumTruncated, b.cfg.MaxImages))
	}

	b.ledger.LogUsage(ctx, models.UsageEntry{
		UserID:      user.ID,
		Feature:     models.FeatureCreatePhoto,
		MessageType: models.MessageUserImage,
		Content:     group.caption,
		ImageCount:  len(fileIDs),
		Success:     true,
	})

	images := make([][]byte, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		img, err := b.downloadFile(ctx, fileID)
		if err != nil {
			b.clearState(ctx, user.ID)
			b.reportError(ctx, group.chatID, user, models.FeatureCreatePhoto, err)
			return
		}
		images = append(images, img)
	}

	b.clearState(ctx, user.ID)
	b.runGeneration(ctx, group.chatID, user, models.FeatureCreatePhoto, group.caption, images, msgProgressProcessing)
}

// runGeneration drives one orchestration: progress indicator, fan-out,
// delivery, billing feedback.
func (b *Bot) runGeneration(ctx context.Context, chatID int64, user *models.User, feature models.Feature, prompt string, images [][]byte, progressText string) {
	progress := b.startProgress(ctx, chatID, progressText)

	result, err := b.generation.Generate(ctx, user, service.GenerationRequest{
		Feature: feature,
		Prompt:  prompt,
		Images:  images,
		Count:   user.PreferredImageCount,
	})
	progress.stop()

	if err != nil {
		b.reportError(ctx, chatID, user, feature, err)
		return
	}

	b.deliverImages(chatID, prompt, user.PreferredImageCount, result)
}

// deliverImages sends a single result as photo plus full-quality document,
// and multiple results as one grouped batch.
func (b *Bot) deliverImages(chatID int64, prompt string, requested int, result *service.GenerationResult) {
	if len(result.Images) == 1 {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "generated.png", Bytes: result.Images[0]})
		photo.Caption = fmt.Sprintf(msgResultCaption, prompt, result.TokensUsed, result.NewBalance)
		if _, err := b.api.Send(photo); err != nil {
			b.log.Error("send photo", "err", err)
		}
		document := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "generated_image.png", Bytes: result.Images[0]})
		document.Caption = msgDocumentCaption
		if _, err := b.api.Send(document); err != nil {
			b.log.Error("send document", "err", err)
		}
		return
	}

	media := make([]interface{}, 0, len(result.Images))
	for i, img := range result.Images {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FileBytes{Name: fmt.Sprintf("generated_%d.png", i+1), Bytes: img})
		if i == 0 {
			photo.Caption = fmt.Sprintf(msgResultBatchCaption, len(result.Images), requested, result.TokensUsed, result.NewBalance)
		}
		media = append(media, photo)
	}
	if _, err := b.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media)); err != nil {
		b.log.Error("send media group", "err", err)
	}
}

// largestPhotoID picks the biggest rendition Telegram offers for a photo.
func largestPhotoID(sizes []tgbotapi.PhotoSize) string {
	if len(sizes) == 0 {
		return ""
	}
	return sizes[len(sizes)-1].FileID
}
