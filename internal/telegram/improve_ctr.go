package telegram

import (
	"context"

	"github.com/marketvision/cardgenbot/internal/models"
	"github.com/marketvision/cardgenbot/internal/service"
)

// handleImproveCTR reacts to the improvement button: it picks up the stored
// analyzed image and critique, synthesizes a generation prompt from the
// recommendations, and hands everything to the orchestrator.
func (b *Bot) handleImproveCTR(ctx context.Context, chatID int64, user *models.User) {
	state, err := b.states.Get(ctx, user.ID)
	if err != nil {
		b.log.Error("get state", "err", err, "user_id", user.ID)
		b.sendText(chatID, msgGenericFailure)
		return
	}
	if state == nil || state.Feature != models.FeatureCTRImprovement || state.StepData.ImageFileID == "" {
		b.sendText(chatID, msgImproveMissing)
		return
	}

	if err := b.ledger.CheckSufficient(ctx, user.ID, models.FeatureCTRImprovement, user.PreferredImageCount); err != nil {
		// Insufficient balance cancels the flow; the stored analysis is gone.
		b.clearState(ctx, user.ID)
		b.reportError(ctx, chatID, user, models.FeatureCTRImprovement, err)
		return
	}

	image, err := b.downloadFile(ctx, state.StepData.ImageFileID)
	if err != nil {
		b.clearState(ctx, user.ID)
		b.reportError(ctx, chatID, user, models.FeatureCTRImprovement, err)
		return
	}

	prompt := service.BuildImprovementPrompt(state.StepData.Recommendations)
	b.clearState(ctx, user.ID)
	b.runGeneration(ctx, chatID, user, models.FeatureCTRImprovement, prompt, [][]byte{image}, msgProgressImproving)
}
