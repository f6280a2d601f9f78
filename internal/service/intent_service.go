package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marketvision/cardgenbot/internal/config"
	"github.com/marketvision/cardgenbot/internal/gemini"
)

const intentInstruction = `Analyze the following user request and determine if the user wants to improve CTR (Click-Through Rate) for their product, advertisement, or marketplace listing.

User request: "%s"

Answer with ONLY "yes" or "no".
- Answer "yes" if the user explicitly or implicitly wants to improve CTR, increase clicks, optimize conversion, make their product more attractive to buyers, or improve marketplace performance.
- Answer "no" for all other requests like general image creation, editing, artistic requests, or unrelated tasks.

Answer:`

type textGenerator interface {
	GenerateText(ctx context.Context, opts gemini.TextOptions) (string, error)
}

// IntentService decides whether a generation request should receive the CTR
// optimization prompt fragment. One cheap classifier call, zero temperature.
type IntentService struct {
	log    *slog.Logger
	client textGenerator
	model  string
}

func NewIntentService(cfg config.Config, log *slog.Logger, client textGenerator) *IntentService {
	return &IntentService{
		log:    log,
		client: client,
		model:  cfg.ClassifierModel,
	}
}

// Classify returns true when the user wants a CTR boost. Text-only requests
// skip classification entirely: there is nothing to improve without an image.
// Any classifier failure defaults to false, failing open toward the cheaper
// path.
func (s *IntentService) Classify(ctx context.Context, prompt string, imageCount int) bool {
	if imageCount == 0 {
		return false
	}

	temperature := 0.0
	answer, err := s.client.GenerateText(ctx, gemini.TextOptions{
		Model:           s.model,
		Prompt:          fmt.Sprintf(intentInstruction, prompt),
		Temperature:     &temperature,
		MaxOutputTokens: 10,
	})
	if err != nil {
		s.log.Error("intent classification failed", "err", err)
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	s.log.Debug("intent classified", "answer", answer)
	return strings.HasPrefix(answer, "yes")
}
