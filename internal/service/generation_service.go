package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marketvision/cardgenbot/internal/config"
	"github.com/marketvision/cardgenbot/internal/gemini"
	"github.com/marketvision/cardgenbot/internal/models"
)

// ErrAllGenerationsFailed is returned when every parallel call produced no
// image. Nothing is charged in that case.
var ErrAllGenerationsFailed = errors.New("all generation calls failed")

const ctrEnhancementPrompt = `

ВАЖНО: Пользователь хочет улучшить CTR (кликабельность) этого изображения для маркетплейса.

При создании/редактировании изображения учти:
• Увеличь контраст и яркость товара
• Сделай заголовок/текст более заметным и читаемым
• Добавь визуальные элементы привлечения внимания (если уместно)
• Улучши композицию для лучшей презентации товара
• Оптимизируй цветовую гамму для максимальной привлекательности
• Убедись, что товар хорошо выделяется на фоне
`

type imageGenerator interface {
	GenerateImage(ctx context.Context, opts gemini.ImageOptions) ([]byte, error)
}

type classifier interface {
	Classify(ctx context.Context, prompt string, imageCount int) bool
}

// GenerationRequest is the ephemeral input of one orchestration.
type GenerationRequest struct {
	Feature models.Feature
	Prompt  string
	Images  [][]byte
	Count   int
}

// GenerationResult carries the delivered images in request-slot order plus
// the billing outcome.
type GenerationResult struct {
	RequestID  string
	Images     [][]byte
	CTRBoost   bool
	TokensUsed int
	NewBalance int
}

// GenerationService fans a request out into Count independent generation
// calls, aggregates the survivors, and charges strictly for what was
// delivered.
type GenerationService struct {
	cfg    config.Config
	log    *slog.Logger
	ledger *LedgerService
	intent classifier
	client imageGenerator
}

func NewGenerationService(cfg config.Config, log *slog.Logger, ledger *LedgerService, intent classifier, client imageGenerator) *GenerationService {
	return &GenerationService{
		cfg:    cfg,
		log:    log,
		ledger: ledger,
		intent: intent,
		client: client,
	}
}

func (s *GenerationService) Generate(ctx context.Context, user *models.User, req GenerationRequest) (*GenerationResult, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Feature == "" {
		req.Feature = models.FeatureCreatePhoto
	}

	if err := s.ledger.CheckSufficient(ctx, user.ID, req.Feature, req.Count); err != nil {
		return nil, err
	}

	prompt := req.Prompt
	boost := s.intent.Classify(ctx, req.Prompt, len(req.Images))
	if boost {
		prompt += ctrEnhancementPrompt
	}

	requestID := uuid.NewString()
	s.log.Info("generation started", "request_id", requestID, "user_id", user.ID, "count", req.Count, "reference_images", len(req.Images), "ctr_boost", boost)

	// Slot order is preserved so the delivered arrangement is deterministic.
	results := make([][]byte, req.Count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < req.Count; i++ {
		i := i
		g.Go(func() error {
			img, err := s.client.GenerateImage(gctx, gemini.ImageOptions{
				Model:       s.cfg.ImageModel,
				Prompt:      prompt,
				Images:      req.Images,
				AspectRatio: s.cfg.AspectRatio,
				ImageSize:   s.cfg.ImageSize,
			})
			if err != nil {
				// A failed slot is dropped, not fatal: partial success is fine.
				s.log.Error("generation call failed", "request_id", requestID, "slot", i, "err", err)
				return nil
			}
			results[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	delivered := deliveredImages(results)

	if len(delivered) == 0 {
		s.ledger.LogUsage(ctx, models.UsageEntry{
			UserID:      user.ID,
			Feature:     req.Feature,
			MessageType: models.MessageError,
			Content:     "all generation calls failed",
			Metadata:    map[string]any{"request_id": requestID, "requested": req.Count},
		})
		return nil, ErrAllGenerationsFailed
	}

	tokens := s.ledger.Cost(req.Feature) * len(delivered)
	balance, err := s.ledger.Charge(ctx, user.ID, req.Feature, len(delivered))
	if err != nil {
		return nil, err
	}

	s.ledger.LogUsage(ctx, models.UsageEntry{
		UserID:      user.ID,
		Feature:     req.Feature,
		MessageType: models.MessageBotResponse,
		Content:     req.Prompt,
		ImageCount:  len(delivered),
		TokensUsed:  tokens,
		Success:     true,
		Metadata:    map[string]any{"request_id": requestID, "requested": req.Count, "ctr_boost": boost},
	})

	s.log.Info("generation finished", "request_id", requestID, "delivered", len(delivered), "requested", req.Count, "tokens", tokens)

	return &GenerationResult{
		RequestID:  requestID,
		Images:     delivered,
		CTRBoost:   boost,
		TokensUsed: tokens,
		NewBalance: balance,
	}, nil
}

// deliveredImages drops failed slots while keeping the surviving images in
// slot order, so the delivered arrangement is deterministic per outcome set.
func deliveredImages(results [][]byte) [][]byte {
	delivered := make([][]byte, 0, len(results))
	for _, img := range results {
		if len(img) > 0 {
			delivered = append(delivered, img)
		}
	}
	return delivered
}
