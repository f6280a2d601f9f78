package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marketvision/cardgenbot/internal/config"
	"github.com/marketvision/cardgenbot/internal/gemini"
	"github.com/marketvision/cardgenbot/internal/models"
)

const ctrAnalysisPrompt = `Ты эксперт по маркетплейсам (Wildberries, Ozon, Яндекс.Маркет) и визуальному дизайну карточек товаров.

Проанализируй эту карточку товара или скриншот с маркетплейса и оцени её потенциал для высокого CTR (кликабельности).

Дай детальный анализ по следующим критериям:

📊 **ОБЩАЯ ОЦЕНКА CTR**: X/10

🎯 **ЧТО РАБОТАЕТ ХОРОШО:**
- [перечисли сильные стороны карточки]

⚠️ **ЧТО НУЖНО УЛУЧШИТЬ:**
- [перечисли слабые места]

💡 **КОНКРЕТНЫЕ РЕКОМЕНДАЦИИ:**
1. [рекомендация 1]
2. [рекомендация 2]
3. [рекомендация 3]

Оценивай:
- Читаемость и размер заголовка/названия товара
- Видимость и презентация самого товара
- Цветовая гамма и контраст
- Наличие УТП (скидки, бесплатная доставка, и т.д.)
- Качество изображения
- Соответствие трендам маркетплейсов
- Информативность (цена, цвета, размеры)

Будь конкретным и практичным в рекомендациях.`

// AnalysisService runs the CTR critique of a product-card image and charges
// the flat analysis cost after a successful response.
type AnalysisService struct {
	cfg    config.Config
	log    *slog.Logger
	ledger *LedgerService
	client textGenerator
}

func NewAnalysisService(cfg config.Config, log *slog.Logger, ledger *LedgerService, client textGenerator) *AnalysisService {
	return &AnalysisService{
		cfg:    cfg,
		log:    log,
		ledger: ledger,
		client: client,
	}
}

// AnalysisResult carries the critique text and the billing outcome.
type AnalysisResult struct {
	Recommendations string
	TokensUsed      int
	NewBalance      int
}

func (s *AnalysisService) Analyze(ctx context.Context, user *models.User, image []byte) (*AnalysisResult, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image cannot be empty")
	}

	if err := s.ledger.CheckSufficient(ctx, user.ID, models.FeatureAnalyzeCTR, 1); err != nil {
		return nil, err
	}

	text, err := s.client.GenerateText(ctx, gemini.TextOptions{
		Model:  s.cfg.TextModel,
		Prompt: ctrAnalysisPrompt,
		Images: [][]byte{image},
	})
	if err != nil {
		s.ledger.LogUsage(ctx, models.UsageEntry{
			UserID:      user.ID,
			Feature:     models.FeatureAnalyzeCTR,
			MessageType: models.MessageError,
			Content:     err.Error(),
		})
		return nil, fmt.Errorf("analyze card: %w", err)
	}

	tokens := s.ledger.Cost(models.FeatureAnalyzeCTR)
	balance, err := s.ledger.Charge(ctx, user.ID, models.FeatureAnalyzeCTR, 1)
	if err != nil {
		return nil, err
	}

	s.ledger.LogUsage(ctx, models.UsageEntry{
		UserID:      user.ID,
		Feature:     models.FeatureAnalyzeCTR,
		MessageType: models.MessageBotResponse,
		Content:     text,
		ImageCount:  1,
		TokensUsed:  tokens,
		Success:     true,
	})

	return &AnalysisResult{
		Recommendations: text,
		TokensUsed:      tokens,
		NewBalance:      balance,
	}, nil
}

// BuildImprovementPrompt synthesizes the generation prompt for the
// improvement flow. Only the 💡 recommendations section of the critique is
// carried over; the full critique would drown the actual instructions.
func BuildImprovementPrompt(recommendations string) string {
	section := recommendations
	if idx := strings.Index(recommendations, "💡"); idx >= 0 {
		section = recommendations[idx:]
	}
	return "Улучши эту карточку товара для маркетплейса, применяя следующие рекомендации:\n\n" +
		section +
		"\n\nСоздай профессиональное изображение товара с высоким CTR потенциалом. " +
		"Соотношение сторон 3:4 (вертикальное). " +
		"Товар должен занимать 60-70% изображения, быть в центре композиции. " +
		"Используй чистый, профессиональный фон. " +
		"Добавь максимум 1-2 крупных тезиса, если это уместно."
}
