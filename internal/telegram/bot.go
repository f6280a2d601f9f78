package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marketvision/cardgenbot/internal/config"
	"github.com/marketvision/cardgenbot/internal/models"
	"github.com/marketvision/cardgenbot/internal/service"
)

// botAPI is the slice of tgbotapi.BotAPI the bot actually uses, split out so
// handlers can be exercised against a fake transport.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error)
}

type userService interface {
	Ensure(ctx context.Context, telegramID int64, username, firstName string, defaultBalance int) (*models.User, bool, error)
	SetPreferredImageCount(ctx context.Context, userID int64, count int) error
	MarkCountPromptSeen(ctx context.Context, userID int64) error
}

type stateStore interface {
	Get(ctx context.Context, userID int64) (*models.ConversationState, error)
	Set(ctx context.Context, userID int64, feature models.Feature, step models.Step, data models.StepData) error
	Clear(ctx context.Context, userID int64) error
}

type ledgerService interface {
	Cost(feature models.Feature) int
	CheckSufficient(ctx context.Context, userID int64, feature models.Feature, multiplier int) error
	LogUsage(ctx context.Context, entry models.UsageEntry)
}

type generationService interface {
	Generate(ctx context.Context, user *models.User, req service.GenerationRequest) (*service.GenerationResult, error)
}

type analysisService interface {
	Analyze(ctx context.Context, user *models.User, image []byte) (*service.AnalysisResult, error)
}

type Bot struct {
	cfg        config.Config
	api        botAPI
	log        *slog.Logger
	users      userService
	states     stateStore
	ledger     ledgerService
	generation generationService
	analysis   analysisService
	albums     *albumCollector
	httpClient *http.Client

	// fileEndpoint is the download URL template (token, file path).
	fileEndpoint string

	// One mutex per user: a user's events are processed to completion before
	// the next one is dispatched, closing the double-send state race.
	locks sync.Map

	updates func(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	stop    func()
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, users *service.UserService, states stateStore, ledger *service.LedgerService, generation *service.GenerationService, analysis *service.AnalysisService) *Bot {
	b := &Bot{
		cfg:          cfg,
		api:          api,
		log:          log,
		users:        users,
		states:       states,
		ledger:       ledger,
		generation:   generation,
		analysis:     analysis,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		fileEndpoint: "https://api.telegram.org/file/bot%s/%s",
		updates:      api.GetUpdatesChan,
		stop:         api.StopReceivingUpdates,
	}
	b.albums = newAlbumCollector(cfg.AlbumQuietPeriod, cfg.MaxImages, b.processAlbum)
	return b
}

func (b *Bot) Run(ctx context.Context) error {
	if err := b.registerCommands(); err != nil {
		b.log.Error("register commands", "err", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.updates(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			b.dispatch(ctx, update)
		case <-ctx.Done():
			b.stop()
			return ctx.Err()
		}
	}
}

func (b *Bot) registerCommands() error {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Главное меню"},
		tgbotapi.BotCommand{Command: "create_photo", Description: "Создать фото товара"},
		tgbotapi.BotCommand{Command: "analyze_ctr", Description: "Анализ CTR карточки"},
		tgbotapi.BotCommand{Command: "balance", Description: "Проверить баланс"},
		tgbotapi.BotCommand{Command: "help", Description: "Справка"},
	)
	if _, err := b.api.Request(commands); err != nil {
		return fmt.Errorf("set my commands: %w", err)
	}
	return nil
}

// dispatch runs each update on its own goroutine, serialized per user so two
// rapid messages from the same user cannot both pass a state gate. The mutex
// guarantees exclusion, not arrival order: two rapid messages may be handled
// out of order, which is safe because every handler re-reads the state under
// the lock.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	userID := updateUserID(update)
	go func() {
		mu := b.lockFor(userID)
		mu.Lock()
		defer mu.Unlock()
		b.handleUpdate(ctx, update)
	}()
}

func (b *Bot) lockFor(userID int64) *sync.Mutex {
	mu, _ := b.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func updateUserID(update tgbotapi.Update) int64 {
	if from := update.SentFrom(); from != nil {
		return from.ID
	}
	return 0
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}
	if msg.Text != "" {
		b.handleText(ctx, msg)
	}
}

// handleText offers an inbound text message to the active feature, dispatching
// on the conversation state's feature tag. No active state means the message
// is not consumed by anything and the user gets the menu hint.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		return
	}

	state, err := b.states.Get(ctx, user.ID)
	if err != nil {
		b.log.Error("get state", "err", err)
		return
	}
	if state == nil {
		b.sendText(msg.Chat.ID, msgMenuHint)
		return
	}

	switch state.Feature {
	case models.FeatureCreatePhoto:
		b.handleCreatePhotoText(ctx, msg.Chat.ID, user, msg.Text)
	case models.FeatureAnalyzeCTR:
		// Wrong input kind for this step: remind and keep the state.
		b.sendMarkdown(msg.Chat.ID, msgAnalyzeNeedsPhoto)
	default:
		b.sendText(msg.Chat.ID, msgMenuHint)
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		return
	}

	state, err := b.states.Get(ctx, user.ID)
	if err != nil {
		b.log.Error("get state", "err", err)
		return
	}
	if state == nil {
		b.sendText(msg.Chat.ID, msgMenuHint)
		return
	}

	switch state.Feature {
	case models.FeatureCreatePhoto:
		b.handleCreatePhotoImage(ctx, msg, user)
	case models.FeatureAnalyzeCTR:
		b.handleAnalyzePhoto(ctx, msg, user)
	default:
		b.sendText(msg.Chat.ID, msgMenuHint)
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, error) {
	telegramID := chatID
	username := ""
	firstName := ""
	if from != nil {
		telegramID = from.ID
		username = from.UserName
		firstName = from.FirstName
	}
	user, _, err := b.users.Ensure(ctx, telegramID, username, firstName, b.cfg.DefaultBalance)
	return user, err
}

func (b *Bot) clearState(ctx context.Context, userID int64) {
	if err := b.states.Clear(ctx, userID); err != nil {
		b.log.Error("clear state", "err", err, "user_id", userID)
	}
}

// downloadFile fetches a file's bytes from the Telegram file endpoint.
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf(b.fileEndpoint, b.cfg.BotToken, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	return body, nil
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

// sendMarkdown sends Markdown-formatted text, falling back to plain text when
// the formatting is rejected; delivery matters more than styling.
func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("markdown send failed, retrying plain", "err", err)
		b.sendText(chatID, text)
	}
}

// sendLongMarkdown splits text over Telegram's message size limit into chunks.
func (b *Bot) sendLongMarkdown(chatID int64, text string) {
	const limit = 4096
	runes := []rune(text)
	for len(runes) > 0 {
		n := len(runes)
		if n > limit {
			n = limit
		}
		b.sendMarkdown(chatID, string(runes[:n]))
		runes = runes[n:]
	}
}

func (b *Bot) reportError(ctx context.Context, chatID int64, user *models.User, feature models.Feature, err error) {
	var insufficient *service.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		b.sendText(chatID, fmt.Sprintf(msgInsufficientBalance, insufficient.Required, insufficient.Available))
	case errors.Is(err, service.ErrAllGenerationsFailed):
		b.sendText(chatID, msgGenerationFailed)
	default:
		b.log.Error("operation failed", "feature", feature, "user_id", user.ID, "err", err)
		b.sendText(chatID, msgGenericFailure)
		b.ledger.LogUsage(ctx, models.UsageEntry{
			UserID:      user.ID,
			Feature:     feature,
			MessageType: models.MessageError,
			Content:     err.Error(),
		})
	}
}
