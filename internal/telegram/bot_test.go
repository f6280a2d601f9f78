package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketvision/cardgenbot/internal/config"
	"github.com/marketvision/cardgenbot/internal/models"
	"github.com/marketvision/cardgenbot/internal/service"
)

type fakeAPI struct {
	mu          sync.Mutex
	sent        []tgbotapi.Chattable
	requests    []tgbotapi.Chattable
	mediaGroups []tgbotapi.MediaGroupConfig
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaGroups = append(f.mediaGroups, cfg)
	return nil, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFile(tgbotapi.FileConfig) (tgbotapi.File, error) {
	return tgbotapi.File{FilePath: "photos/card.jpg"}, nil
}

// texts returns the user-visible strings of everything sent so far.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.PhotoConfig:
			out = append(out, m.Caption)
		case tgbotapi.DocumentConfig:
			out = append(out, m.Caption)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) containsText(substr string) bool {
	for _, text := range f.texts() {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

type fakeUsers struct {
	mu        sync.Mutex
	user      *models.User
	setCounts []int
	seenMarks int
}

func (f *fakeUsers) Ensure(context.Context, int64, string, string, int) (*models.User, bool, error) {
	return f.user, false, nil
}

func (f *fakeUsers) SetPreferredImageCount(_ context.Context, _ int64, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCounts = append(f.setCounts, count)
	return nil
}

func (f *fakeUsers) MarkCountPromptSeen(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenMarks++
	return nil
}

type memStateStore struct {
	mu     sync.Mutex
	states map[int64]*models.ConversationState
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[int64]*models.ConversationState)}
}

func (m *memStateStore) Get(_ context.Context, userID int64) (*models.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[userID], nil
}

func (m *memStateStore) Set(_ context.Context, userID int64, feature models.Feature, step models.Step, data models.StepData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = &models.ConversationState{UserID: userID, Feature: feature, Step: step, StepData: data}
	return nil
}

func (m *memStateStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	costs   map[models.Feature]int
	refusal error
	entries []models.UsageEntry
}

func (f *fakeLedger) Cost(feature models.Feature) int {
	return f.costs[feature]
}

func (f *fakeLedger) CheckSufficient(context.Context, int64, models.Feature, int) error {
	return f.refusal
}

func (f *fakeLedger) LogUsage(_ context.Context, entry models.UsageEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

type fakeGeneration struct {
	mu       sync.Mutex
	requests []service.GenerationRequest
	result   *service.GenerationResult
	err      error
}

func (f *fakeGeneration) Generate(_ context.Context, _ *models.User, req service.GenerationRequest) (*service.GenerationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &service.GenerationResult{Images: [][]byte{[]byte("img")}, TokensUsed: 25, NewBalance: 25}, nil
}

func (f *fakeGeneration) calls() []service.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.GenerationRequest(nil), f.requests...)
}

type fakeAnalysis struct {
	mu     sync.Mutex
	calls  int
	result *service.AnalysisResult
	err    error
}

func (f *fakeAnalysis) Analyze(context.Context, *models.User, []byte) (*service.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testBot struct {
	bot    *Bot
	api    *fakeAPI
	users  *fakeUsers
	states *memStateStore
	ledger *fakeLedger
	gen    *fakeGeneration
	ana    *fakeAnalysis
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(fileServer.Close)

	cfg := config.Config{
		BotToken:         "test-token",
		DefaultBalance:   50,
		CreatePhotoCost:  25,
		AnalyzeCTRCost:   5,
		MaxImages:        5,
		AlbumQuietPeriod: 30 * time.Millisecond,
		ImageModel:       "test-image-model",
		BannerPath:       "does-not-exist.png",
	}

	api := &fakeAPI{}
	users := &fakeUsers{user: &models.User{ID: 7, TelegramID: 42, FirstName: "Test", Balance: 50, PreferredImageCount: 1, SeenCountPrompt: true}}
	states := newMemStateStore()
	ledger := &fakeLedger{costs: map[models.Feature]int{
		models.FeatureCreatePhoto:    25,
		models.FeatureAnalyzeCTR:     5,
		models.FeatureCTRImprovement: 25,
	}}
	gen := &fakeGeneration{}
	ana := &fakeAnalysis{result: &service.AnalysisResult{Recommendations: "💡 КОНКРЕТНЫЕ РЕКОМЕНДАЦИИ:\n1. Контраст", TokensUsed: 5, NewBalance: 45}}

	b := &Bot{
		cfg:          cfg,
		api:          api,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		users:        users,
		states:       states,
		ledger:       ledger,
		generation:   gen,
		analysis:     ana,
		httpClient:   fileServer.Client(),
		fileEndpoint: fileServer.URL + "/%s/%s",
	}
	b.albums = newAlbumCollector(cfg.AlbumQuietPeriod, cfg.MaxImages, b.processAlbum)

	return &testBot{bot: b, api: api, users: users, states: states, ledger: ledger, gen: gen, ana: ana}
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 100},
		From: &tgbotapi.User{ID: 42, UserName: "tester", FirstName: "Test"},
		Text: text,
	}
}

func photoMessage(caption, groupID string) *tgbotapi.Message {
	msg := textMessage("")
	msg.Text = ""
	msg.Caption = caption
	msg.MediaGroupID = groupID
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}
	return msg
}

func TestTextWithoutStateShowsMenuHint(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.handleText(context.Background(), textMessage("привет"))

	assert.True(t, tb.api.containsText(msgMenuHint))
	assert.Empty(t, tb.gen.calls())
}

func TestPhotoWithoutStateShowsMenuHint(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.handlePhoto(context.Background(), photoMessage("подпись", ""))

	assert.True(t, tb.api.containsText(msgMenuHint))
	assert.Empty(t, tb.gen.calls())
	assert.Zero(t, tb.ana.calls)
}

func TestAnalyzeStateTextSendsReminderAndKeepsState(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureAnalyzeCTR, models.StepAwaitingImage, models.StepData{}))

	tb.bot.handleText(ctx, textMessage("вот ссылка на товар"))

	assert.True(t, tb.api.containsText("отправьте *фото*"))
	state, err := tb.states.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, state, "reminder must not clear the state")
	assert.Equal(t, models.FeatureAnalyzeCTR, state.Feature)
}

func TestAnalyzeStatePhotoRunsAnalysisAndStoresImprovement(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureAnalyzeCTR, models.StepAwaitingImage, models.StepData{}))

	tb.bot.handlePhoto(ctx, photoMessage("", ""))

	assert.Equal(t, 1, tb.ana.calls)
	assert.True(t, tb.api.containsText("Результат анализа CTR"))

	state, err := tb.states.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.FeatureCTRImprovement, state.Feature)
	assert.Equal(t, "large", state.StepData.ImageFileID)
	assert.Contains(t, state.StepData.Recommendations, "РЕКОМЕНДАЦИИ")
}

func TestCreatePhotoTextRunsGenerationAndClearsState(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureCreatePhoto, models.StepAwaitingInput, models.StepData{}))

	tb.bot.handleText(ctx, textMessage("красивый закат над океаном"))

	calls := tb.gen.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "красивый закат над океаном", calls[0].Prompt)
	assert.Equal(t, 1, calls[0].Count)
	assert.Empty(t, calls[0].Images)

	state, err := tb.states.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestUncaptionedPhotoRePromptsAndKeepsState(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureCreatePhoto, models.StepAwaitingInput, models.StepData{}))

	tb.bot.handlePhoto(ctx, photoMessage("", ""))

	assert.True(t, tb.api.containsText("с текстовым описанием в подписи"))
	assert.Empty(t, tb.gen.calls())

	state, err := tb.states.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, state, "single uncaptioned photo keeps the flow alive")
}

func TestCaptionedPhotoRunsGenerationWithReference(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureCreatePhoto, models.StepAwaitingInput, models.StepData{}))

	tb.bot.handlePhoto(ctx, photoMessage("добавь шляпу этому коту", ""))

	calls := tb.gen.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "добавь шляпу этому коту", calls[0].Prompt)
	require.Len(t, calls[0].Images, 1)
	assert.Equal(t, []byte("jpeg-bytes"), calls[0].Images[0])
}

func TestInsufficientBalanceMessageCitesAmounts(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	tb.gen.err = &service.InsufficientBalanceError{Required: 100, Available: 25}
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureCreatePhoto, models.StepAwaitingInput, models.StepData{}))

	tb.bot.handleText(ctx, textMessage("4 варианта"))

	assert.True(t, tb.api.containsText("Требуется: 100"))
	assert.True(t, tb.api.containsText("Ваш баланс: 25"))
}

func TestAllFailedGenerationReportsFailure(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	tb.gen.err = service.ErrAllGenerationsFailed
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureCreatePhoto, models.StepAwaitingInput, models.StepData{}))

	tb.bot.handleText(ctx, textMessage("промпт"))

	assert.True(t, tb.api.containsText(msgGenerationFailed))
}

func TestMultipleImagesDeliveredAsSingleBatch(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	tb.gen.result = &service.GenerationResult{
		Images:     [][]byte{[]byte("a"), []byte("b"), []byte("c")},
		TokensUsed: 75,
		NewBalance: 25,
	}
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureCreatePhoto, models.StepAwaitingInput, models.StepData{}))

	tb.bot.handleText(ctx, textMessage("промпт"))

	tb.api.mu.Lock()
	defer tb.api.mu.Unlock()
	require.Len(t, tb.api.mediaGroups, 1, "multiple results go out as one grouped batch")
	assert.Len(t, tb.api.mediaGroups[0].Media, 3)
}

func TestUnknownCallbackOnlyAcknowledged(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "bogus_button",
		From:    &tgbotapi.User{ID: 42},
		Message: textMessage(""),
	})

	assert.Empty(t, tb.api.texts())
	tb.api.mu.Lock()
	defer tb.api.mu.Unlock()
	assert.Len(t, tb.api.requests, 1, "unknown callbacks are acked and dropped")
}

func TestCountSelectionCallback(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb2",
		Data:    countPrefix + "4",
		From:    &tgbotapi.User{ID: 42},
		Message: textMessage(""),
	})

	tb.users.mu.Lock()
	defer tb.users.mu.Unlock()
	require.Equal(t, []int{4}, tb.users.setCounts)
	assert.True(t, tb.api.containsText(fmt.Sprintf(msgCountSaved, 4)))
}

func TestImproveCallbackRunsGenerationFromStoredState(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, tb.states.Set(ctx, 7, models.FeatureCTRImprovement, models.StepReady, models.StepData{
		ImageFileID:     "analyzed-file",
		Recommendations: "💡 КОНКРЕТНЫЕ РЕКОМЕНДАЦИИ:\n1. Контраст",
	}))

	tb.bot.handleCallback(ctx, &tgbotapi.CallbackQuery{
		ID:      "cb3",
		Data:    cbImproveCTR,
		From:    &tgbotapi.User{ID: 42},
		Message: textMessage(""),
	})

	calls := tb.gen.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.FeatureCTRImprovement, calls[0].Feature)
	assert.Contains(t, calls[0].Prompt, "Улучши эту карточку товара")
	assert.Contains(t, calls[0].Prompt, "Контраст")
	require.Len(t, calls[0].Images, 1)

	state, err := tb.states.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestImproveCallbackWithoutStoredAnalysis(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb4",
		Data:    cbImproveCTR,
		From:    &tgbotapi.User{ID: 42},
		Message: textMessage(""),
	})

	assert.True(t, tb.api.containsText("Данные анализа не найдены"))
	assert.Empty(t, tb.gen.calls())
}
