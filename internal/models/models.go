package models

import "time"

// Feature identifies a user-facing capability that costs tokens.
type Feature string

const (
	FeatureCreatePhoto    Feature = "create_photo"
	FeatureAnalyzeCTR     Feature = "analyze_ctr"
	FeatureCTRImprovement Feature = "ctr_improvement"
)

// Step is a feature-specific position inside a conversation.
type Step string

const (
	StepAwaitingInput Step = "awaiting_input"
	StepAwaitingImage Step = "awaiting_image"
	StepReady         Step = "ready"
)

// MessageType classifies usage-log entries.
type MessageType string

const (
	MessageUserText    MessageType = "user_text"
	MessageUserImage   MessageType = "user_image"
	MessageBotResponse MessageType = "bot_response"
	MessageButtonClick MessageType = "button_click"
	MessageError       MessageType = "error"
)

type User struct {
	ID                  int64
	TelegramID          int64
	Username            string
	FirstName           string
	Balance             int
	PreferredImageCount int
	SeenCountPrompt     bool
	CreatedAt           time.Time
	LastActive          time.Time
}

// ConversationState is the single optional per-user state record.
type ConversationState struct {
	UserID    int64
	Feature   Feature
	Step      Step
	StepData  StepData
	UpdatedAt time.Time
}

// StepData is the structured payload stored as JSON alongside a state:
// the analyzed image's file reference and the cached recommendations text.
type StepData struct {
	ImageFileID     string `json:"image_file_id,omitempty"`
	Recommendations string `json:"recommendations,omitempty"`
}

type UsageEntry struct {
	ID          int64
	UserID      int64
	Feature     Feature
	MessageType MessageType
	Content     string
	ImageCount  int
	TokensUsed  int
	Success     bool
	Metadata    map[string]any
	CreatedAt   time.Time
}
