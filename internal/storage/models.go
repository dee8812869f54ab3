package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist or is not
// owned by the caller. Ownership misses are indistinguishable from absence
// on purpose.
var ErrNotFound = errors.New("not found")

// Agent objectives.
const (
	ObjectiveSupport  = "support"
	ObjectiveSales    = "sales"
	ObjectivePersonal = "personal"
)

// Training item types.
const (
	ItemTypeText     = "text"
	ItemTypeWebsite  = "website"
	ItemTypeVideo    = "video"
	ItemTypeDocument = "document"
)

// Training item processing states.
const (
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
	StatusPending    = "pending"
)

// Agent is one seller's assistant configuration plus its derived compiled
// prompt state.
type Agent struct {
	ID                 string `json:"id"`
	UserID             string `json:"user_id"`
	Name               string `json:"name"`
	Objective          string `json:"objective"`
	CompanyDescription string `json:"company_description"`

	TransferToHuman   bool `json:"transfer_to_human"`
	SummaryOnTransfer bool `json:"summary_on_transfer"`
	UseEmojis         bool `json:"use_emojis"`
	SignAgentName     bool `json:"sign_agent_name"`
	RestrictTopics    bool `json:"restrict_topics"`
	SplitResponses    bool `json:"split_responses"`
	AllowReminders    bool `json:"allow_reminders"`
	SmartSearch       bool `json:"smart_search"`

	Timezone         string `json:"timezone"`
	ResponseTime     string `json:"response_time"`
	InteractionLimit int    `json:"interaction_limit"`
	IsActive         bool   `json:"is_active"`

	// Derived at compile time; SystemPrompt is empty until the first compile.
	SystemPrompt       string `json:"system_prompt"`
	TotalTrainingChars int    `json:"total_training_chars"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrainingItem is one knowledge-base unit belonging to an agent.
type TrainingItem struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	Type    string `json:"type"`
	Content string `json:"content"` // URL, literal text, or empty for documents
	Title   string `json:"title"`

	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`

	ExtractedContent string `json:"extracted_content"`
	ProcessingStatus string `json:"processing_status"`
	ProcessingError  string `json:"processing_error,omitempty"`
	CharCount        int    `json:"char_count"`

	CreatedAt time.Time `json:"created_at"`
}
