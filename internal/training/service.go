// Package training manages the knowledge-base item lifecycle: creation,
// extraction, reprocessing, deletion, and prompt recompilation.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atendai/atenda/internal/extract"
	"github.com/atendai/atenda/internal/prompt"
	"github.com/atendai/atenda/internal/storage"
)

// ErrInvalidInput marks bad or missing required input (missing content,
// unknown item type, missing file). The wrapped message is user-displayable.
var ErrInvalidInput = errors.New("invalid input")

// videoPendingMessage is the fixed explanation stored on video items. Video
// extraction is not supported yet; pending is "supported later", not "failed".
const videoPendingMessage = "Processamento de vídeo ainda não é suportado. O item ficará pendente até o recurso estar disponível."

// Store is the persistence surface the lifecycle manager needs.
type Store interface {
	GetAgent(userID, id string) (storage.Agent, error)
	UpdateAgentPrompt(userID, id, prompt string, totalChars int) error

	CreateTrainingItem(item storage.TrainingItem) error
	GetTrainingItem(userID, itemID string) (storage.TrainingItem, error)
	ListTrainingItems(userID, agentID string) ([]storage.TrainingItem, error)
	UpdateTrainingItemResult(itemID, status, extracted, errMsg string, charCount int) error
	UpdateTrainingItemTitle(itemID, title string) error
	DeleteTrainingItem(userID, itemID string) error
}

// BlobStore stores and removes uploaded document files.
type BlobStore interface {
	Save(path string, data []byte) error
	Remove(path string) error
}

// WebsiteExtractor fetches and normalizes a web page.
type WebsiteExtractor interface {
	Extract(ctx context.Context, url string) (text, title string, err error)
}

// DocumentExtractor turns a stored file into plain text.
type DocumentExtractor interface {
	Extract(ctx context.Context, storagePath, fileName string) (string, error)
}

// FileUpload carries an uploaded document's bytes and metadata.
type FileUpload struct {
	Name string
	Size int64
	Type string
	Data []byte
}

// Service orchestrates training item operations for the API layer.
type Service struct {
	store     Store
	blobs     BlobStore
	websites  WebsiteExtractor
	documents DocumentExtractor
	logger    *slog.Logger
}

// NewService creates a Service with the given dependencies.
func NewService(store Store, blobs BlobStore, websites WebsiteExtractor, documents DocumentExtractor) *Service {
	return &Service{
		store:     store,
		blobs:     blobs,
		websites:  websites,
		documents: documents,
		logger:    slog.Default(),
	}
}

// Create persists a new training item with status processing, runs the
// matching extractor synchronously, persists the terminal state, and returns
// the final record. Extraction failures do not fail the call; they land on
// the item as status error. The owning agent's prompt is recompiled when the
// item reaches done.
func (s *Service) Create(ctx context.Context, ownerID, agentID, itemType, content, title string, file *FileUpload) (storage.TrainingItem, error) {
	if err := validateInput(itemType, content, file); err != nil {
		return storage.TrainingItem{}, err
	}

	// Agent lookup doubles as the ownership check.
	if _, err := s.store.GetAgent(ownerID, agentID); err != nil {
		return storage.TrainingItem{}, err
	}

	item := storage.TrainingItem{
		ID:               uuid.New().String(),
		AgentID:          agentID,
		Type:             itemType,
		Content:          strings.TrimSpace(content),
		Title:            strings.TrimSpace(title),
		ProcessingStatus: storage.StatusProcessing,
		CreatedAt:        time.Now().UTC(),
	}

	var uploadErr error
	if itemType == storage.ItemTypeDocument {
		item.FileName = file.Name
		item.FileSize = file.Size
		item.FileType = file.Type
		path := fmt.Sprintf("%s/%s/%s-%s", ownerID, agentID, item.ID, file.Name)
		if err := s.blobs.Save(path, file.Data); err != nil {
			// storage_path stays empty: there is no object to clean up later.
			uploadErr = err
			s.logger.Error("storing uploaded file failed", "item_id", item.ID, "error", err)
		} else {
			item.StoragePath = path
		}
	}

	// Persist before extracting so the item is visible while processing.
	if err := s.store.CreateTrainingItem(item); err != nil {
		return storage.TrainingItem{}, fmt.Errorf("creating training item: %w", err)
	}

	if uploadErr != nil {
		item.ProcessingStatus = storage.StatusError
		item.ProcessingError = "falha ao armazenar o arquivo enviado"
	} else {
		s.runExtraction(ctx, ownerID, &item)
	}

	if err := s.store.UpdateTrainingItemResult(item.ID, item.ProcessingStatus, item.ExtractedContent, item.ProcessingError, item.CharCount); err != nil {
		return storage.TrainingItem{}, fmt.Errorf("persisting extraction result: %w", err)
	}

	if item.ProcessingStatus == storage.StatusDone {
		s.recompile(ctx, ownerID, agentID)
	}

	return item, nil
}

// Reprocess re-runs extraction from the item's stored original input and
// persists the new terminal state. There is no automatic retry; every call
// is a single explicit attempt.
func (s *Service) Reprocess(ctx context.Context, ownerID, agentID, itemID string) (storage.TrainingItem, error) {
	item, err := s.store.GetTrainingItem(ownerID, itemID)
	if err != nil {
		return storage.TrainingItem{}, err
	}
	if item.AgentID != agentID {
		return storage.TrainingItem{}, storage.ErrNotFound
	}

	item.ProcessingStatus = storage.StatusProcessing
	item.ProcessingError = ""
	item.ExtractedContent = ""
	item.CharCount = 0
	s.runExtraction(ctx, ownerID, &item)

	if err := s.store.UpdateTrainingItemResult(item.ID, item.ProcessingStatus, item.ExtractedContent, item.ProcessingError, item.CharCount); err != nil {
		return storage.TrainingItem{}, fmt.Errorf("persisting extraction result: %w", err)
	}

	if item.ProcessingStatus == storage.StatusDone {
		s.recompile(ctx, ownerID, agentID)
	}

	return item, nil
}

// Delete removes the item and, when it has a stored file, removes the backing
// object best-effort. Storage cleanup failure never blocks the deletion.
func (s *Service) Delete(ctx context.Context, ownerID, itemID string) error {
	item, err := s.store.GetTrainingItem(ownerID, itemID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteTrainingItem(ownerID, itemID); err != nil {
		return err
	}

	if item.StoragePath != "" {
		if err := s.blobs.Remove(item.StoragePath); err != nil {
			s.logger.Warn("removing stored file failed", "item_id", itemID, "path", item.StoragePath, "error", err)
		}
	}

	s.recompile(ctx, ownerID, item.AgentID)
	return nil
}

// List returns all of the agent's items in creation order.
func (s *Service) List(ctx context.Context, ownerID, agentID string) ([]storage.TrainingItem, error) {
	if _, err := s.store.GetAgent(ownerID, agentID); err != nil {
		return nil, err
	}
	return s.store.ListTrainingItems(ownerID, agentID)
}

// Compile recompiles the agent's system prompt from its current done items
// and persists the prompt plus the total training character count.
func (s *Service) Compile(ctx context.Context, ownerID, agentID string) error {
	agent, err := s.store.GetAgent(ownerID, agentID)
	if err != nil {
		return err
	}

	items, err := s.store.ListTrainingItems(ownerID, agentID)
	if err != nil {
		return fmt.Errorf("listing training items: %w", err)
	}

	var done []storage.TrainingItem
	for _, item := range items {
		if item.ProcessingStatus == storage.StatusDone {
			done = append(done, item)
		}
	}

	res := prompt.Compile(agent, done)
	if err := s.store.UpdateAgentPrompt(ownerID, agentID, res.Prompt, res.TotalChars); err != nil {
		return fmt.Errorf("persisting compiled prompt: %w", err)
	}
	return nil
}

// recompile is the best-effort post-mutation trigger. A stale prompt is
// recoverable by a later compile, so failures are logged and swallowed.
func (s *Service) recompile(ctx context.Context, ownerID, agentID string) {
	if err := s.Compile(ctx, ownerID, agentID); err != nil {
		s.logger.Warn("prompt recompilation failed", "agent_id", agentID, "error", err)
	}
}

// runExtraction dispatches to the item type's extractor and writes the
// terminal status, extracted content, char count and error message onto item.
func (s *Service) runExtraction(ctx context.Context, ownerID string, item *storage.TrainingItem) {
	switch item.Type {
	case storage.ItemTypeText:
		s.finish(item, extract.Text(item.Content), nil)

	case storage.ItemTypeWebsite:
		text, pageTitle, err := s.websites.Extract(ctx, item.Content)
		if err == nil && item.Title == "" && pageTitle != "" {
			item.Title = pageTitle
			if titleErr := s.store.UpdateTrainingItemTitle(item.ID, pageTitle); titleErr != nil {
				s.logger.Warn("storing page title failed", "item_id", item.ID, "error", titleErr)
			}
		}
		s.finish(item, text, err)

	case storage.ItemTypeDocument:
		text, err := s.documents.Extract(ctx, item.StoragePath, item.FileName)
		s.finish(item, text, err)

	case storage.ItemTypeVideo:
		item.ProcessingStatus = storage.StatusPending
		item.ProcessingError = videoPendingMessage
	}
}

// finish records the terminal extraction state on the item.
func (s *Service) finish(item *storage.TrainingItem, text string, err error) {
	if err != nil {
		item.ProcessingStatus = storage.StatusError
		item.ProcessingError = userMessage(err)
		item.ExtractedContent = ""
		item.CharCount = 0
		if errors.Is(err, extract.ErrProviderNotConfigured) {
			s.logger.Error("document extraction provider not configured", "item_id", item.ID)
		}
		return
	}
	item.ProcessingStatus = storage.StatusDone
	item.ProcessingError = ""
	item.ExtractedContent = text
	item.CharCount = len(text)
}

// userMessage picks the user-displayable text for an extraction failure.
func userMessage(err error) string {
	var extractionErr *extract.ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr.Cause
	}
	if errors.Is(err, extract.ErrProviderNotConfigured) {
		return "extração de documentos não está configurada; fale com o suporte"
	}
	return err.Error()
}

func validateInput(itemType, content string, file *FileUpload) error {
	switch itemType {
	case storage.ItemTypeText, storage.ItemTypeWebsite, storage.ItemTypeVideo:
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("%w: conteúdo é obrigatório", ErrInvalidInput)
		}
	case storage.ItemTypeDocument:
		if file == nil || file.Name == "" || len(file.Data) == 0 {
			return fmt.Errorf("%w: arquivo é obrigatório para itens do tipo documento", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: tipo de item desconhecido %q", ErrInvalidInput, itemType)
	}
	return nil
}
