// Package agents manages assistant configurations: the wizard-time create
// flow, profile and settings edits, and deletion with file cleanup.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/atendai/atenda/internal/storage"
)

// ErrInvalidInput marks bad or missing required input on agent operations.
var ErrInvalidInput = errors.New("invalid input")

const defaultTimezone = "America/Sao_Paulo"

// Persona field limits. The compiled prompt budgets only the knowledge
// section, so bounding the persona inputs here is what keeps the whole
// prompt under its cap.
const (
	maxNameChars               = 50
	maxCompanyDescriptionChars = 500
)

// Store is the persistence surface the manager needs.
type Store interface {
	CreateAgent(a storage.Agent) error
	GetAgent(userID, id string) (storage.Agent, error)
	ListAgents(userID string) ([]storage.Agent, error)
	UpdateAgent(a storage.Agent) error
	DeleteAgent(userID, id string) error
	ListTrainingItems(userID, agentID string) ([]storage.TrainingItem, error)
}

// BlobStore removes stored document files when their agent goes away.
type BlobStore interface {
	Remove(path string) error
}

// Compiler regenerates an agent's system prompt after configuration edits.
type Compiler interface {
	Compile(ctx context.Context, ownerID, agentID string) error
}

// CreateInput carries the wizard fields for a new agent. Flags the wizard
// does not expose start disabled.
type CreateInput struct {
	Name               string `json:"name"`
	Objective          string `json:"objective"`
	CompanyDescription string `json:"company_description"`
	TransferToHuman    bool   `json:"transfer_to_human"`
	UseEmojis          bool   `json:"use_emojis"`
	RestrictTopics     bool   `json:"restrict_topics"`
	SplitResponses     bool   `json:"split_responses"`
}

// ProfileInput carries the editable persona fields. Nil means "leave as is"
// so partial PATCH bodies work.
type ProfileInput struct {
	Name               *string `json:"name"`
	Objective          *string `json:"objective"`
	CompanyDescription *string `json:"company_description"`
}

// SettingsInput carries the editable behavior fields. Nil means "leave as is".
type SettingsInput struct {
	TransferToHuman   *bool   `json:"transfer_to_human"`
	SummaryOnTransfer *bool   `json:"summary_on_transfer"`
	UseEmojis         *bool   `json:"use_emojis"`
	SignAgentName     *bool   `json:"sign_agent_name"`
	RestrictTopics    *bool   `json:"restrict_topics"`
	SplitResponses    *bool   `json:"split_responses"`
	AllowReminders    *bool   `json:"allow_reminders"`
	SmartSearch       *bool   `json:"smart_search"`
	Timezone          *string `json:"timezone"`
	ResponseTime      *string `json:"response_time"`
	InteractionLimit  *int    `json:"interaction_limit"`
	IsActive          *bool   `json:"is_active"`
}

// Manager orchestrates agent operations for the API layer.
type Manager struct {
	store    Store
	blobs    BlobStore
	compiler Compiler
	logger   *slog.Logger
}

// NewManager creates a Manager with the given dependencies.
func NewManager(store Store, blobs BlobStore, compiler Compiler) *Manager {
	return &Manager{
		store:    store,
		blobs:    blobs,
		compiler: compiler,
		logger:   slog.Default(),
	}
}

// Create persists a new agent for the owner and compiles its initial prompt.
func (m *Manager) Create(ctx context.Context, ownerID string, in CreateInput) (storage.Agent, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return storage.Agent{}, err
	}
	if err := validateObjective(in.Objective); err != nil {
		return storage.Agent{}, err
	}
	description, err := validateCompanyDescription(in.CompanyDescription)
	if err != nil {
		return storage.Agent{}, err
	}

	now := time.Now().UTC()
	agent := storage.Agent{
		ID:                 uuid.New().String(),
		UserID:             ownerID,
		Name:               name,
		Objective:          in.Objective,
		CompanyDescription: description,
		TransferToHuman:    in.TransferToHuman,
		UseEmojis:          in.UseEmojis,
		RestrictTopics:     in.RestrictTopics,
		SplitResponses:     in.SplitResponses,
		Timezone:           defaultTimezone,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.store.CreateAgent(agent); err != nil {
		return storage.Agent{}, fmt.Errorf("creating agent: %w", err)
	}

	// A fresh agent has no training items; the initial prompt still carries
	// persona and behavior rules.
	m.recompile(ctx, ownerID, agent.ID)
	return m.store.GetAgent(ownerID, agent.ID)
}

// Get returns one of the owner's agents.
func (m *Manager) Get(ctx context.Context, ownerID, agentID string) (storage.Agent, error) {
	return m.store.GetAgent(ownerID, agentID)
}

// List returns all of the owner's agents.
func (m *Manager) List(ctx context.Context, ownerID string) ([]storage.Agent, error) {
	return m.store.ListAgents(ownerID)
}

// UpdateProfile applies persona edits and recompiles the prompt.
func (m *Manager) UpdateProfile(ctx context.Context, ownerID, agentID string, in ProfileInput) (storage.Agent, error) {
	agent, err := m.store.GetAgent(ownerID, agentID)
	if err != nil {
		return storage.Agent{}, err
	}

	if in.Name != nil {
		name, err := validateName(*in.Name)
		if err != nil {
			return storage.Agent{}, err
		}
		agent.Name = name
	}
	if in.Objective != nil {
		if err := validateObjective(*in.Objective); err != nil {
			return storage.Agent{}, err
		}
		agent.Objective = *in.Objective
	}
	if in.CompanyDescription != nil {
		description, err := validateCompanyDescription(*in.CompanyDescription)
		if err != nil {
			return storage.Agent{}, err
		}
		agent.CompanyDescription = description
	}

	return m.save(ctx, ownerID, agent)
}

// UpdateSettings applies behavior edits and recompiles the prompt.
func (m *Manager) UpdateSettings(ctx context.Context, ownerID, agentID string, in SettingsInput) (storage.Agent, error) {
	agent, err := m.store.GetAgent(ownerID, agentID)
	if err != nil {
		return storage.Agent{}, err
	}

	applyBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	applyBool(&agent.TransferToHuman, in.TransferToHuman)
	applyBool(&agent.SummaryOnTransfer, in.SummaryOnTransfer)
	applyBool(&agent.UseEmojis, in.UseEmojis)
	applyBool(&agent.SignAgentName, in.SignAgentName)
	applyBool(&agent.RestrictTopics, in.RestrictTopics)
	applyBool(&agent.SplitResponses, in.SplitResponses)
	applyBool(&agent.AllowReminders, in.AllowReminders)
	applyBool(&agent.SmartSearch, in.SmartSearch)
	if in.Timezone != nil {
		agent.Timezone = *in.Timezone
	}
	if in.ResponseTime != nil {
		agent.ResponseTime = *in.ResponseTime
	}
	if in.InteractionLimit != nil {
		if *in.InteractionLimit < 0 {
			return storage.Agent{}, fmt.Errorf("%w: limite de interações não pode ser negativo", ErrInvalidInput)
		}
		agent.InteractionLimit = *in.InteractionLimit
	}
	applyBool(&agent.IsActive, in.IsActive)

	return m.save(ctx, ownerID, agent)
}

// Delete removes the agent and its training items and cleans up their stored
// files best-effort. Row deletion cascades to items; file cleanup failure
// never blocks the deletion.
func (m *Manager) Delete(ctx context.Context, ownerID, agentID string) error {
	items, err := m.store.ListTrainingItems(ownerID, agentID)
	if err != nil {
		return err
	}

	if err := m.store.DeleteAgent(ownerID, agentID); err != nil {
		return err
	}

	for _, item := range items {
		if item.StoragePath == "" {
			continue
		}
		if err := m.blobs.Remove(item.StoragePath); err != nil {
			m.logger.Warn("removing stored file failed", "item_id", item.ID, "path", item.StoragePath, "error", err)
		}
	}
	return nil
}

func (m *Manager) save(ctx context.Context, ownerID string, agent storage.Agent) (storage.Agent, error) {
	agent.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateAgent(agent); err != nil {
		return storage.Agent{}, fmt.Errorf("updating agent: %w", err)
	}
	m.recompile(ctx, ownerID, agent.ID)
	return m.store.GetAgent(ownerID, agent.ID)
}

// recompile keeps the derived prompt in sync after edits. A stale prompt is
// recoverable by a later compile, so failures are logged and swallowed.
func (m *Manager) recompile(ctx context.Context, ownerID, agentID string) {
	if err := m.compiler.Compile(ctx, ownerID, agentID); err != nil {
		m.logger.Warn("prompt recompilation failed", "agent_id", agentID, "error", err)
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: nome é obrigatório", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameChars {
		return "", fmt.Errorf("%w: nome deve ter no máximo %d caracteres", ErrInvalidInput, maxNameChars)
	}
	return name, nil
}

func validateCompanyDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > maxCompanyDescriptionChars {
		return "", fmt.Errorf("%w: descrição da empresa deve ter no máximo %d caracteres", ErrInvalidInput, maxCompanyDescriptionChars)
	}
	return description, nil
}

func validateObjective(objective string) error {
	switch objective {
	case storage.ObjectiveSupport, storage.ObjectiveSales, storage.ObjectivePersonal:
		return nil
	default:
		return fmt.Errorf("%w: objetivo desconhecido %q", ErrInvalidInput, objective)
	}
}
