// Package storage persists agents and training items in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with owner-scoped methods for agents and
// training items.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "atenda.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Agents ---

const agentColumns = `id, user_id, name, objective, company_description,
	transfer_to_human, summary_on_transfer, use_emojis, sign_agent_name,
	restrict_topics, split_responses, allow_reminders, smart_search,
	timezone, response_time, interaction_limit, is_active,
	system_prompt, total_training_chars, created_at, updated_at`

func (s *Store) CreateAgent(a Agent) error {
	_, err := s.db.Exec(`
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Objective, a.CompanyDescription,
		a.TransferToHuman, a.SummaryOnTransfer, a.UseEmojis, a.SignAgentName,
		a.RestrictTopics, a.SplitResponses, a.AllowReminders, a.SmartSearch,
		a.Timezone, a.ResponseTime, a.InteractionLimit, a.IsActive,
		nullIfEmpty(a.SystemPrompt), a.TotalTrainingChars,
		a.CreatedAt.UTC().Format(time.RFC3339), a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetAgent(userID, id string) (Agent, error) {
	row := s.db.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE id = ? AND user_id = ?`, id, userID)
	return scanAgent(row)
}

func (s *Store) ListAgents(userID string) ([]Agent, error) {
	rows, err := s.db.Query(`SELECT `+agentColumns+` FROM agents WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListAllAgents returns every agent regardless of owner. Used by maintenance
// commands that walk the whole database.
func (s *Store) ListAllAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT ` + agentColumns + ` FROM agents ORDER BY user_id ASC, created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent persists the mutable persona/behavior fields. Derived prompt
// fields are updated only through UpdateAgentPrompt.
func (s *Store) UpdateAgent(a Agent) error {
	res, err := s.db.Exec(`
		UPDATE agents SET
			name = ?, objective = ?, company_description = ?,
			transfer_to_human = ?, summary_on_transfer = ?, use_emojis = ?,
			sign_agent_name = ?, restrict_topics = ?, split_responses = ?,
			allow_reminders = ?, smart_search = ?,
			timezone = ?, response_time = ?, interaction_limit = ?, is_active = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?`,
		a.Name, a.Objective, a.CompanyDescription,
		a.TransferToHuman, a.SummaryOnTransfer, a.UseEmojis,
		a.SignAgentName, a.RestrictTopics, a.SplitResponses,
		a.AllowReminders, a.SmartSearch,
		a.Timezone, a.ResponseTime, a.InteractionLimit, a.IsActive,
		time.Now().UTC().Format(time.RFC3339),
		a.ID, a.UserID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateAgentPrompt stores the compiled system prompt and the total available
// training character count.
func (s *Store) UpdateAgentPrompt(userID, id, prompt string, totalChars int) error {
	res, err := s.db.Exec(`
		UPDATE agents SET system_prompt = ?, total_training_chars = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		prompt, totalChars, time.Now().UTC().Format(time.RFC3339), id, userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteAgent removes the agent row; training items cascade via foreign key.
func (s *Store) DeleteAgent(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM agents WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- Training items ---

const itemColumns = `t.id, t.agent_id, t.type, t.content, t.title,
	t.file_name, t.file_size, t.file_type, t.storage_path,
	t.extracted_content, t.processing_status, t.processing_error, t.char_count,
	t.created_at`

func (s *Store) CreateTrainingItem(item TrainingItem) error {
	_, err := s.db.Exec(`
		INSERT INTO training_items (id, agent_id, type, content, title,
			file_name, file_size, file_type, storage_path,
			extracted_content, processing_status, processing_error, char_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.AgentID, item.Type, item.Content, item.Title,
		nullIfEmpty(item.FileName), nullIfZero(item.FileSize), nullIfEmpty(item.FileType), nullIfEmpty(item.StoragePath),
		item.ExtractedContent, item.ProcessingStatus, nullIfEmpty(item.ProcessingError), item.CharCount,
		item.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetTrainingItem loads an item, scoped through its owning agent's user.
func (s *Store) GetTrainingItem(userID, itemID string) (TrainingItem, error) {
	row := s.db.QueryRow(`
		SELECT `+itemColumns+`
		FROM training_items t
		JOIN agents a ON a.id = t.agent_id
		WHERE t.id = ? AND a.user_id = ?`, itemID, userID)
	return scanItem(row)
}

// ListTrainingItems returns the agent's items in creation order.
func (s *Store) ListTrainingItems(userID, agentID string) ([]TrainingItem, error) {
	rows, err := s.db.Query(`
		SELECT `+itemColumns+`
		FROM training_items t
		JOIN agents a ON a.id = t.agent_id
		WHERE t.agent_id = ? AND a.user_id = ?
		ORDER BY t.created_at ASC, t.id ASC`, agentID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TrainingItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateTrainingItemResult records the terminal state of one extraction run.
func (s *Store) UpdateTrainingItemResult(itemID, status, extracted, errMsg string, charCount int) error {
	res, err := s.db.Exec(`
		UPDATE training_items
		SET processing_status = ?, extracted_content = ?, processing_error = ?, char_count = ?
		WHERE id = ?`,
		status, extracted, nullIfEmpty(errMsg), charCount, itemID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateTrainingItemTitle sets a derived title (e.g. a fetched page title)
// when the user submitted none.
func (s *Store) UpdateTrainingItemTitle(itemID, title string) error {
	res, err := s.db.Exec(`UPDATE training_items SET title = ? WHERE id = ?`, title, itemID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteTrainingItem(userID, itemID string) error {
	res, err := s.db.Exec(`
		DELETE FROM training_items
		WHERE id = ? AND agent_id IN (SELECT id FROM agents WHERE user_id = ?)`,
		itemID, userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (Agent, error) {
	var a Agent
	var systemPrompt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Objective, &a.CompanyDescription,
		&a.TransferToHuman, &a.SummaryOnTransfer, &a.UseEmojis, &a.SignAgentName,
		&a.RestrictTopics, &a.SplitResponses, &a.AllowReminders, &a.SmartSearch,
		&a.Timezone, &a.ResponseTime, &a.InteractionLimit, &a.IsActive,
		&systemPrompt, &a.TotalTrainingChars, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, err
	}
	a.SystemPrompt = systemPrompt.String
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Agent{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Agent{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return a, nil
}

func scanItem(row rowScanner) (TrainingItem, error) {
	var item TrainingItem
	var fileName, fileType, storagePath, processingError sql.NullString
	var fileSize sql.NullInt64
	var createdAt string
	err := row.Scan(
		&item.ID, &item.AgentID, &item.Type, &item.Content, &item.Title,
		&fileName, &fileSize, &fileType, &storagePath,
		&item.ExtractedContent, &item.ProcessingStatus, &processingError, &item.CharCount,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return TrainingItem{}, ErrNotFound
	}
	if err != nil {
		return TrainingItem{}, err
	}
	item.FileName = fileName.String
	item.FileSize = fileSize.Int64
	item.FileType = fileType.String
	item.StoragePath = storagePath.String
	item.ProcessingError = processingError.String
	if item.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return TrainingItem{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return item, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
