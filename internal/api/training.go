package api

import (
	"encoding/base64"
	"net/http"

	"github.com/atendai/atenda/internal/storage"
	"github.com/atendai/atenda/internal/training"
)

// CreateItemRequest is the JSON body for a new training item. Document items
// carry the file inline, base64-encoded.
type CreateItemRequest struct {
	Type    string       `json:"type"`
	Content string       `json:"content"`
	Title   string       `json:"title"`
	File    *FilePayload `json:"file"`
}

// FilePayload is an uploaded document: metadata plus base64 content.
type FilePayload struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

func handleCreateItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateItemRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var file *training.FileUpload
		if req.File != nil {
			data, err := base64.StdEncoding.DecodeString(req.File.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 file content")
				return
			}
			file = &training.FileUpload{
				Name: req.File.Name,
				Size: int64(len(data)),
				Type: req.File.Type,
				Data: data,
			}
		}

		item, err := deps.Training.Create(r.Context(), ownerID(r), urlParam(r, "agentID"), req.Type, req.Content, req.Title, file)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		// 201 even when extraction failed; the failure is on the record.
		writeJSON(w, http.StatusCreated, item)
	}
}

func handleListItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Training.List(r.Context(), ownerID(r), urlParam(r, "agentID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if items == nil {
			items = []storage.TrainingItem{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleReprocessItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := deps.Training.Reprocess(r.Context(), ownerID(r), urlParam(r, "agentID"), urlParam(r, "itemID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleDeleteItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Training.Delete(r.Context(), ownerID(r), urlParam(r, "itemID")); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleCompile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerID(r)
		agentID := urlParam(r, "agentID")
		if err := deps.Training.Compile(r.Context(), owner, agentID); err != nil {
			writeDomainError(w, err)
			return
		}

		agent, err := deps.Agents.Get(r.Context(), owner, agentID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"system_prompt":        agent.SystemPrompt,
			"total_training_chars": agent.TotalTrainingChars,
		})
	}
}
