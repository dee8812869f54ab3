package api

import (
	"net/http"

	"github.com/atendai/atenda/internal/agents"
	"github.com/atendai/atenda/internal/storage"
)

func handleCreateAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in agents.CreateInput
		if !decodeBody(w, r, &in) {
			return
		}

		agent, err := deps.Agents.Create(r.Context(), ownerID(r), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, agent)
	}
}

func handleListAgents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Agents.List(r.Context(), ownerID(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if list == nil {
			list = []storage.Agent{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGetAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := deps.Agents.Get(r.Context(), ownerID(r), urlParam(r, "agentID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	}
}

func handleUpdateProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in agents.ProfileInput
		if !decodeBody(w, r, &in) {
			return
		}

		agent, err := deps.Agents.UpdateProfile(r.Context(), ownerID(r), urlParam(r, "agentID"), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	}
}

func handleUpdateSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in agents.SettingsInput
		if !decodeBody(w, r, &in) {
			return
		}

		agent, err := deps.Agents.UpdateSettings(r.Context(), ownerID(r), urlParam(r, "agentID"), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	}
}

func handleDeleteAgent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Agents.Delete(r.Context(), ownerID(r), urlParam(r, "agentID")); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
