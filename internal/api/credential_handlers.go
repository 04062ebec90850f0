package api

import (
	"encoding/json"
	"net/http"

	"hirevoice/internal/broker"
)

// writeCredential maps the broker's two-outcome result onto the wire:
// {"signed_url"} for the signed path, {"agent_id"} for fallback. A fallback
// without any agent configured is the one unservable case.
func writeCredential(w http.ResponseWriter, cred broker.Credential) {
	switch cred.Type {
	case broker.CredentialSigned:
		writeJSON(w, http.StatusOK, map[string]string{"signed_url": cred.SignedURL, "agent_id": cred.AgentID})
	default:
		if cred.AgentID == "" {
			writeError(w, http.StatusServiceUnavailable, "no agent available for this interview")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"agent_id": cred.AgentID})
	}
}

// GetSignedURLForJobHandler issues a connection credential for a job-scoped
// interview, resolving the job's dedicated agent when it has one.
// @Summary Get signed connection URL for a job
// @Tags credentials
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /get_elevenlabs_signed_url_for_job [post]
func (a *API) GetSignedURLForJobHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: job_id")
		return
	}

	cred := a.broker.GetConnectionCredential(r.Context(), broker.Request{JobID: req.JobID})
	writeCredential(w, cred)
}

// GetSignedURLHandler issues a connection credential for a legacy/public
// interview identified by agent id.
// @Summary Get signed connection URL
// @Tags credentials
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /get_elevenlabs_signed_url [post]
func (a *API) GetSignedURLHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: agent_id")
		return
	}

	cred := a.broker.GetConnectionCredential(r.Context(), broker.Request{AgentID: req.AgentID})
	writeCredential(w, cred)
}
