package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
)

// Feedback is a candidate's post-session rating of the interview experience.
// It is logged, not stored: the log pipeline is the destination.
type Feedback struct {
	Score     float64 `json:"score"`
	Text      string  `json:"text,omitempty"`
	LogType   string  `json:"log_type"`
	UserID    string  `json:"user_id"`
	SessionID string  `json:"session_id"`
}

// FeedbackHandler collects session feedback.
// @Summary Collect session feedback
// @Tags feedback
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /feedback [post]
func (a *API) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var fb Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	fb.LogType = "feedback"
	if fb.UserID == "" {
		fb.UserID = uuid.New().String()
	}
	if fb.SessionID == "" {
		fb.SessionID = uuid.New().String()
	}

	entry, err := json.Marshal(fb)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}
	log.Printf("[Feedback] %s", entry)

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
