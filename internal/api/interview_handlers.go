package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"hirevoice/internal/storage"
)

type createInterviewRequest struct {
	JobID          string `json:"job_id"`
	ShareToken     string `json:"share_token"`
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`
}

// CreateInterviewHandler starts a candidate session record. The job may be
// referenced by id or, on the public entry path, by share token; both are
// optional for legacy non-job interviews.
// @Summary Create interview
// @Tags interviews
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /create_interview [post]
func (a *API) CreateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.CandidateName == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: candidate_name")
		return
	}

	jobID := req.JobID
	if jobID == "" && req.ShareToken != "" {
		job, err := a.store.GetJobByToken(r.Context(), req.ShareToken)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to resolve share token")
			return
		}
		jobID = job.ID
	}

	iv := &storage.Interview{
		JobID:          jobID,
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
	}
	if err := a.store.CreateInterview(r.Context(), iv); err != nil {
		log.Printf("[API] Failed to create interview: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create interview")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "id": iv.ID})
}

type updateInterviewRequest struct {
	InterviewID string `json:"interview_id"`
	Updates     struct {
		Status         string     `json:"status"`
		Transcript     string     `json:"transcript"`
		CompletedAt    *time.Time `json:"completedAt"`
		ConversationID string     `json:"conversationId"`
	} `json:"updates"`
}

// UpdateInterviewHandler finalizes an interview with its transcript. The
// write is retried with backoff before an error reaches the candidate, and a
// completed interview is never rewritten.
// @Summary Finalize interview
// @Tags interviews
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /update_interview [post]
func (a *API) UpdateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req updateInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.InterviewID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: interview_id")
		return
	}
	if req.Updates.Status != string(storage.StatusCompleted) {
		writeError(w, http.StatusBadRequest, "only status \"completed\" is supported")
		return
	}

	completedAt := time.Now().UTC()
	if req.Updates.CompletedAt != nil {
		completedAt = *req.Updates.CompletedAt
	}

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(r.Context(), backoff, func(ctx context.Context) error {
		err := a.store.FinalizeInterview(ctx, req.InterviewID, req.Updates.Transcript, completedAt, req.Updates.ConversationID)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrInterviewFinalized) || errors.Is(err, storage.ErrNotFound) {
			return err // permanent
		}
		log.Printf("[API] Finalize attempt failed for interview %s: %v", req.InterviewID, err)
		return retry.RetryableError(err)
	})
	switch {
	case errors.Is(err, storage.ErrInterviewFinalized):
		writeError(w, http.StatusConflict, "interview already finalized")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "interview not found")
		return
	case err != nil:
		log.Printf("[API] Failed to finalize interview %s: %v", req.InterviewID, err)
		writeError(w, http.StatusInternalServerError, "failed to save transcript")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// GetUserInterviewsForJobsHandler lists interviews across every job a user owns.
// @Summary List interviews for a user's jobs
// @Tags interviews
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /get_user_interviews_for_jobs [post]
func (a *API) GetUserInterviewsForJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Limit  int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: user_id")
		return
	}

	interviews, err := a.store.ListInterviewsByUserJobs(r.Context(), req.UserID, req.Limit)
	if err != nil {
		log.Printf("[API] Failed to list interviews for user %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve interviews")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"interviews": interviews, "count": len(interviews)})
}

// GetJobInterviewsHandler lists interviews conducted for one job.
// @Summary List interviews for a job
// @Tags interviews
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /get_job_interviews [post]
func (a *API) GetJobInterviewsHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		JobID string `json:"job_id"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: job_id")
		return
	}

	interviews, err := a.store.ListInterviewsByJob(r.Context(), req.JobID, req.Limit)
	if err != nil {
		log.Printf("[API] Failed to list interviews for job %s: %v", req.JobID, err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve interviews")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"interviews": interviews, "count": len(interviews)})
}

// GetInterviewByIDHandler returns one interview.
// @Summary Get interview by id
// @Tags interviews
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /get_interview_by_id [post]
func (a *API) GetInterviewByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		InterviewID string `json:"interview_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.InterviewID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: interview_id")
		return
	}

	iv, err := a.store.GetInterview(r.Context(), req.InterviewID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "interview not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve interview")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"interview": iv})
}
