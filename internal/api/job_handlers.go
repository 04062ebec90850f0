package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"hirevoice/internal/agent"
	"hirevoice/internal/prompt"
	"hirevoice/internal/storage"
)

type createJobRequest struct {
	UserID  string `json:"user_id"`
	JobData struct {
		Title             string   `json:"title"`
		Description       string   `json:"description"`
		Skills            []string `json:"skills"`
		Difficulty        string   `json:"difficulty"`
		InterviewDuration int      `json:"interviewDuration"`
		CustomPrompt      string   `json:"customPrompt"`
	} `json:"job_data"`
}

// CreateJobHandler creates a job posting and provisions its dedicated agent.
// Provisioning failure is absorbed: the job is created either way and
// interviews fall back to the shared public agent.
// @Summary Create job
// @Description Create a job posting with a provisioned voice interviewer
// @Tags jobs
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /create_job [post]
func (a *API) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: user_id")
		return
	}

	difficulty := storage.Difficulty(req.JobData.Difficulty)
	switch difficulty {
	case storage.DifficultyJunior, storage.DifficultyMid, storage.DifficultySenior:
	case "":
		difficulty = storage.DifficultyMid
	default:
		writeError(w, http.StatusBadRequest, "difficulty must be junior, mid or senior")
		return
	}

	duration := req.JobData.InterviewDuration
	switch duration {
	case 5, 10, 15:
	case 0:
		duration = 10
	default:
		writeError(w, http.StatusBadRequest, "interviewDuration must be 5, 10 or 15 minutes")
		return
	}

	job := &storage.Job{
		CreatedBy:         req.UserID,
		Title:             req.JobData.Title,
		Description:       req.JobData.Description,
		Skills:            req.JobData.Skills,
		Difficulty:        difficulty,
		InterviewDuration: duration,
		CustomPrompt:      req.JobData.CustomPrompt,
	}

	// fail fast on input the composer would reject
	if _, err := prompt.BuildInterviewPrompt(job); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.store.CreateJob(r.Context(), job); err != nil {
		log.Printf("[API] Failed to create job: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	resp := map[string]interface{}{
		"status":     "success",
		"id":         job.ID,
		"shareToken": job.ShareToken,
	}

	profile, err := a.provisioner.Provision(r.Context(), job)
	if err != nil {
		// the job exists and works without a dedicated agent
		log.Printf("[API] Agent provisioning failed for job %s: %v", job.ID, err)
	} else {
		resp["agent_id"] = profile.AgentID
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetJobsHandler lists jobs created by a user.
// @Summary List jobs
// @Tags jobs
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /get_jobs [post]
func (a *API) GetJobsHandler(w http.ResponseWriter, r *http.Request) {
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

	jobs, err := a.store.ListJobsByUser(r.Context(), req.UserID, req.Limit)
	if err != nil {
		log.Printf("[API] Failed to list jobs for user %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

// GetJobByTokenHandler resolves a job from its public share token.
// @Summary Get job by share token
// @Tags jobs
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /get_job_by_token [post]
func (a *API) GetJobByTokenHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		ShareToken string `json:"share_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ShareToken == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: share_token")
		return
	}

	job, err := a.store.GetJobByToken(r.Context(), req.ShareToken)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"job": job})
}

// GetJobByIDHandler returns a job by id.
// @Summary Get job by id
// @Tags jobs
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /get_job_by_id [post]
func (a *API) GetJobByIDHandler(w http.ResponseWriter, r *http.Request) {
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

	job, err := a.store.GetJob(r.Context(), req.JobID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"job": job})
}

// ReprovisionAgentHandler refreshes a job's agent instructions, provisioning
// from scratch when the job has none. The agent id is reused, never rotated.
// @Summary Reprovision a job's agent
// @Tags agents
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /reprovision_agent [post]
func (a *API) ReprovisionAgentHandler(w http.ResponseWriter, r *http.Request) {
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

	profile, err := a.provisioner.Reprovision(r.Context(), req.JobID)
	if errors.Is(err, agent.ErrProvisioning) {
		writeError(w, http.StatusBadGateway, "agent provisioning failed")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "agent_id": profile.AgentID})
}

// DeprovisionAgentHandler queues best-effort deletion of a job's agent.
// @Summary Deprovision a job's agent
// @Tags agents
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /deprovision_agent [post]
func (a *API) DeprovisionAgentHandler(w http.ResponseWriter, r *http.Request) {
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

	job, err := a.store.GetJob(r.Context(), req.JobID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}
	if job.Agent == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	a.queueDeprovisionJob(job)
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}
