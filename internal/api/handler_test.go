package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirevoice/internal/agent"
	"hirevoice/internal/broker"
	"hirevoice/internal/storage"
)

type fakeStore struct {
	mu         sync.Mutex
	jobs       map[string]*storage.Job
	interviews map[string]*storage.Interview
	seq        int

	finalizeTransientFailures int
	finalizeCalls             int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:       map[string]*storage.Job{},
		interviews: map[string]*storage.Interview{},
	}
}

func (s *fakeStore) CreateJob(ctx context.Context, job *storage.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	job.ID = fmt.Sprintf("job-%d", s.seq)
	job.ShareToken = fmt.Sprintf("token-%d", s.seq)
	job.CreatedAt = time.Now().UTC()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return job, nil
}

func (s *fakeStore) GetJobByToken(ctx context.Context, shareToken string) (*storage.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ShareToken == shareToken {
			return job, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) ListJobsByUser(ctx context.Context, userID string, limit int) ([]*storage.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Job
	for _, job := range s.jobs {
		if job.CreatedBy == userID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateInterview(ctx context.Context, iv *storage.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	iv.ID = fmt.Sprintf("interview-%d", s.seq)
	iv.Status = storage.StatusInProgress
	iv.StartedAt = time.Now().UTC()
	s.interviews[iv.ID] = iv
	return nil
}

func (s *fakeStore) FinalizeInterview(ctx context.Context, id, transcript string, completedAt time.Time, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeCalls++
	if s.finalizeTransientFailures > 0 {
		s.finalizeTransientFailures--
		return errors.New("connection reset")
	}
	iv, ok := s.interviews[id]
	if !ok {
		return storage.ErrNotFound
	}
	if iv.Status != storage.StatusInProgress {
		return storage.ErrInterviewFinalized
	}
	iv.Status = storage.StatusCompleted
	iv.Transcript = transcript
	iv.CompletedAt = &completedAt
	iv.ConversationID = conversationID
	return nil
}

func (s *fakeStore) GetInterview(ctx context.Context, id string) (*storage.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.interviews[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return iv, nil
}

func (s *fakeStore) ListInterviewsByJob(ctx context.Context, jobID string, limit int) ([]*storage.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Interview
	for _, iv := range s.interviews {
		if iv.JobID == jobID {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (s *fakeStore) ListInterviewsByUserJobs(ctx context.Context, userID string, limit int) ([]*storage.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Interview
	for _, iv := range s.interviews {
		if job, ok := s.jobs[iv.JobID]; ok && job.CreatedBy == userID {
			out = append(out, iv)
		}
	}
	return out, nil
}

type fakeProvisioner struct {
	mu            sync.Mutex
	provisionErr  error
	provisions    int
	reprovisions  int
	deprovisions  int
	deprovisioned chan string
}

func (f *fakeProvisioner) Provision(ctx context.Context, job *storage.Job) (*storage.AgentProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisions++
	if f.provisionErr != nil {
		return nil, f.provisionErr
	}
	profile := &storage.AgentProfile{AgentID: "agent-" + job.ID}
	job.Agent = profile
	return profile, nil
}

func (f *fakeProvisioner) Reprovision(ctx context.Context, jobID string) (*storage.AgentProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reprovisions++
	if f.provisionErr != nil {
		return nil, f.provisionErr
	}
	return &storage.AgentProfile{AgentID: "agent-" + jobID}, nil
}

func (f *fakeProvisioner) Deprovision(ctx context.Context, job *storage.Job) error {
	f.mu.Lock()
	f.deprovisions++
	ch := f.deprovisioned
	f.mu.Unlock()
	if ch != nil {
		ch <- job.ID
	}
	return nil
}

type fakeBroker struct {
	cred broker.Credential
}

func (f *fakeBroker) GetConnectionCredential(ctx context.Context, req broker.Request) broker.Credential {
	return f.cred
}

func newTestAPI(store *fakeStore, prov *fakeProvisioner, b *fakeBroker) *API {
	if prov == nil {
		prov = &fakeProvisioner{}
	}
	if b == nil {
		b = &fakeBroker{cred: broker.Credential{Type: broker.CredentialFallback, AgentID: "agent-default"}}
	}
	return NewAPI(store, prov, b)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func validJobRequest() map[string]interface{} {
	return map[string]interface{}{
		"user_id": "user-1",
		"job_data": map[string]interface{}{
			"title":             "Backend Engineer",
			"description":       "Payments team",
			"skills":            []string{"Go", "Postgres"},
			"difficulty":        "senior",
			"interviewDuration": 15,
		},
	}
}

func TestCreateJob(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)

	w := postJSON(t, api.CreateJobHandler, validJobRequest())
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "job-1", resp["id"])
	assert.Equal(t, "token-1", resp["shareToken"])
	assert.Equal(t, "agent-job-1", resp["agent_id"])

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, storage.DifficultySenior, job.Difficulty)
	assert.Equal(t, 15, job.InterviewDuration)
}

// Job creation succeeds even when agent provisioning fails; the response just
// omits the agent id and sessions will use the shared fallback agent.
func TestCreateJobProvisioningFailureAbsorbed(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{provisionErr: fmt.Errorf("%w: provider 500", agent.ErrProvisioning)}
	api := newTestAPI(store, prov, nil)

	w := postJSON(t, api.CreateJobHandler, validJobRequest())
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "success", resp["status"])
	assert.NotContains(t, resp, "agent_id")

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Nil(t, job.Agent)
	assert.NotEmpty(t, job.ShareToken, "share link still works without a dedicated agent")
}

func TestCreateJobDefaults(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)

	req := validJobRequest()
	req["job_data"].(map[string]interface{})["difficulty"] = ""
	req["job_data"].(map[string]interface{})["interviewDuration"] = 0

	w := postJSON(t, api.CreateJobHandler, req)
	require.Equal(t, http.StatusOK, w.Code)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, storage.DifficultyMid, job.Difficulty)
	assert.Equal(t, 10, job.InterviewDuration)
}

func TestCreateJobValidation(t *testing.T) {
	api := newTestAPI(newFakeStore(), nil, nil)

	cases := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"missing user", func(r map[string]interface{}) { r["user_id"] = "" }},
		{"bad difficulty", func(r map[string]interface{}) {
			r["job_data"].(map[string]interface{})["difficulty"] = "expert"
		}},
		{"bad duration", func(r map[string]interface{}) {
			r["job_data"].(map[string]interface{})["interviewDuration"] = 42
		}},
		{"missing title", func(r map[string]interface{}) {
			r["job_data"].(map[string]interface{})["title"] = ""
		}},
		{"no skills", func(r map[string]interface{}) {
			r["job_data"].(map[string]interface{})["skills"] = []string{}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validJobRequest()
			tc.mutate(req)
			w := postJSON(t, api.CreateJobHandler, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetJobByToken(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)
	postJSON(t, api.CreateJobHandler, validJobRequest())

	w := postJSON(t, api.GetJobByTokenHandler, map[string]string{"share_token": "token-1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	job := resp["job"].(map[string]interface{})
	assert.Equal(t, "job-1", job["id"])

	w = postJSON(t, api.GetJobByTokenHandler, map[string]string{"share_token": "token-unknown"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateInterviewByShareToken(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)
	postJSON(t, api.CreateJobHandler, validJobRequest())

	w := postJSON(t, api.CreateInterviewHandler, map[string]string{
		"share_token":    "token-1",
		"candidate_name": "Ada",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	id := resp["id"].(string)

	iv, err := store.GetInterview(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "job-1", iv.JobID, "share token should resolve to the job id")
	assert.Equal(t, storage.StatusInProgress, iv.Status)
}

func TestCreateInterviewRequiresName(t *testing.T) {
	api := newTestAPI(newFakeStore(), nil, nil)
	w := postJSON(t, api.CreateInterviewHandler, map[string]string{"job_id": "job-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateInterview(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)
	iv := &storage.Interview{CandidateName: "Ada"}
	require.NoError(t, store.CreateInterview(context.Background(), iv))

	w := postJSON(t, api.UpdateInterviewHandler, map[string]interface{}{
		"interview_id": iv.ID,
		"updates": map[string]interface{}{
			"status":     "completed",
			"transcript": "interviewer: Hello\ncandidate: Hi",
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := store.GetInterview(context.Background(), iv.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, got.Status)
	assert.Equal(t, "interviewer: Hello\ncandidate: Hi", got.Transcript)
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateInterviewRetriesTransientFailure(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)
	iv := &storage.Interview{CandidateName: "Ada"}
	require.NoError(t, store.CreateInterview(context.Background(), iv))
	store.finalizeTransientFailures = 1

	w := postJSON(t, api.UpdateInterviewHandler, map[string]interface{}{
		"interview_id": iv.ID,
		"updates":      map[string]interface{}{"status": "completed", "transcript": "t"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, store.finalizeCalls)
}

func TestUpdateInterviewAlreadyFinalized(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)
	iv := &storage.Interview{CandidateName: "Ada"}
	require.NoError(t, store.CreateInterview(context.Background(), iv))

	body := map[string]interface{}{
		"interview_id": iv.ID,
		"updates":      map[string]interface{}{"status": "completed", "transcript": "first"},
	}
	require.Equal(t, http.StatusOK, postJSON(t, api.UpdateInterviewHandler, body).Code)

	body["updates"].(map[string]interface{})["transcript"] = "second"
	w := postJSON(t, api.UpdateInterviewHandler, body)
	assert.Equal(t, http.StatusConflict, w.Code)

	got, _ := store.GetInterview(context.Background(), iv.ID)
	assert.Equal(t, "first", got.Transcript, "a finalized transcript is never rewritten")
}

func TestUpdateInterviewUnknown(t *testing.T) {
	api := newTestAPI(newFakeStore(), nil, nil)
	w := postJSON(t, api.UpdateInterviewHandler, map[string]interface{}{
		"interview_id": "interview-missing",
		"updates":      map[string]interface{}{"status": "completed"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateInterviewRejectsOtherStatus(t *testing.T) {
	api := newTestAPI(newFakeStore(), nil, nil)
	w := postJSON(t, api.UpdateInterviewHandler, map[string]interface{}{
		"interview_id": "interview-1",
		"updates":      map[string]interface{}{"status": "in_progress"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSignedURLForJobSigned(t *testing.T) {
	b := &fakeBroker{cred: broker.Credential{
		Type:      broker.CredentialSigned,
		SignedURL: "wss://live/session?token=t",
		AgentID:   "agent-1",
	}}
	api := newTestAPI(newFakeStore(), nil, b)

	w := postJSON(t, api.GetSignedURLForJobHandler, map[string]string{"job_id": "job-1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "wss://live/session?token=t", resp["signed_url"])
}

// The fallback response carries only the agent id; clients connect to the
// public endpoint with it.
func TestGetSignedURLForJobFallback(t *testing.T) {
	b := &fakeBroker{cred: broker.Credential{Type: broker.CredentialFallback, AgentID: "agent-shared"}}
	api := newTestAPI(newFakeStore(), nil, b)

	w := postJSON(t, api.GetSignedURLForJobHandler, map[string]string{"job_id": "job-1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "agent-shared", resp["agent_id"])
	assert.NotContains(t, resp, "signed_url")
}

func TestGetSignedURLFallbackWithoutAgent(t *testing.T) {
	b := &fakeBroker{cred: broker.Credential{Type: broker.CredentialFallback}}
	api := newTestAPI(newFakeStore(), nil, b)

	w := postJSON(t, api.GetSignedURLHandler, map[string]string{"agent_id": "agent-x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetSignedURLRequiresAgentID(t *testing.T) {
	api := newTestAPI(newFakeStore(), nil, nil)
	w := postJSON(t, api.GetSignedURLHandler, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReprovisionAgent(t *testing.T) {
	api := newTestAPI(newFakeStore(), nil, nil)
	w := postJSON(t, api.ReprovisionAgentHandler, map[string]string{"job_id": "job-1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "agent-job-1", resp["agent_id"])
}

func TestReprovisionAgentProviderFailure(t *testing.T) {
	prov := &fakeProvisioner{provisionErr: fmt.Errorf("%w: provider down", agent.ErrProvisioning)}
	api := newTestAPI(newFakeStore(), prov, nil)
	w := postJSON(t, api.ReprovisionAgentHandler, map[string]string{"job_id": "job-1"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDeprovisionAgentQueued(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{deprovisioned: make(chan string, 1)}
	api := newTestAPI(store, prov, nil)
	postJSON(t, api.CreateJobHandler, validJobRequest())

	w := postJSON(t, api.DeprovisionAgentHandler, map[string]string{"job_id": "job-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "queued", decode(t, w)["status"])

	select {
	case jobID := <-prov.deprovisioned:
		assert.Equal(t, "job-1", jobID)
	case <-time.After(2 * time.Second):
		t.Fatal("background worker never ran the deprovision")
	}
}

func TestDeprovisionAgentWithoutAgent(t *testing.T) {
	store := newFakeStore()
	prov := &fakeProvisioner{}
	api := newTestAPI(store, prov, nil)

	job := &storage.Job{Title: "No Agent", CreatedBy: "user-1", Skills: []string{"Go"}}
	require.NoError(t, store.CreateJob(context.Background(), job))

	w := postJSON(t, api.DeprovisionAgentHandler, map[string]string{"job_id": job.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["status"])
	prov.mu.Lock()
	defer prov.mu.Unlock()
	assert.Equal(t, 0, prov.deprovisions)
}

func TestGetUserInterviewsForJobs(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)
	postJSON(t, api.CreateJobHandler, validJobRequest())
	require.Equal(t, http.StatusOK, postJSON(t, api.CreateInterviewHandler, map[string]string{
		"job_id":         "job-1",
		"candidate_name": "Ada",
	}).Code)

	w := postJSON(t, api.GetUserInterviewsForJobsHandler, map[string]interface{}{"user_id": "user-1"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["count"])
}

func TestGetJobInterviews(t *testing.T) {
	store := newFakeStore()
	api := newTestAPI(store, nil, nil)
	postJSON(t, api.CreateJobHandler, validJobRequest())
	require.Equal(t, http.StatusOK, postJSON(t, api.CreateInterviewHandler, map[string]string{
		"job_id":         "job-1",
		"candidate_name": "Ada",
	}).Code)

	w := postJSON(t, api.GetJobInterviewsHandler, map[string]interface{}{"job_id": "job-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = postJSON(t, api.GetJobInterviewsHandler, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedback(t *testing.T) {
	api := newTestAPI(newFakeStore(), nil, nil)
	w := postJSON(t, api.FeedbackHandler, map[string]interface{}{
		"score":      4,
		"text":       "smooth session",
		"session_id": "interview-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(newFakeStore(), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	api.CreateJobHandler(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
