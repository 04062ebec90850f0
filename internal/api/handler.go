package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"hirevoice/internal/broker"
	"hirevoice/internal/storage"
)

// RecordStore is the durable store contract the engine depends on.
type RecordStore interface {
	CreateJob(ctx context.Context, job *storage.Job) error
	GetJob(ctx context.Context, id string) (*storage.Job, error)
	GetJobByToken(ctx context.Context, shareToken string) (*storage.Job, error)
	ListJobsByUser(ctx context.Context, userID string, limit int) ([]*storage.Job, error)
	CreateInterview(ctx context.Context, iv *storage.Interview) error
	FinalizeInterview(ctx context.Context, id, transcript string, completedAt time.Time, conversationID string) error
	GetInterview(ctx context.Context, id string) (*storage.Interview, error)
	ListInterviewsByJob(ctx context.Context, jobID string, limit int) ([]*storage.Interview, error)
	ListInterviewsByUserJobs(ctx context.Context, userID string, limit int) ([]*storage.Interview, error)
}

// AgentProvisioner manages dedicated voice agents for jobs.
type AgentProvisioner interface {
	Provision(ctx context.Context, job *storage.Job) (*storage.AgentProfile, error)
	Reprovision(ctx context.Context, jobID string) (*storage.AgentProfile, error)
	Deprovision(ctx context.Context, job *storage.Job) error
}

// CredentialBroker issues connection credentials for live sessions.
type CredentialBroker interface {
	GetConnectionCredential(ctx context.Context, req broker.Request) broker.Credential
}

type API struct {
	store            RecordStore
	provisioner      AgentProvisioner
	broker           CredentialBroker
	deprovisionQueue chan DeprovisionJob // background queue for best-effort agent deletion
}

func NewAPI(store RecordStore, provisioner AgentProvisioner, credBroker CredentialBroker) *API {
	api := &API{
		store:            store,
		provisioner:      provisioner,
		broker:           credBroker,
		deprovisionQueue: make(chan DeprovisionJob, 32),
	}

	api.StartBackgroundWorkers()

	return api
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
