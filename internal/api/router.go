package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

func NewRouter(a *API) http.Handler {
	mux := http.NewServeMux()

	// Swagger documentation - must be registered first
	mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Health check (for Railway, k8s, etc.)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Job endpoints
	mux.HandleFunc("/create_job", a.CreateJobHandler)
	mux.HandleFunc("/get_jobs", a.GetJobsHandler)
	mux.HandleFunc("/get_job_by_token", a.GetJobByTokenHandler)
	mux.HandleFunc("/get_job_by_id", a.GetJobByIDHandler)

	// Agent lifecycle endpoints
	mux.HandleFunc("/reprovision_agent", a.ReprovisionAgentHandler)
	mux.HandleFunc("/deprovision_agent", a.DeprovisionAgentHandler)

	// Connection credential endpoints
	mux.HandleFunc("/get_elevenlabs_signed_url_for_job", a.GetSignedURLForJobHandler)
	mux.HandleFunc("/get_elevenlabs_signed_url", a.GetSignedURLHandler)

	// Interview endpoints
	mux.HandleFunc("/create_interview", a.CreateInterviewHandler)
	mux.HandleFunc("/update_interview", a.UpdateInterviewHandler)
	mux.HandleFunc("/get_user_interviews_for_jobs", a.GetUserInterviewsForJobsHandler)
	mux.HandleFunc("/get_job_interviews", a.GetJobInterviewsHandler)
	mux.HandleFunc("/get_interview_by_id", a.GetInterviewByIDHandler)

	// Session feedback
	mux.HandleFunc("/feedback", a.FeedbackHandler)

	return mux
}
