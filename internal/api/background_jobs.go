package api

import (
	"context"
	"log"
	"time"

	"hirevoice/internal/storage"
)

// DeprovisionJob represents a background agent-deletion task
type DeprovisionJob struct {
	Job       *storage.Job
	Timestamp time.Time
}

// StartBackgroundWorkers initializes background job workers
func (a *API) StartBackgroundWorkers() {
	go a.deprovisionWorker()

	log.Println("[BackgroundJobs] Workers started (agent deprovisioning)")
}

// deprovisionWorker processes agent deletions from the queue. Deletion is
// best-effort: the cleared local profile is the source of truth, so a
// provider failure is logged and the job is not retried.
func (a *API) deprovisionWorker() {
	log.Println("[DeprovisionWorker] Started")

	for job := range a.deprovisionQueue {
		log.Printf("[DeprovisionWorker] Deprovisioning agent for job %s", job.Job.ID)

		ctx := context.Background()
		if err := a.provisioner.Deprovision(ctx, job.Job); err != nil {
			log.Printf("[DeprovisionWorker] Failed to clear agent profile for job %s: %v", job.Job.ID, err)
			continue
		}

		log.Printf("[DeprovisionWorker] Job %s deprovisioned (took %v)", job.Job.ID, time.Since(job.Timestamp))
	}
}

// queueDeprovisionJob adds an agent deletion to the background queue
func (a *API) queueDeprovisionJob(job *storage.Job) {
	dj := DeprovisionJob{
		Job:       job,
		Timestamp: time.Now(),
	}

	// Non-blocking send
	select {
	case a.deprovisionQueue <- dj:
		log.Printf("[BackgroundJobs] Queued deprovision job for %s", job.ID)
	default:
		log.Printf("[BackgroundJobs] Queue full! Dropping deprovision job for %s", job.ID)
	}
}
