// Package agent provisions dedicated voice interviewers for jobs. A job
// without a dedicated agent is a normal state: sessions fall back to the
// shared public agent, so every failure here degrades instead of propagating
// into job creation.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"hirevoice/internal/elevenlabs"
	"hirevoice/internal/prompt"
	"hirevoice/internal/storage"
)

// ErrProvisioning wraps any provider or persistence failure during agent
// creation or update. Callers treat it as "continue without a dedicated
// agent", never as a reason to fail job creation.
var ErrProvisioning = errors.New("agent provisioning failed")

// Provider is the narrow slice of the voice provider used here.
type Provider interface {
	CreateAgent(ctx context.Context, p elevenlabs.CreateAgentParams) (string, error)
	UpdateAgentPrompt(ctx context.Context, agentID, prompt string) error
	DeleteAgent(ctx context.Context, agentID string) error
}

// JobStore persists agent identity on job records.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*storage.Job, error)
	SetJobAgentProfile(ctx context.Context, jobID string, profile *storage.AgentProfile) error
	ClearJobAgentProfile(ctx context.Context, jobID string) error
}

type Provisioner struct {
	provider Provider
	store    JobStore

	defaultVoiceID  string
	defaultLanguage string
	timeout         time.Duration

	// group serializes provisioning per job id: concurrent calls for the
	// same job share one in-flight provider call instead of racing writes
	// to the AgentProfile field. Different jobs proceed in parallel.
	group singleflight.Group
}

func NewProvisioner(provider Provider, store JobStore, defaultVoiceID, defaultLanguage string, timeout time.Duration) *Provisioner {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Provisioner{
		provider:        provider,
		store:           store,
		defaultVoiceID:  defaultVoiceID,
		defaultLanguage: defaultLanguage,
		timeout:         timeout,
	}
}

// Provision creates a dedicated agent for the job and persists its identity.
// The AgentProfile is written only after the provider call succeeded; a
// failed attempt never touches the job record.
func (p *Provisioner) Provision(ctx context.Context, job *storage.Job) (*storage.AgentProfile, error) {
	v, err, _ := p.group.Do(job.ID, func() (interface{}, error) {
		return p.provision(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.AgentProfile), nil
}

func (p *Provisioner) provision(ctx context.Context, job *storage.Job) (*storage.AgentProfile, error) {
	instructions, err := prompt.BuildInterviewPrompt(job)
	if err != nil {
		// malformed job input, not a provider problem
		return nil, err
	}

	voiceID := p.defaultVoiceID
	language := p.defaultLanguage
	if job.Agent != nil {
		if job.Agent.VoiceID != "" {
			voiceID = job.Agent.VoiceID
		}
		if job.Agent.Language != "" {
			language = job.Agent.Language
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	name := fmt.Sprintf("%s Interviewer", job.Title)
	agentID, err := p.provider.CreateAgent(ctx, elevenlabs.CreateAgentParams{
		Name:         name,
		FirstMessage: prompt.BuildFirstMessage(job.Title),
		Prompt:       instructions,
		VoiceID:      voiceID,
		Language:     language,
	})
	if err != nil {
		log.Printf("[Provisioner] Agent creation failed for job %s: %v", job.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	profile := &storage.AgentProfile{
		AgentID:   agentID,
		AgentName: name,
		VoiceID:   voiceID,
		Language:  language,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.SetJobAgentProfile(ctx, job.ID, profile); err != nil {
		log.Printf("[Provisioner] Failed to persist agent %s on job %s: %v", agentID, job.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	log.Printf("[Provisioner] Created agent %s for job %s", agentID, job.ID)
	return profile, nil
}

// Reprovision refreshes the job's agent instructions. An existing agent is
// updated in place, keeping its id; a job without one is provisioned fresh.
func (p *Provisioner) Reprovision(ctx context.Context, jobID string) (*storage.AgentProfile, error) {
	v, err, _ := p.group.Do(jobID, func() (interface{}, error) {
		job, err := p.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
		}
		if job.Agent == nil {
			return p.provision(ctx, job)
		}

		instructions, err := prompt.BuildInterviewPrompt(job)
		if err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := p.provider.UpdateAgentPrompt(callCtx, job.Agent.AgentID, instructions); err != nil {
			log.Printf("[Provisioner] Agent update failed for job %s: %v", jobID, err)
			return nil, fmt.Errorf("%w: %v", ErrProvisioning, err)
		}

		log.Printf("[Provisioner] Updated agent %s for job %s", job.Agent.AgentID, jobID)
		return job.Agent, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.AgentProfile), nil
}

// Deprovision clears the job's agent locally, then deletes the provider-side
// agent best-effort. Provider failure is logged and swallowed: local state is
// the source of truth for subsequent interviews.
func (p *Provisioner) Deprovision(ctx context.Context, job *storage.Job) error {
	if job.Agent == nil {
		return nil
	}
	agentID := job.Agent.AgentID

	if err := p.store.ClearJobAgentProfile(ctx, job.ID); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.provider.DeleteAgent(callCtx, agentID); err != nil {
		log.Printf("[Provisioner] Best-effort delete of agent %s failed: %v", agentID, err)
		return nil
	}

	log.Printf("[Provisioner] Deleted agent %s for job %s", agentID, job.ID)
	return nil
}
