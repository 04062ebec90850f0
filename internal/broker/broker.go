// Package broker exchanges a job or agent identity for a connection
// credential. The contract is two-outcome: a signed descriptor
// when the provider cooperates, otherwise a fallback keyed by agent id. A
// candidate is never blocked by a credential failure.
package broker

import (
	"context"
	"log"
	"time"

	"hirevoice/internal/storage"
)

// CredentialType distinguishes the two connection paths.
type CredentialType string

const (
	CredentialSigned   CredentialType = "signed"
	CredentialFallback CredentialType = "fallback"
)

// Credential is the result of a connection request. Exactly one of the two
// types is returned; there is no error outcome.
type Credential struct {
	Type      CredentialType `json:"type"`
	SignedURL string         `json:"signedUrl,omitempty"` // set when Type == signed
	AgentID   string         `json:"agentId"`             // always set; the connect target for fallback
}

// Request identifies the interview target: job-scoped when JobID is set,
// otherwise legacy/public by agent id.
type Request struct {
	JobID   string `json:"jobId,omitempty"`
	AgentID string `json:"agentId,omitempty"`
}

// URLIssuer obtains short-lived signed connection URLs from the provider.
type URLIssuer interface {
	GetSignedURL(ctx context.Context, agentID string) (string, error)
}

// JobReader resolves a job's dedicated agent, when it has one.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*storage.Job, error)
}

type Broker struct {
	issuer         URLIssuer
	jobs           JobReader
	defaultAgentID string
	timeout        time.Duration
}

// NewBroker wires the broker. defaultAgentID is the shared public agent used
// whenever a job has no dedicated one; it comes from configuration, never
// from a constant baked into session logic.
func NewBroker(issuer URLIssuer, jobs JobReader, defaultAgentID string, timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Broker{
		issuer:         issuer,
		jobs:           jobs,
		defaultAgentID: defaultAgentID,
		timeout:        timeout,
	}
}

// GetConnectionCredential resolves the target agent and attempts the signed
// exchange within a bounded budget. Any failure on the way degrades to the
// fallback credential; the method never returns an error.
func (b *Broker) GetConnectionCredential(ctx context.Context, req Request) Credential {
	agentID := b.resolveAgent(ctx, req)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	signedURL, err := b.issuer.GetSignedURL(ctx, agentID)
	if err != nil {
		log.Printf("[Broker] Signed URL unavailable for agent %s, falling back: %v", agentID, err)
		return Credential{Type: CredentialFallback, AgentID: agentID}
	}

	return Credential{Type: CredentialSigned, SignedURL: signedURL, AgentID: agentID}
}

func (b *Broker) resolveAgent(ctx context.Context, req Request) string {
	if req.JobID != "" {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		job, err := b.jobs.GetJob(ctx, req.JobID)
		switch {
		case err != nil:
			log.Printf("[Broker] Job lookup failed for %s: %v", req.JobID, err)
		case job.Agent != nil && job.Agent.AgentID != "":
			return job.Agent.AgentID
		}
	}
	if req.AgentID != "" {
		return req.AgentID
	}
	return b.defaultAgentID
}
