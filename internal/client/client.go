// Package client is the typed HTTP client the candidate CLI uses against the
// interview API: session records, connection credentials, transcript upload.
package client

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"hirevoice/internal/broker"
	"hirevoice/internal/session"
	"hirevoice/internal/storage"
	"hirevoice/pkg/httpclient"
)

type Client struct {
	baseURL string
	http    *httpclient.Client

	// fallbackAgentID is used when the server yields neither a signed URL
	// nor an agent id; empty is allowed when the server always resolves one.
	fallbackAgentID string
}

func New(baseURL, fallbackAgentID string) *Client {
	return &Client{
		baseURL:         baseURL,
		http:            httpclient.New(10 * time.Second),
		fallbackAgentID: fallbackAgentID,
	}
}

// CreateInterview registers a new in-progress interview and returns its id.
func (c *Client) CreateInterview(ctx context.Context, jobID, shareToken, candidateName, candidateEmail string) (string, error) {
	req := map[string]string{
		"job_id":          jobID,
		"share_token":     shareToken,
		"candidate_name":  candidateName,
		"candidate_email": candidateEmail,
	}
	var resp struct {
		Status string `json:"status"`
		ID     string `json:"id"`
		Error  string `json:"error"`
	}
	if err := c.http.PostJSON(ctx, c.baseURL+"/create_interview", req, &resp); err != nil {
		return "", fmt.Errorf("create interview: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("create interview: %s", resp.Error)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create interview: no id in response")
	}
	return resp.ID, nil
}

// GetJobByToken resolves a job from its public share link token.
func (c *Client) GetJobByToken(ctx context.Context, shareToken string) (*storage.Job, error) {
	req := map[string]string{"share_token": shareToken}
	var resp struct {
		Job   *storage.Job `json:"job"`
		Error string       `json:"error"`
	}
	if err := c.http.PostJSON(ctx, c.baseURL+"/get_job_by_token", req, &resp); err != nil {
		return nil, fmt.Errorf("get job by token: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("get job by token: %s", resp.Error)
	}
	if resp.Job == nil {
		return nil, fmt.Errorf("get job by token: empty response")
	}
	return resp.Job, nil
}

// GetConnectionCredential asks the server for a signed connection URL and
// degrades to the fallback credential on any failure. It satisfies the state
// machine's CredentialSource and never errors.
func (c *Client) GetConnectionCredential(ctx context.Context, req broker.Request) broker.Credential {
	endpoint := c.baseURL + "/get_elevenlabs_signed_url"
	payload := map[string]string{"agent_id": req.AgentID}
	if req.JobID != "" {
		endpoint = c.baseURL + "/get_elevenlabs_signed_url_for_job"
		payload = map[string]string{"job_id": req.JobID}
	}

	fallbackAgent := req.AgentID
	if fallbackAgent == "" {
		fallbackAgent = c.fallbackAgentID
	}

	var resp struct {
		SignedURL string `json:"signed_url"`
		AgentID   string `json:"agent_id"`
		Error     string `json:"error"`
	}
	if err := c.http.PostJSON(ctx, endpoint, payload, &resp); err != nil {
		log.Printf("[Client] Credential request failed, using fallback agent: %v", err)
		return broker.Credential{Type: broker.CredentialFallback, AgentID: fallbackAgent}
	}
	if resp.SignedURL != "" {
		return broker.Credential{Type: broker.CredentialSigned, SignedURL: resp.SignedURL, AgentID: resp.AgentID}
	}
	if resp.AgentID != "" {
		fallbackAgent = resp.AgentID
	}
	return broker.Credential{Type: broker.CredentialFallback, AgentID: fallbackAgent}
}

// UpdateInterview marks an interview completed with its transcript.
func (c *Client) UpdateInterview(ctx context.Context, interviewID, transcript string, completedAt time.Time) error {
	req := map[string]interface{}{
		"interview_id": interviewID,
		"updates": map[string]interface{}{
			"status":      "completed",
			"transcript":  transcript,
			"completedAt": completedAt,
		},
	}
	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.http.PostJSON(ctx, c.baseURL+"/update_interview", req, &resp); err != nil {
		return fmt.Errorf("update interview: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("update interview: %s", resp.Error)
	}
	return nil
}

// Recorder binds transcript finalization to one interview id, retrying with
// backoff before surfacing an error: losing a conducted interview's
// transcript is the worst failure mode in this system.
func (c *Client) Recorder(interviewID string) session.Recorder {
	return &recorder{client: c, interviewID: interviewID}
}

type recorder struct {
	client      *Client
	interviewID string
}

func (r *recorder) Finalize(ctx context.Context, transcript string, completedAt time.Time) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.client.UpdateInterview(ctx, r.interviewID, transcript, completedAt); err != nil {
			log.Printf("[Client] Transcript upload attempt failed: %v", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
