// Package elevenlabs talks to the ElevenLabs conversational AI API: agent
// lifecycle plus signed connection URLs for live sessions.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"hirevoice/pkg/httpclient"
)

const defaultBaseURL = "https://api.elevenlabs.io"

type Client struct {
	apiKey  string
	baseURL string
	http    *httpclient.Client
}

// NewClient creates a provider client. baseURL is normally empty; tests point
// it at a local server.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    httpclient.New(timeout),
	}
}

type CreateAgentParams struct {
	Name         string
	FirstMessage string
	Prompt       string
	VoiceID      string
	Language     string
}

// CreateAgent registers a new conversational agent and returns its id.
func (c *Client) CreateAgent(ctx context.Context, p CreateAgentParams) (string, error) {
	reqBody := map[string]interface{}{
		"name": p.Name,
		"conversation_config": map[string]interface{}{
			"agent": map[string]interface{}{
				"first_message": p.FirstMessage,
				"language":      p.Language,
				"prompt": map[string]string{
					"prompt": p.Prompt,
				},
			},
			"tts": map[string]string{
				"voice_id": p.VoiceID,
			},
		},
	}

	var result struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/convai/agents/create", reqBody, &result); err != nil {
		return "", err
	}
	if result.AgentID == "" {
		return "", fmt.Errorf("agent created but no id in response")
	}
	return result.AgentID, nil
}

// UpdateAgentPrompt replaces an existing agent's instructions in place.
func (c *Client) UpdateAgentPrompt(ctx context.Context, agentID, prompt string) error {
	reqBody := map[string]interface{}{
		"conversation_config": map[string]interface{}{
			"agent": map[string]interface{}{
				"prompt": map[string]string{
					"prompt": prompt,
				},
			},
		},
	}
	return c.call(ctx, http.MethodPatch, "/v1/convai/agents/"+url.PathEscape(agentID), reqBody, nil)
}

// DeleteAgent removes an agent on the provider side.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	return c.call(ctx, http.MethodDelete, "/v1/convai/agents/"+url.PathEscape(agentID), nil, nil)
}

// GetSignedURL exchanges an agent id for a short-lived signed websocket URL.
func (c *Client) GetSignedURL(ctx context.Context, agentID string) (string, error) {
	var result struct {
		SignedURL string `json:"signed_url"`
	}
	path := "/v1/convai/conversation/get_signed_url?agent_id=" + url.QueryEscape(agentID)
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", err
	}
	if result.SignedURL == "" {
		return "", fmt.Errorf("no signed_url in response")
	}
	return result.SignedURL, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewBuffer(data)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ElevenLabs API error: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse ElevenLabs response: %w", err)
	}
	return nil
}
