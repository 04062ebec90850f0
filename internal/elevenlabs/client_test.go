package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAgent(t *testing.T) {
	var gotBody map[string]interface{}
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/convai/agents/create", r.URL.Path)
		gotKey = r.Header.Get("xi-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"agent_id": "agent-123"})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, time.Second)
	id, err := c.CreateAgent(context.Background(), CreateAgentParams{
		Name:         "Backend Engineer Interviewer",
		FirstMessage: "Hello!",
		Prompt:       "You are an interviewer.",
		VoiceID:      "voice-1",
		Language:     "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-123", id)
	assert.Equal(t, "test-key", gotKey)

	assert.Equal(t, "Backend Engineer Interviewer", gotBody["name"])
	conv := gotBody["conversation_config"].(map[string]interface{})
	agent := conv["agent"].(map[string]interface{})
	assert.Equal(t, "Hello!", agent["first_message"])
	assert.Equal(t, "en", agent["language"])
	assert.Equal(t, "You are an interviewer.", agent["prompt"].(map[string]interface{})["prompt"])
	assert.Equal(t, "voice-1", conv["tts"].(map[string]interface{})["voice_id"])
}

func TestCreateAgentErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", srv.URL, time.Second)
	_, err := c.CreateAgent(context.Background(), CreateAgentParams{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCreateAgentMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	_, err := c.CreateAgent(context.Background(), CreateAgentParams{Name: "x"})
	require.Error(t, err)
}

func TestUpdateAgentPrompt(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/v1/convai/agents/agent-123", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	require.NoError(t, c.UpdateAgentPrompt(context.Background(), "agent-123", "new instructions"))

	conv := gotBody["conversation_config"].(map[string]interface{})
	agent := conv["agent"].(map[string]interface{})
	assert.Equal(t, "new instructions", agent["prompt"].(map[string]interface{})["prompt"])
}

func TestDeleteAgent(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	require.NoError(t, c.DeleteAgent(context.Background(), "agent-123"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/v1/convai/agents/agent-123", gotPath)
}

func TestGetSignedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/convai/conversation/get_signed_url", r.URL.Path)
		require.Equal(t, "agent-123", r.URL.Query().Get("agent_id"))
		json.NewEncoder(w).Encode(map[string]string{"signed_url": "wss://live/session?token=t"})
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	url, err := c.GetSignedURL(context.Background(), "agent-123")
	require.NoError(t, err)
	assert.Equal(t, "wss://live/session?token=t", url)
}

func TestGetSignedURLProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, time.Second)
	_, err := c.GetSignedURL(context.Background(), "agent-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
