package storage

import "time"

// Difficulty calibrates interview question depth.
type Difficulty string

const (
	DifficultyJunior Difficulty = "junior"
	DifficultyMid    Difficulty = "mid"
	DifficultySenior Difficulty = "senior"
)

// InterviewStatus tracks the lifecycle of a candidate session record.
type InterviewStatus string

const (
	StatusInProgress InterviewStatus = "in_progress"
	StatusCompleted  InterviewStatus = "completed"
)

// AgentProfile is the identity of a provider-hosted conversational agent
// dedicated to one job. Absent when provisioning failed or never ran; the
// interview flow falls back to a shared public agent in that case.
type AgentProfile struct {
	AgentID   string    `json:"agentId"`
	AgentName string    `json:"agentName"`
	VoiceID   string    `json:"voiceId"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
}

// Job is an employer-published position candidates interview for.
// Skills keep their submitted order; duplicates are not rejected.
type Job struct {
	ID                string        `json:"id"`
	CreatedBy         string        `json:"createdBy"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Skills            []string      `json:"skills"`
	Difficulty        Difficulty    `json:"difficulty"`
	InterviewDuration int           `json:"interviewDuration"` // minutes: 5, 10 or 15
	CustomPrompt      string        `json:"customPrompt,omitempty"`
	ShareToken        string        `json:"shareToken"`
	CreatedAt         time.Time     `json:"createdAt"`
	Agent             *AgentProfile `json:"agent,omitempty"`
}

// Interview is one candidate session. Transcript stays empty until the
// session is finalized; a completed interview is never rewritten.
type Interview struct {
	ID             string          `json:"id"`
	JobID          string          `json:"jobId,omitempty"` // empty for legacy non-job interviews
	CandidateName  string          `json:"candidateName"`
	CandidateEmail string          `json:"candidateEmail,omitempty"`
	Status         InterviewStatus `json:"status"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	Transcript     string          `json:"transcript"`
	ConversationID string          `json:"conversationId,omitempty"`
}

// TranscriptEntry is one spoken turn as delivered by the provider.
type TranscriptEntry struct {
	Role      string    `json:"role"` // interviewer | candidate | unknown
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
