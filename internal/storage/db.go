package storage

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// ErrNotFound is returned when a job or interview does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInterviewFinalized is returned when finalizing an interview that has
// already been completed. A completed transcript is never rewritten.
var ErrInterviewFinalized = errors.New("interview already finalized")

type DB struct {
	connection *sql.DB
}

func NewDB(dataSourceName string) (*DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}

	// Connection pool tuning
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &DB{connection: db}, nil
}

func (db *DB) Close() {
	if err := db.connection.Close(); err != nil {
		log.Println("Error closing the database connection:", err)
	}
}

// GetConnection returns the underlying database connection for maintenance
// tooling.
func (db *DB) GetConnection() *sql.DB {
	return db.connection
}

// CreateJob inserts a new job, assigning its id and share token.
func (db *DB) CreateJob(ctx context.Context, job *Job) error {
	job.ID = uuid.NewString()
	job.ShareToken = uuid.NewString()
	job.CreatedAt = time.Now().UTC()

	query := `INSERT INTO jobs (id, created_by, title, description, skills, difficulty, interview_duration, custom_prompt, share_token, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := db.connection.ExecContext(ctx, query,
		job.ID,
		job.CreatedBy,
		job.Title,
		job.Description,
		strings.Join(job.Skills, ","),
		job.Difficulty,
		job.InterviewDuration,
		job.CustomPrompt,
		job.ShareToken,
		job.CreatedAt,
	)
	return err
}

const jobColumns = `id, created_by, title, description, skills, difficulty, interview_duration, custom_prompt, share_token, created_at,
                    agent_id, agent_name, agent_voice_id, agent_language, agent_created_at`

// GetJob returns a job by id, or ErrNotFound.
func (db *DB) GetJob(ctx context.Context, id string) (*Job, error) {
	row := db.connection.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetJobByToken returns the job behind a public share token, or ErrNotFound.
func (db *DB) GetJobByToken(ctx context.Context, shareToken string) (*Job, error) {
	row := db.connection.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE share_token = $1`, shareToken)
	return scanJob(row)
}

// ListJobsByUser returns the jobs created by a user, newest first.
func (db *DB) ListJobsByUser(ctx context.Context, userID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.connection.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE created_by = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, job)
	}
	return res, rows.Err()
}

// SetJobAgentProfile attaches a provisioned agent identity to a job.
// Only called after a provisioning call succeeded.
func (db *DB) SetJobAgentProfile(ctx context.Context, jobID string, profile *AgentProfile) error {
	query := `UPDATE jobs
              SET agent_id = $2, agent_name = $3, agent_voice_id = $4, agent_language = $5, agent_created_at = $6
              WHERE id = $1`
	res, err := db.connection.ExecContext(ctx, query,
		jobID, profile.AgentID, profile.AgentName, profile.VoiceID, profile.Language, profile.CreatedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ClearJobAgentProfile removes the agent identity from a job. Local state is
// the source of truth: subsequent interviews fall back to the public agent.
func (db *DB) ClearJobAgentProfile(ctx context.Context, jobID string) error {
	query := `UPDATE jobs
              SET agent_id = NULL, agent_name = NULL, agent_voice_id = NULL, agent_language = NULL, agent_created_at = NULL
              WHERE id = $1`
	res, err := db.connection.ExecContext(ctx, query, jobID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CreateInterview inserts a new in-progress interview, assigning its id.
func (db *DB) CreateInterview(ctx context.Context, iv *Interview) error {
	iv.ID = uuid.NewString()
	iv.Status = StatusInProgress
	iv.StartedAt = time.Now().UTC()
	iv.Transcript = ""

	query := `INSERT INTO interviews (id, job_id, candidate_name, candidate_email, status, started_at, transcript, conversation_id)
              VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)`
	_, err := db.connection.ExecContext(ctx, query,
		iv.ID, iv.JobID, iv.CandidateName, iv.CandidateEmail, iv.Status, iv.StartedAt, iv.Transcript, iv.ConversationID)
	return err
}

// FinalizeInterview marks an interview completed and attaches its transcript.
// The WHERE guard makes the write single-shot: an already-completed interview
// is never rewritten and yields ErrInterviewFinalized.
func (db *DB) FinalizeInterview(ctx context.Context, id, transcript string, completedAt time.Time, conversationID string) error {
	query := `UPDATE interviews
              SET status = $2, transcript = $3, completed_at = $4,
                  conversation_id = COALESCE(NULLIF($5, ''), conversation_id)
              WHERE id = $1 AND status = $6`
	res, err := db.connection.ExecContext(ctx, query,
		id, StatusCompleted, transcript, completedAt, conversationID, StatusInProgress)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.GetInterview(ctx, id); err != nil {
			return err
		}
		return ErrInterviewFinalized
	}
	return nil
}

const interviewColumns = `id, COALESCE(job_id, ''), candidate_name, candidate_email, status, started_at, completed_at, transcript, conversation_id`

// GetInterview returns an interview by id, or ErrNotFound.
func (db *DB) GetInterview(ctx context.Context, id string) (*Interview, error) {
	row := db.connection.QueryRowContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id)
	return scanInterview(row)
}

// ListInterviewsByJob returns interviews for one job, newest first.
func (db *DB) ListInterviewsByJob(ctx context.Context, jobID string, limit int) ([]*Interview, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.connection.QueryContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2`,
		jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInterviews(rows)
}

// ListInterviewsByUserJobs returns interviews across every job a user owns.
func (db *DB) ListInterviewsByUserJobs(ctx context.Context, userID string, limit int) ([]*Interview, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.connection.QueryContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews
         WHERE job_id IN (SELECT id FROM jobs WHERE created_by = $1)
         ORDER BY started_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInterviews(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	job := &Job{}
	var skills string
	var agentID, agentName, agentVoice, agentLanguage sql.NullString
	var agentCreatedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.CreatedBy, &job.Title, &job.Description, &skills,
		&job.Difficulty, &job.InterviewDuration, &job.CustomPrompt,
		&job.ShareToken, &job.CreatedAt,
		&agentID, &agentName, &agentVoice, &agentLanguage, &agentCreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if skills != "" {
		job.Skills = splitAndTrim(skills)
	}
	if agentID.Valid && agentID.String != "" {
		job.Agent = &AgentProfile{
			AgentID:   agentID.String,
			AgentName: agentName.String,
			VoiceID:   agentVoice.String,
			Language:  agentLanguage.String,
			CreatedAt: agentCreatedAt.Time,
		}
	}
	return job, nil
}

func scanInterview(row rowScanner) (*Interview, error) {
	iv := &Interview{}
	var email, conversationID sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&iv.ID, &iv.JobID, &iv.CandidateName, &email, &iv.Status,
		&iv.StartedAt, &completedAt, &iv.Transcript, &conversationID,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	iv.CandidateEmail = email.String
	iv.ConversationID = conversationID.String
	if completedAt.Valid {
		t := completedAt.Time
		iv.CompletedAt = &t
	}
	return iv, nil
}

func collectInterviews(rows *sql.Rows) ([]*Interview, error) {
	var res []*Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, iv)
	}
	return res, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// helper to split comma-separated skills
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
