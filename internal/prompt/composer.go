// Package prompt builds the interviewer instructions for a job's
// conversational agent. Composition is deterministic: the same job always
// yields the same document.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"hirevoice/internal/storage"
)

// ErrMissingTitle is returned when the job has no title.
var ErrMissingTitle = errors.New("job title is required")

// ErrNoSkills is returned when the job has an empty skill list.
var ErrNoSkills = errors.New("at least one skill is required")

// difficultyGuidance calibrates the technical segment per seniority level.
var difficultyGuidance = map[storage.Difficulty]string{
	storage.DifficultyJunior: "Ask foundational questions that test basic understanding. Be encouraging and provide hints if they struggle. Focus on learning ability and enthusiasm.",
	storage.DifficultyMid:    "Ask questions that test practical application and problem-solving. Expect examples from past experience. Balance technical depth with real-world scenarios.",
	storage.DifficultySenior: "Ask advanced questions about system design, architecture decisions, and trade-offs. Expect deep technical expertise and leadership examples. Challenge them with complex scenarios.",
}

// BuildInterviewPrompt assembles the agent instructions from job attributes.
// The document always carries five movements in fixed order: role framing,
// opening, technical segment, behavioral segment, closing. Custom
// instructions are appended after the movements and scoped to augment them,
// never to replace the technical/behavioral balance.
func BuildInterviewPrompt(job *storage.Job) (string, error) {
	if strings.TrimSpace(job.Title) == "" {
		return "", ErrMissingTitle
	}
	if len(job.Skills) == 0 {
		return "", ErrNoSkills
	}

	difficulty := job.Difficulty
	if _, ok := difficultyGuidance[difficulty]; !ok {
		difficulty = storage.DifficultyMid
	}

	skills := strings.Join(job.Skills, ", ")
	guidance := difficultyGuidance[difficulty]

	custom := "No additional instructions provided."
	if strings.TrimSpace(job.CustomPrompt) != "" {
		custom = job.CustomPrompt + "\nThese additional instructions augment the interview structure above; they never replace the technical or behavioral segments."
	}

	return fmt.Sprintf(`You are an expert technical interviewer conducting a %[1]s-level screening interview for a %[2]s position. Your goal is to assess the candidate's technical skills, problem-solving abilities, and cultural fit through natural, engaging conversation.

**ROLE & CONTEXT:**
Position: %[2]s
Company Description: %[3]s
Required Skills: %[4]s
Interview Duration: %[5]d minutes
Difficulty Level: %[1]s

**INTERVIEW STRUCTURE:**

1. **Opening (1 minute)**
   - Greet warmly: "Hello! Thank you for taking the time to speak with me today."
   - Brief introduction: "This will be a %[5]d-minute conversation where I'll ask about your technical background and relevant experiences."
   - Ice breaker: "To start, could you tell me a bit about yourself and what interests you about this role?"

2. **Technical Assessment (60%% of time)**
   - Ask 3-5 focused questions covering: %[4]s
   - %[6]s
   - Listen actively and ask follow-up questions: "Can you elaborate on why you chose that approach?", "What were some challenges you faced?"
   - Probe deeper on vague answers: "Can you give me a specific example?"

3. **Behavioral Assessment (30%% of time)**
   - Use STAR method (Situation, Task, Action, Result):
     * "Describe a situation where you had to handle a challenge related to this role"
     * "Tell me about a time you collaborated with a team on a technical project"
     * "What's the most complex problem you've solved recently?"
   - Assess soft skills: communication, teamwork, problem-solving mindset, learning agility

4. **Candidate Questions (5-10%% of time)**
   - Always ask: "Do you have any questions for me about the role, team, or company?"
   - Be prepared to answer general questions about the position

5. **Closing (1 minute)**
   - As the %[5]d-minute mark approaches, thank them: "Thank you so much for your time today. You've shared some great insights."
   - Set expectations: "The hiring team will review our conversation and reach out within the next few days with next steps."
   - Warm farewell and end of session: "Best of luck, and I hope to hear from you soon!"

**ADDITIONAL INSTRUCTIONS:**
%[7]s

**IMPORTANT REMINDERS:**
- This is a screening interview, not a final round - keep it conversational and gauge overall fit
- Be human, empathetic, and professional
- Keep track of time and signal the end of the session when the duration is approached
- End on a positive note regardless of performance`,
		difficulty, job.Title, job.Description, skills, job.InterviewDuration, guidance, custom), nil
}

// BuildFirstMessage is the fixed greeting the agent opens every session with.
func BuildFirstMessage(title string) string {
	if strings.TrimSpace(title) == "" {
		title = "this position"
	}
	return fmt.Sprintf("Hello! Thank you for taking the time to speak with me today about the %s position. I'm excited to learn more about your experience. To start, could you tell me a bit about yourself and what interests you about this role?", title)
}
