// Command interview is the candidate-side client: it joins an interview via
// a share token (or a raw agent id for legacy sessions), streams the live
// conversation and uploads the transcript when the session ends.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hirevoice/internal/broker"
	"hirevoice/internal/client"
	"hirevoice/internal/session"
)

func main() {
	var (
		serverURL  = flag.String("server", "http://localhost:8080", "interview API base URL")
		shareToken = flag.String("token", "", "job share token from the interview link")
		agentID    = flag.String("agent", "", "public agent id for a legacy interview")
		name       = flag.String("name", "", "candidate name")
		email      = flag.String("email", "", "candidate email (optional)")
		wsEndpoint = flag.String("ws", "", "override the public-agent websocket endpoint")
	)
	flag.Parse()

	if *name == "" {
		log.Fatal("set -name: the interviewer needs to know who you are")
	}
	if *shareToken == "" && *agentID == "" {
		log.Fatal("set -token (interview link) or -agent (legacy interview)")
	}

	ctx := context.Background()
	api := client.New(*serverURL, *agentID)

	var jobID string
	if *shareToken != "" {
		job, err := api.GetJobByToken(ctx, *shareToken)
		if err != nil {
			log.Fatalf("could not resolve interview link: %v", err)
		}
		jobID = job.ID
		fmt.Printf("Interview for: %s (%s level, ~%d minutes)\n", job.Title, job.Difficulty, job.InterviewDuration)
	}

	interviewID, err := api.CreateInterview(ctx, jobID, *shareToken, *name, *email)
	if err != nil {
		log.Fatalf("could not start interview: %v", err)
	}

	machine := session.NewMachine(
		stdinPermission{},
		api,
		session.NewWebSocketOpener(*wsEndpoint),
		api.Recorder(interviewID),
		broker.Request{JobID: jobID, AgentID: *agentID},
	)

	if err := machine.Start(ctx); err != nil {
		switch machine.FailReason() {
		case session.ReasonPermissionDenied:
			log.Fatal("Microphone access was denied. Re-run when you are ready to grant it.")
		case session.ReasonConnectionFailed:
			log.Fatal("Could not connect to the interview session. Please try again.")
		default:
			log.Fatalf("could not start session: %v", err)
		}
	}

	if machine.State() == session.StateConnected {
		fmt.Println("Connected. Speak when the interviewer greets you; press Ctrl-C to end the interview.")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	printed := 0
	for {
		select {
		case <-sigCh:
			fmt.Println("\nEnding interview...")
			if err := machine.Stop(ctx); err != nil {
				log.Printf("Warning: transcript may not be saved: %v", err)
			}
		case <-machine.Done():
			printed = printEntries(machine, printed)
			fmt.Println("\nInterview complete. Thank you!")
			return
		case <-ticker.C:
			printed = printEntries(machine, printed)
		}
	}
}

func printEntries(m *session.Machine, printed int) int {
	entries := m.Entries()
	for _, entry := range entries[printed:] {
		fmt.Printf("%s: %s\n", entry.Role, entry.Text)
	}
	return len(entries)
}

// stdinPermission asks for microphone consent on the terminal, standing in
// for the browser permission prompt.
type stdinPermission struct{}

func (stdinPermission) RequestMicrophone(ctx context.Context) error {
	fmt.Print("This interview needs microphone access. Allow? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return session.ErrPermissionDenied
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return session.ErrPermissionDenied
	}
	return nil
}
