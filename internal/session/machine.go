// Package session owns the lifecycle of one live voice interview on the
// candidate side: microphone permission, connection via signed or fallback
// credential, event streaming into an append-only log, and teardown into a
// finalized transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"hirevoice/internal/broker"
	"hirevoice/internal/storage"
)

// State is one step of the session lifecycle.
type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateConnecting           State = "connecting"
	StateConnected            State = "connected"
	StateEnding               State = "ending"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

// FailReason explains a terminal Failed state to the candidate.
type FailReason string

const (
	ReasonPermissionDenied FailReason = "permission-denied"
	ReasonConnectionFailed FailReason = "connection-failed"
)

// ErrPermissionDenied is returned by a PermissionRequester when the candidate
// refuses microphone access. Terminal; retry requires an explicit restart.
var ErrPermissionDenied = errors.New("microphone permission denied")

// ErrConnectionFailed is returned when the streaming channel cannot be
// opened on either path.
var ErrConnectionFailed = errors.New("could not open voice session")

// PermissionRequester asks the runtime environment for microphone access.
type PermissionRequester interface {
	RequestMicrophone(ctx context.Context) error
}

// CredentialSource supplies a connection credential; it never fails, per the
// broker's two-outcome contract.
type CredentialSource interface {
	GetConnectionCredential(ctx context.Context, req broker.Request) broker.Credential
}

// Channel is one live duplex voice session. Events delivers provider turns
// in arrival order and is closed when the provider ends the conversation.
type Channel interface {
	Events() <-chan storage.TranscriptEntry
	Close(ctx context.Context) error
}

// Opener turns a credential into an open channel. Both credential types
// converge on the same Channel shape; the machine never branches on the
// transport.
type Opener interface {
	Open(ctx context.Context, cred broker.Credential) (Channel, error)
}

// Recorder persists the finalized transcript. Implementations retry before
// surfacing an error.
type Recorder interface {
	Finalize(ctx context.Context, transcript string, completedAt time.Time) error
}

// Machine drives one interview session. One instance per candidate; the
// permission/connect/teardown steps are sequential, while event delivery is
// an asynchronous append that never blocks them.
type Machine struct {
	perm     PermissionRequester
	creds    CredentialSource
	opener   Opener
	recorder Recorder
	req      broker.Request

	closeTimeout time.Duration

	mu            sync.Mutex
	state         State
	failReason    FailReason
	entries       []storage.TranscriptEntry
	channel       Channel
	cancelConnect context.CancelFunc
	stopRequested bool

	pumpDone chan struct{}
	endOnce  *sync.Once
	done     chan struct{}

	transcript  string
	completedAt time.Time
}

// NewMachine creates an idle machine for one interview target.
func NewMachine(perm PermissionRequester, creds CredentialSource, opener Opener, recorder Recorder, req broker.Request) *Machine {
	return &Machine{
		perm:         perm,
		creds:        creds,
		opener:       opener,
		recorder:     recorder,
		req:          req,
		closeTimeout: 5 * time.Second,
		state:        StateIdle,
		endOnce:      &sync.Once{},
		done:         make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FailReason returns the reason for a terminal Failed state.
func (m *Machine) FailReason() FailReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failReason
}

// Entries returns a snapshot of the event log.
func (m *Machine) Entries() []storage.TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.TranscriptEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Done is closed once the machine reaches Completed or Failed.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Transcript returns the assembled transcript after completion.
func (m *Machine) Transcript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcript
}

// Start drives the machine from Idle to Connected: permission, credential,
// channel open. It returns once the session is live (nil), the candidate was
// refused or the channel failed (typed error), or a concurrent Stop cancelled
// the connect (nil, with the machine already finalized).
func (m *Machine) Start(ctx context.Context) error {
	if err := m.transition(StateIdle, StateRequestingPermission); err != nil {
		return err
	}

	if err := m.perm.RequestMicrophone(ctx); err != nil {
		m.fail(ReasonPermissionDenied)
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	if err := m.transition(StateRequestingPermission, StateConnecting); err != nil {
		return err
	}

	connectCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancelConnect = cancel
	m.mu.Unlock()
	defer cancel()

	cred := m.creds.GetConnectionCredential(connectCtx, m.req)
	ch, err := m.opener.Open(connectCtx, cred)

	m.mu.Lock()
	cancelled := m.stopRequested
	m.mu.Unlock()

	if cancelled {
		// the candidate stopped mid-connect: never enter Connected, even
		// if the open happened to land
		if ch != nil {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), m.closeTimeout)
			_ = ch.Close(closeCtx)
			closeCancel()
		}
		m.finish(context.Background())
		return nil
	}
	if err != nil {
		m.fail(ReasonConnectionFailed)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := m.transition(StateConnecting, StateConnected); err != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), m.closeTimeout)
		_ = ch.Close(closeCtx)
		closeCancel()
		return err
	}

	m.mu.Lock()
	m.channel = ch
	m.pumpDone = make(chan struct{})
	m.mu.Unlock()

	go m.pump(ch)
	return nil
}

// pump appends inbound events to the log in arrival order. When the provider
// closes the stream, the session ends naturally through the same path as an
// explicit stop.
func (m *Machine) pump(ch Channel) {
	for entry := range ch.Events() {
		if entry.Role == "" {
			entry.Role = "unknown"
		}
		m.mu.Lock()
		if m.state == StateConnected || m.state == StateEnding {
			m.entries = append(m.entries, entry)
		}
		m.mu.Unlock()
	}
	close(m.pumpDone)

	m.mu.Lock()
	natural := m.state == StateConnected
	m.mu.Unlock()
	if natural {
		if err := m.end(context.Background()); err != nil {
			log.Printf("[Session] Finalize after provider hangup failed: %v", err)
		}
	}
}

// Stop is the candidate's explicit stop. It is honored from any active
// state: mid-connect it aborts the attempt; once connected it tears the
// channel down and finalizes. The returned error is a persistence failure
// only; the captured interview is finalized locally regardless.
func (m *Machine) Stop(ctx context.Context) error {
	m.mu.Lock()
	state := m.state
	switch state {
	case StateConnecting, StateRequestingPermission:
		m.stopRequested = true
		if m.cancelConnect != nil {
			m.cancelConnect()
		}
		m.mu.Unlock()
		return nil
	case StateConnected:
		m.mu.Unlock()
		return m.end(ctx)
	default:
		m.mu.Unlock()
		return nil
	}
}

// end drives Connected -> Ending -> Completed exactly once.
func (m *Machine) end(ctx context.Context) error {
	var finalizeErr error
	m.endOnce.Do(func() {
		if err := m.transition(StateConnected, StateEnding); err != nil {
			return
		}

		m.mu.Lock()
		ch := m.channel
		pumpDone := m.pumpDone
		m.mu.Unlock()

		if ch != nil {
			closeCtx, cancel := context.WithTimeout(ctx, m.closeTimeout)
			if err := ch.Close(closeCtx); err != nil {
				// closure confirmation is best-effort: the interview
				// already happened and must not be lost at hang-up time
				log.Printf("[Session] Channel close not confirmed: %v", err)
			}
			cancel()
		}
		if pumpDone != nil {
			select {
			case <-pumpDone:
			case <-time.After(m.closeTimeout):
			}
		}

		finalizeErr = m.finish(ctx)
	})
	return finalizeErr
}

// finish assembles the transcript from the captured log and finalizes the
// record. Unconditional: whatever was captured becomes the transcript.
func (m *Machine) finish(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateEnding {
		// cancelled connect arrives here straight from Connecting
		m.state = StateEnding
	}
	snapshot := make([]storage.TranscriptEntry, len(m.entries))
	copy(snapshot, m.entries)
	m.transcript = Assemble(snapshot)
	m.completedAt = time.Now().UTC()
	m.state = StateCompleted
	m.mu.Unlock()
	close(m.done)

	if m.recorder == nil {
		return nil
	}
	if err := m.recorder.Finalize(ctx, m.transcript, m.completedAt); err != nil {
		return fmt.Errorf("transcript persistence failed: %w", err)
	}
	return nil
}

func (m *Machine) fail(reason FailReason) {
	m.mu.Lock()
	m.state = StateFailed
	m.failReason = reason
	m.mu.Unlock()
	close(m.done)
}

// Reset returns a terminal machine to Idle so the candidate can retry.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFailed && m.state != StateCompleted {
		return fmt.Errorf("cannot reset from %s", m.state)
	}
	m.state = StateIdle
	m.failReason = ""
	m.entries = nil
	m.channel = nil
	m.stopRequested = false
	m.transcript = ""
	m.endOnce = &sync.Once{}
	m.done = make(chan struct{})
	return nil
}

// transition applies a single validated edge.
func (m *Machine) transition(from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return fmt.Errorf("invalid transition: %s -> %s (current %s)", from, to, m.state)
	}
	if !isValidTransition(from, to) {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	m.state = to
	return nil
}

// isValidTransition enforces the allowed session state machine edges.
func isValidTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateRequestingPermission
	case StateRequestingPermission:
		return to == StateConnecting || to == StateFailed
	case StateConnecting:
		return to == StateConnected || to == StateEnding || to == StateFailed
	case StateConnected:
		return to == StateEnding
	case StateEnding:
		return to == StateCompleted
	default:
		return false
	}
}
