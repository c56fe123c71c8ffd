// Package session owns the ordered conversation history for one chat
// session and enforces turn-taking: user and assistant turns strictly
// alternate, and a new turn may not start while a prior turn's reply
// stream is still being consumed.
package session

import (
	"errors"
	"io"
	"strings"
	"sync"

	"modelbridge/internal/backend"
)

var (
	// ErrAwaitingAssistant is returned when a user turn is appended
	// before the previous user turn received its assistant reply.
	ErrAwaitingAssistant = errors.New("session: user turn already pending an assistant reply")

	// ErrNoPendingTurn is returned when an assistant reply is consumed
	// without a pending user turn.
	ErrNoPendingTurn = errors.New("session: no user turn awaiting a reply")

	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("session: message is empty")
)

// Session holds one conversation. It is owned by a single chat session;
// the exclusivity rule is per session, so independent sessions run fully
// in parallel.
type Session struct {
	mu       sync.Mutex
	history  backend.Conversation
	inFlight bool
	gen      uint64
}

func New() *Session {
	return &Session{}
}

// AppendUser appends a user turn and marks the turn in flight. It
// rejects a second user turn until ConsumeAssistant finalizes the
// current one.
func (s *Session) AppendUser(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrAwaitingAssistant
	}
	if n := len(s.history); n > 0 && s.history[n-1].Role == backend.RoleUser {
		return ErrAwaitingAssistant
	}
	s.history = append(s.history, backend.Message{Role: backend.RoleUser, Content: text})
	s.inFlight = true
	return nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() backend.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(backend.Conversation, len(s.history))
	copy(out, s.history)
	return out
}

// Len reports the number of turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Reset clears the conversation. Resetting an empty session is a no-op.
// Bumping the generation makes any turn still being consumed stale, so
// its reply is dropped instead of landing in the cleared history.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.inFlight = false
	s.gen++
}

// ConsumeAssistant drains the fragment stream, calling onFragment for
// each fragment as it arrives (for incremental display), and appends
// the concatenated text as one assistant turn once the stream is
// exhausted.
//
// A stream error does not discard output: fragments already received
// are preserved and an error-describing tail is appended, so the
// alternation invariant holds and the session stays usable for the
// next turn. The returned error reports the failure to the caller.
func (s *Session) ConsumeAssistant(stream backend.Stream, onFragment func(backend.Fragment)) (backend.Message, error) {
	s.mu.Lock()
	if !s.inFlight {
		s.mu.Unlock()
		return backend.Message{}, ErrNoPendingTurn
	}
	gen := s.gen
	s.mu.Unlock()

	var sb strings.Builder
	var streamErr error
	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		sb.WriteString(frag.Text)
		if onFragment != nil {
			onFragment(frag)
		}
	}

	if streamErr != nil {
		tail := describeFailure(streamErr)
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(tail)
		if onFragment != nil {
			onFragment(backend.Fragment{Text: tail, Final: true})
		}
	}

	msg := backend.Message{Role: backend.RoleAssistant, Content: sb.String()}
	s.mu.Lock()
	if s.gen != gen || !s.inFlight {
		// The session was reset while this turn was streaming; the
		// reply belongs to the discarded conversation.
		s.mu.Unlock()
		return msg, streamErr
	}
	s.history = append(s.history, msg)
	s.inFlight = false
	s.mu.Unlock()
	return msg, streamErr
}

// FailTurn finalizes an in-flight turn that never produced a stream
// (e.g. the dispatcher rejected it). The failure becomes the assistant
// turn so the conversation keeps alternating.
func (s *Session) FailTurn(err error) backend.Message {
	msg := backend.Message{Role: backend.RoleAssistant, Content: describeFailure(err)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inFlight {
		return msg
	}
	s.history = append(s.history, msg)
	s.inFlight = false
	return msg
}

// describeFailure renders a classified backend error as user-facing
// assistant text.
func describeFailure(err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		return "An error occurred (" + string(be.Stage) + ", backend " + string(be.Backend) + "): " + be.Message
	}
	return "An error occurred: " + err.Error()
}
