package backend

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTurn is one scripted reply from the mock adapter.
type MockTurn struct {
	Fragments []string      // Emitted in order as non-final fragments
	Delay     time.Duration // Optional delay before the first fragment
	Error     error         // Delivered after Fragments instead of a final fragment
}

// MockAdapter is a scriptable adapter for testing. It records the
// conversations it receives and plays back configured turns.
type MockAdapter struct {
	id   ID
	name string

	mu            sync.Mutex
	turns         []MockTurn
	turnIndex     int
	validateErr   error
	Conversations []Conversation // Recorded requests for verification
}

func NewMockAdapter(id ID) *MockAdapter {
	return &MockAdapter{id: id, name: "mock (" + string(id) + ")"}
}

func (m *MockAdapter) ID() ID       { return m.id }
func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) Validate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateErr
}

// FailValidation makes Validate return the given error, for exercising
// the dispatcher's preflight check.
func (m *MockAdapter) FailValidation(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validateErr = err
	return m
}

// AddTurn appends a scripted turn and returns the adapter for chaining.
func (m *MockAdapter) AddTurn(t MockTurn) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

// AddReply is a convenience for a single-fragment reply.
func (m *MockAdapter) AddReply(text string) *MockAdapter {
	return m.AddTurn(MockTurn{Fragments: []string{text}})
}

// Reset clears recorded conversations and rewinds the scripted turns.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnIndex = 0
	m.Conversations = nil
}

func (m *MockAdapter) StreamReply(ctx context.Context, conv Conversation) (Stream, error) {
	m.mu.Lock()
	m.Conversations = append(m.Conversations, conv)
	if m.turnIndex >= len(m.turns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock adapter: no more turns configured (turn %d of %d)", m.turnIndex, len(m.turns))
	}
	turn := m.turns[m.turnIndex]
	m.turnIndex++
	m.mu.Unlock()

	return newFragmentStream(ctx, m.id, func(ctx context.Context, ch chan<- Fragment) error {
		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.Delay):
			}
		}
		for _, text := range turn.Fragments {
			if err := emit(ctx, ch, Fragment{Text: text}); err != nil {
				return err
			}
		}
		if turn.Error != nil {
			return turn.Error
		}
		return emit(ctx, ch, Fragment{Final: true})
	}), nil
}
