package backend

import "context"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn. Immutable once appended.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered turn history, strictly alternating
// starting with a user turn.
type Conversation []Message

// LastUser returns the most recent user message, or false if there is none.
func (c Conversation) LastUser() (Message, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == RoleUser {
			return c[i], true
		}
	}
	return Message{}, false
}

// ID names one of the three backend categories.
type ID string

const (
	ManagedModel   ID = "managed_model"
	CustomEndpoint ID = "custom_endpoint"
	SelfHosted     ID = "self_hosted"
)

// Descriptor is the static, read-only description of a configured backend.
type Descriptor struct {
	ID          ID     `json:"id"`
	DisplayName string `json:"display_name"`
}

// Fragment is one increment of assistant output in the normalized
// streaming contract. A stream ends with exactly one Final fragment
// (usually empty for streaming backends).
type Fragment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Stream is a lazy, finite, non-restartable sequence of fragments.
// Recv returns io.EOF once the sequence is exhausted. Close releases
// the underlying network resource and may be called at any time.
type Stream interface {
	Recv() (Fragment, error)
	Close() error
}

// Adapter translates between the uniform chat contract and one
// backend's native protocol.
type Adapter interface {
	ID() ID
	Name() string

	// Validate reports a configuration error if required setup values
	// are missing. It performs no I/O.
	Validate() error

	// StreamReply turns the conversation into one backend call and
	// normalizes the response into a fragment stream.
	StreamReply(ctx context.Context, conv Conversation) (Stream, error)
}

// TokenProvider supplies a short-lived bearer token for backends that
// need ambient cloud credentials. Failures are classified StageAuth by
// the caller.
type TokenProvider func(ctx context.Context) (string, error)
