package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiAdapter serves the managed_model backend: a Gemini model on
// Vertex AI reached through the genai SDK's native streaming API.
type GeminiAdapter struct {
	project  string
	location string
	model    string

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiAdapter(project, location, model string) *GeminiAdapter {
	return &GeminiAdapter{
		project:  project,
		location: location,
		model:    model,
	}
}

func (a *GeminiAdapter) ID() ID       { return ManagedModel }
func (a *GeminiAdapter) Name() string { return fmt.Sprintf("Vertex AI (%s)", a.model) }

func (a *GeminiAdapter) Validate() error {
	switch {
	case strings.TrimSpace(a.project) == "":
		return Errf(ManagedModel, StageConfiguration, "PROJECT_ID is not set")
	case strings.TrimSpace(a.location) == "":
		return Errf(ManagedModel, StageConfiguration, "REGION is not set")
	case strings.TrimSpace(a.model) == "":
		return Errf(ManagedModel, StageConfiguration, "model name is not set")
	}
	return nil
}

// ensureClient builds the Vertex-backed genai client on first use. The
// SDK acquires application-default credentials itself; failures here are
// credential failures, not transport ones.
func (a *GeminiAdapter) ensureClient(ctx context.Context) (*genai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  a.project,
		Location: a.location,
	})
	if err != nil {
		return nil, WrapErr(ManagedModel, StageAuth, "failed to initialize Vertex AI client", err)
	}
	a.client = client
	return client, nil
}

func (a *GeminiAdapter) StreamReply(ctx context.Context, conv Conversation) (Stream, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	contents, err := geminiContents(conv)
	if err != nil {
		return nil, err
	}

	client, err := a.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	return newFragmentStream(ctx, ManagedModel, func(ctx context.Context, ch chan<- Fragment) error {
		for resp, err := range client.Models.GenerateContentStream(ctx, a.model, contents, nil) {
			if err != nil {
				return classifyGeminiErr(err)
			}
			if text := resp.Text(); text != "" {
				if err := emit(ctx, ch, Fragment{Text: text}); err != nil {
					return err
				}
			}
		}
		return emit(ctx, ch, Fragment{Final: true})
	}), nil
}

// geminiContents maps the conversation onto the SDK's content list,
// preserving role order. Gemini calls the assistant role "model".
func geminiContents(conv Conversation) ([]*genai.Content, error) {
	if len(conv) == 0 {
		return nil, Errf(ManagedModel, StageRequest, "conversation is empty")
	}
	contents := make([]*genai.Content, 0, len(conv))
	for _, msg := range conv {
		var role genai.Role = genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents, nil
}

func classifyGeminiErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return WrapErr(ManagedModel, StageAuth, "Vertex AI rejected the credentials", err)
		case http.StatusBadRequest:
			return WrapErr(ManagedModel, StageRequest, "Vertex AI rejected the request", err)
		}
		return WrapErr(ManagedModel, StageTransport, fmt.Sprintf("Vertex AI call failed with status %d", apiErr.Code), err)
	}
	return WrapErr(ManagedModel, StageTransport, "Vertex AI call failed", err)
}
