package backend

import (
	"net/http"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiContentsMapping(t *testing.T) {
	conv := Conversation{
		{Role: RoleUser, Content: "question one"},
		{Role: RoleAssistant, Content: "answer one"},
		{Role: RoleUser, Content: "question two"},
	}
	contents, err := geminiContents(conv)
	if err != nil {
		t.Fatalf("geminiContents failed: %v", err)
	}
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want 3", len(contents))
	}
	wantRoles := []genai.Role{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, want := range wantRoles {
		if genai.Role(contents[i].Role) != want {
			t.Errorf("content %d role = %q, want %q", i, contents[i].Role, want)
		}
	}
	if len(contents[0].Parts) != 1 || contents[0].Parts[0].Text != "question one" {
		t.Errorf("content 0 parts = %+v", contents[0].Parts)
	}
}

func TestGeminiContentsEmptyConversation(t *testing.T) {
	_, err := geminiContents(Conversation{})
	if StageOf(err) != StageRequest {
		t.Fatalf("stage = %q, want %q", StageOf(err), StageRequest)
	}
}

func TestGeminiValidate(t *testing.T) {
	tests := []struct {
		name                     string
		project, location, model string
		wantErr                  bool
	}{
		{name: "complete", project: "p", location: "us-central1", model: "gemini-2.5-flash"},
		{name: "missing project", location: "us-central1", model: "m", wantErr: true},
		{name: "missing region", project: "p", model: "m", wantErr: true},
		{name: "missing model", project: "p", location: "us-central1", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewGeminiAdapter(tc.project, tc.location, tc.model).Validate()
			if tc.wantErr {
				if StageOf(err) != StageConfiguration {
					t.Fatalf("stage = %q, want %q", StageOf(err), StageConfiguration)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestClassifyGeminiErr(t *testing.T) {
	tests := []struct {
		code int
		want Stage
	}{
		{http.StatusUnauthorized, StageAuth},
		{http.StatusForbidden, StageAuth},
		{http.StatusBadRequest, StageRequest},
		{http.StatusTooManyRequests, StageTransport},
		{http.StatusInternalServerError, StageTransport},
	}
	for _, tc := range tests {
		err := classifyGeminiErr(genai.APIError{Code: tc.code, Message: "boom"})
		if StageOf(err) != tc.want {
			t.Errorf("code %d: stage = %q, want %q", tc.code, StageOf(err), tc.want)
		}
	}
}
