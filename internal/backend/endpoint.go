package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const defaultInstanceTemplate = `{"prompt":"","max_tokens":512}`

// EndpointAdapter serves the custom_endpoint backend: a model deployed
// behind a Vertex AI prediction endpoint. The endpoint has no streaming
// contract, so one blocking predict call becomes a one-fragment stream.
//
// The instance and prediction shapes are operator-defined. The adapter
// only promises to inject the prompt at PromptPath into the instance
// template and to extract text at PredictionPath from the response;
// anything else is deployment-specific and expected to need adaptation.
type EndpointAdapter struct {
	project    string
	location   string
	endpointID string
	tokens     TokenProvider
	httpClient *http.Client

	// InstanceTemplate is the JSON object sent as the single instance.
	// PromptPath is the sjson path the last user message is written to.
	// PredictionPath is the gjson path the reply text is read from; an
	// array of strings at that path is concatenated.
	InstanceTemplate string
	PromptPath       string
	PredictionPath   string

	// BaseURL overrides the regional aiplatform host, for private
	// service connect deployments and tests.
	BaseURL string
}

func NewEndpointAdapter(project, location, endpointID string, tokens TokenProvider, client *http.Client) *EndpointAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &EndpointAdapter{
		project:          project,
		location:         location,
		endpointID:       endpointID,
		tokens:           tokens,
		httpClient:       client,
		InstanceTemplate: defaultInstanceTemplate,
		PromptPath:       "prompt",
		PredictionPath:   "predictions.0",
	}
}

func (a *EndpointAdapter) ID() ID       { return CustomEndpoint }
func (a *EndpointAdapter) Name() string { return "Vertex AI (custom endpoint)" }

func (a *EndpointAdapter) Validate() error {
	switch {
	case strings.TrimSpace(a.project) == "":
		return Errf(CustomEndpoint, StageConfiguration, "PROJECT_ID is not set")
	case strings.TrimSpace(a.location) == "":
		return Errf(CustomEndpoint, StageConfiguration, "REGION is not set")
	case strings.TrimSpace(a.endpointID) == "":
		return Errf(CustomEndpoint, StageConfiguration, "VERTEX_AI_ENDPOINT_ID is not set")
	case a.tokens == nil:
		return Errf(CustomEndpoint, StageConfiguration, "no credential provider configured")
	}
	return nil
}

func (a *EndpointAdapter) predictURL() string {
	base := a.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", a.location)
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/endpoints/%s:predict",
		base, a.project, a.location, a.endpointID)
}

func (a *EndpointAdapter) buildBody(conv Conversation) ([]byte, error) {
	last, ok := conv.LastUser()
	if !ok {
		return nil, Errf(CustomEndpoint, StageRequest, "conversation has no user message")
	}
	instance, err := sjson.Set(a.InstanceTemplate, a.PromptPath, last.Content)
	if err != nil {
		return nil, WrapErr(CustomEndpoint, StageRequest, "invalid instance template or prompt path", err)
	}
	body, err := json.Marshal(map[string]json.RawMessage{
		"instances": json.RawMessage("[" + instance + "]"),
	})
	if err != nil {
		return nil, WrapErr(CustomEndpoint, StageRequest, "failed to encode predict request", err)
	}
	return body, nil
}

// extractPrediction reads the reply text at PredictionPath. It fails
// with StageParse rather than guessing: deployments disagree on shape
// and a silent wrong guess is worse than a diagnosable error.
func (a *EndpointAdapter) extractPrediction(body []byte) (string, error) {
	result := gjson.GetBytes(body, a.PredictionPath)
	if !result.Exists() {
		return "", Errf(CustomEndpoint, StageParse,
			"no value at %q in predict response (raw shape: %s)", a.PredictionPath, shapeSummary(body))
	}
	if result.IsArray() {
		var sb strings.Builder
		for _, item := range result.Array() {
			if item.Type == gjson.String {
				sb.WriteString(item.String())
			}
		}
		return sb.String(), nil
	}
	return result.String(), nil
}

func (a *EndpointAdapter) StreamReply(ctx context.Context, conv Conversation) (Stream, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	body, err := a.buildBody(conv)
	if err != nil {
		return nil, err
	}

	return newFragmentStream(ctx, CustomEndpoint, func(ctx context.Context, ch chan<- Fragment) error {
		token, err := a.tokens(ctx)
		if err != nil {
			return WrapErr(CustomEndpoint, StageAuth, "failed to acquire credentials", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.predictURL(), bytes.NewReader(body))
		if err != nil {
			return WrapErr(CustomEndpoint, StageRequest, "failed to build predict request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return WrapErr(CustomEndpoint, StageTransport, "predict call failed", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return WrapErr(CustomEndpoint, StageTransport, "failed to read predict response", err)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return Errf(CustomEndpoint, StageAuth, "endpoint rejected the credentials (status %d)", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return Errf(CustomEndpoint, StageTransport, "predict returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		}

		text, err := a.extractPrediction(respBody)
		if err != nil {
			return err
		}
		return emit(ctx, ch, Fragment{Text: text, Final: true})
	}), nil
}

// shapeSummary renders the top-level structure of a JSON document for
// parse-error diagnostics without echoing the full payload.
func shapeSummary(body []byte) string {
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() && !parsed.IsArray() {
		return truncate(strings.TrimSpace(string(body)), 120)
	}
	var keys []string
	if parsed.IsObject() {
		parsed.ForEach(func(key, value gjson.Result) bool {
			keys = append(keys, key.String()+":"+value.Type.String())
			return true
		})
		return "{" + strings.Join(keys, ", ") + "}"
	}
	return fmt.Sprintf("array of %d", len(parsed.Array()))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
