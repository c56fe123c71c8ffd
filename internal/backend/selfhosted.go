package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// SelfHostedAdapter serves the self_hosted backend: a model behind an
// arbitrary HTTP prediction URL (typically a GKE service). The wire
// contract is a JSON POST with the whole conversation; the response
// body is treated as a stream of newline-separated text increments.
type SelfHostedAdapter struct {
	url        string
	apiKey     string
	httpClient *http.Client

	// Split controls how the response body is framed into increments.
	// It defaults to line splitting; operators fronting the model with a
	// different framing can swap it.
	Split bufio.SplitFunc
}

func NewSelfHostedAdapter(url, apiKey string, client *http.Client) *SelfHostedAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &SelfHostedAdapter{
		url:        url,
		apiKey:     apiKey,
		httpClient: client,
		Split:      bufio.ScanLines,
	}
}

func (a *SelfHostedAdapter) ID() ID       { return SelfHosted }
func (a *SelfHostedAdapter) Name() string { return "Self-hosted (GKE)" }

func (a *SelfHostedAdapter) Validate() error {
	if strings.TrimSpace(a.url) == "" {
		return Errf(SelfHosted, StageConfiguration, "GKE_INFERENCE_ENDPOINT_URL is not set")
	}
	return nil
}

type selfHostedRequest struct {
	Messages []Message `json:"messages"`
}

func (a *SelfHostedAdapter) StreamReply(ctx context.Context, conv Conversation) (Stream, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if len(conv) == 0 {
		return nil, Errf(SelfHosted, StageRequest, "conversation is empty")
	}
	body, err := json.Marshal(selfHostedRequest{Messages: conv})
	if err != nil {
		return nil, WrapErr(SelfHosted, StageRequest, "failed to encode request", err)
	}

	return newFragmentStream(ctx, SelfHosted, func(ctx context.Context, ch chan<- Fragment) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
		if err != nil {
			return WrapErr(SelfHosted, StageRequest, "failed to build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return WrapErr(SelfHosted, StageTransport, "could not connect to inference endpoint", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return Errf(SelfHosted, StageTransport, "endpoint returned status %d: %s", resp.StatusCode, truncate(string(preview), 200))
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Split(a.Split)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := emit(ctx, ch, Fragment{Text: line}); err != nil {
				return err
			}
		}
		if err := scanner.Err(); err != nil {
			// Fragments emitted so far are preserved; the consumer sees
			// them before this error.
			if errors.Is(err, context.Canceled) {
				return err
			}
			return WrapErr(SelfHosted, StageTransport, "stream ended unexpectedly", err)
		}
		return emit(ctx, ch, Fragment{Final: true})
	}), nil
}
