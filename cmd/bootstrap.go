package cmd

import (
	"net"
	"net/http"
	"time"

	"modelbridge/internal/backend"
	"modelbridge/internal/config"
	"modelbridge/internal/credentials"
)

const (
	defaultHTTPTimeout     = 5 * time.Minute
	defaultDialTimeout     = 10 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// buildDispatcher wires the three adapters from configuration. Adapters
// for unconfigured backends are still registered; the dispatcher
// rejects them with a configuration error at send time.
func buildDispatcher(cfg *config.Config) *backend.Dispatcher {
	client := newHTTPClient()
	tokens := credentials.NewGoogleTokenProvider()

	endpoint := backend.NewEndpointAdapter(cfg.Project, cfg.Region, cfg.EndpointID, tokens, client)
	if cfg.InstanceTemplate != "" {
		endpoint.InstanceTemplate = cfg.InstanceTemplate
	}
	if cfg.PromptPath != "" {
		endpoint.PromptPath = cfg.PromptPath
	}
	if cfg.PredictionPath != "" {
		endpoint.PredictionPath = cfg.PredictionPath
	}

	d := backend.NewDispatcher()
	d.Register(backend.NewGeminiAdapter(cfg.Project, cfg.Region, cfg.GeminiModel))
	d.Register(endpoint)
	d.Register(backend.NewSelfHostedAdapter(cfg.SelfHostedURL, cfg.SelfHostedAPIKey, client))
	return d
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: defaultHTTPTimeout, Transport: transport}
}
