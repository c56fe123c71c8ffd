// Package credentials supplies short-lived bearer tokens for the
// Google-managed backends. The rest of the system treats the provider
// as an opaque function so tests can substitute fixtures.
package credentials

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"modelbridge/internal/backend"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// NewGoogleTokenProvider returns a TokenProvider backed by application
// default credentials. The token source is resolved lazily on first use
// so a process without ADC still starts; the failure surfaces as a
// stage-auth error on the first call that needs it.
func NewGoogleTokenProvider() backend.TokenProvider {
	var (
		once   sync.Once
		source oauth2.TokenSource
		srcErr error
	)
	return func(ctx context.Context) (string, error) {
		once.Do(func() {
			source, srcErr = google.DefaultTokenSource(ctx, cloudPlatformScope)
		})
		if srcErr != nil {
			return "", fmt.Errorf("application default credentials unavailable: %w", srcErr)
		}
		token, err := source.Token()
		if err != nil {
			return "", fmt.Errorf("failed to mint access token: %w", err)
		}
		return token.AccessToken, nil
	}
}

// StaticTokenProvider returns the same token on every call. Intended
// for tests and local stubs.
func StaticTokenProvider(token string) backend.TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}
