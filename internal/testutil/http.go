package testutil

import (
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// CountingTransport wraps a RoundTripper and counts the requests that
// pass through it. Tests use a zero count to prove a misconfigured
// backend never reached the network.
type CountingTransport struct {
	Wrapped http.RoundTripper
	calls   atomic.Int64
}

func (t *CountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	rt := t.Wrapped
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(req)
}

// Calls reports how many requests were issued.
func (t *CountingTransport) Calls() int64 {
	return t.calls.Load()
}

// CloseTrackingBody wraps a response body and records whether Close was
// called, for verifying that an abandoned stream releases its
// connection.
type CloseTrackingBody struct {
	io.ReadCloser
	mu     sync.Mutex
	closed bool
}

func (b *CloseTrackingBody) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.ReadCloser.Close()
}

// Closed reports whether Close has been called.
func (b *CloseTrackingBody) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// BodyTrackingTransport delegates to an inner RoundTripper and wraps
// every response body in a CloseTrackingBody.
type BodyTrackingTransport struct {
	Wrapped http.RoundTripper

	mu     sync.Mutex
	bodies []*CloseTrackingBody
}

func (t *BodyTrackingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := t.Wrapped
	if rt == nil {
		rt = http.DefaultTransport
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body := &CloseTrackingBody{ReadCloser: resp.Body}
	resp.Body = body
	t.mu.Lock()
	t.bodies = append(t.bodies, body)
	t.mu.Unlock()
	return resp, nil
}

// Bodies returns the tracked response bodies in request order.
func (t *BodyTrackingTransport) Bodies() []*CloseTrackingBody {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*CloseTrackingBody, len(t.bodies))
	copy(out, t.bodies)
	return out
}
