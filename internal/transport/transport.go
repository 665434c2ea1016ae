// Package transport holds the upstream session transports. The core
// depends only on the SessionTransport interface; the concrete transports
// here speak the captured-browser-session HTTP surfaces, and tests swap in
// stubs.
package transport

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// ErrSessionInvalid marks the auth-class failures (expired cookies, revoked
// tokens, deleted conversations) that the adapters recover from by
// recreating the session.
var ErrSessionInvalid = errors.New("upstream session invalid")

// SessionTransport is the opaque boundary to one backend family. Exactly
// two operations: open a logical conversation, send one message into it.
type SessionTransport interface {
	// CreateConversation opens a new backend-side conversation and
	// returns its handle.
	CreateConversation(ctx context.Context, payload map[string]string, model string) (string, error)

	// SendMessage posts one prompt into the conversation and returns the
	// raw upstream event stream. The caller owns the ReadCloser and must
	// close it; cancelling ctx tears down the upstream read side.
	SendMessage(ctx context.Context, payload map[string]string, conversationID, prompt, model string) (io.ReadCloser, error)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		// Streams stay open long past any sane request timeout; rely on
		// per-request contexts instead.
		Timeout: 0,
	}
}

// classifyStatus maps upstream HTTP status codes onto the error taxonomy.
func classifyStatus(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusGone:
		return fmt.Errorf("%w: upstream returned %d: %s", ErrSessionInvalid, resp.StatusCode, truncate(string(body), 200))
	default:
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
}

// looksLikeAuthFailure catches backends that report auth trouble with a 200
// and a textual marker.
func looksLikeAuthFailure(body string) bool {
	lower := strings.ToLower(body)

	return strings.Contains(lower, "invalid authorization") ||
		strings.Contains(lower, "not login") ||
		strings.Contains(lower, "session expired")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}

// decompressedBody wraps the response body per its content encoding so
// downstream scanners always see plain bytes.
func decompressedBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}

		return &compositeCloser{Reader: reader, closers: []io.Closer{reader, resp.Body}}, nil
	case "br":
		return &compositeCloser{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, nil
	default:
		return resp.Body, nil
	}
}

type compositeCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *compositeCloser) Close() error {
	var first error

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// retryDelay is the fixed pause before a failover attempt, giving the
// backend a beat after an auth failure.
const retryDelay = 500 * time.Millisecond

// Backoff waits the fixed failover delay or returns early on cancellation.
func Backoff(ctx context.Context) error {
	select {
	case <-time.After(retryDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
