package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/sessionbridge/sessionbridge/internal/credential"
	"github.com/sessionbridge/sessionbridge/internal/transport"
)

// session is one cached backend-side conversation handle. A session is
// bound to the credential that created it; a credential switch forces a
// fresh conversation.
type session struct {
	conversationID  string
	credentialID    string
	parentMessageID string
}

// core carries the state and recovery orchestration shared by every
// adapter: the credential pool, the session cache, and the
// auth-failure/failover flow around the transport.
type core struct {
	name      string
	pool      *credential.Pool
	transport transport.SessionTransport
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func newCore(name string, pool *credential.Pool, tr transport.SessionTransport, logger *slog.Logger) core {
	return core{
		name:      name,
		pool:      pool,
		transport: tr,
		logger:    logger,
		sessions:  make(map[string]*session),
	}
}

// chat acquires a credential, resolves or creates the session for the
// session key, sends the prompt, and recovers from auth-class failures:
// one session recreation with the same credential, then one failover to
// the next distinct credential. Non-auth errors propagate untouched.
// Whatever credential ultimately serves the request is marked successful.
func (c *core) chat(ctx context.Context, sessionKey, prompt, model string) (io.ReadCloser, error) {
	cred := c.pool.Next()
	if cred == nil {
		return nil, credential.ErrNoCredentials
	}

	upstream, err := c.attempt(ctx, cred, sessionKey, prompt, model)
	if err == nil {
		c.markSuccess(cred.ID)
		return upstream, nil
	}

	if !errors.Is(err, transport.ErrSessionInvalid) {
		return nil, err
	}

	// Session recreation with this credential already failed inside
	// attempt; the credential itself is suspect.
	c.markFailed(cred.ID, err)

	alternate := c.pool.NextExcluding(cred.ID)
	if alternate == nil {
		// No distinct alternate: the original error propagates.
		return nil, err
	}

	c.logger.Info("failing over to alternate credential",
		"provider", c.name,
		"failed_credential", cred.ID,
		"alternate", alternate.ID,
	)

	if backoffErr := transport.Backoff(ctx); backoffErr != nil {
		return nil, backoffErr
	}

	c.invalidateSession(sessionKey)

	upstream, failoverErr := c.attempt(ctx, alternate, sessionKey, prompt, model)
	if failoverErr != nil {
		if errors.Is(failoverErr, transport.ErrSessionInvalid) {
			c.markFailed(alternate.ID, failoverErr)
		}

		return nil, failoverErr
	}

	c.markSuccess(alternate.ID)

	return upstream, nil
}

// attempt sends the prompt using the given credential, recreating the
// session exactly once when the first send fails with an auth-class error.
func (c *core) attempt(ctx context.Context, cred *credential.Entry, sessionKey, prompt, model string) (io.ReadCloser, error) {
	sess, err := c.sessionFor(ctx, cred, sessionKey, model)
	if err != nil {
		return nil, err
	}

	upstream, err := c.transport.SendMessage(ctx, c.payload(cred, sess), sess.conversationID, prompt, model)
	if err == nil {
		return upstream, nil
	}

	if !errors.Is(err, transport.ErrSessionInvalid) {
		return nil, err
	}

	c.logger.Info("session invalid, recreating",
		"provider", c.name,
		"session_key", sessionKey,
		"credential", cred.ID,
	)

	c.invalidateSession(sessionKey)

	sess, createErr := c.sessionFor(ctx, cred, sessionKey, model)
	if createErr != nil {
		return nil, createErr
	}

	return c.transport.SendMessage(ctx, c.payload(cred, sess), sess.conversationID, prompt, model)
}

// sessionFor returns the cached session for the key when it belongs to the
// given credential, creating a new conversation otherwise.
func (c *core) sessionFor(ctx context.Context, cred *credential.Entry, sessionKey, model string) (*session, error) {
	c.mu.Lock()
	cached, ok := c.sessions[sessionKey]
	c.mu.Unlock()

	if ok && cached.credentialID == cred.ID {
		return cached, nil
	}

	conversationID, err := c.transport.CreateConversation(ctx, cred.Payload, model)
	if err != nil {
		return nil, err
	}

	created := &session{
		conversationID: conversationID,
		credentialID:   cred.ID,
	}

	c.mu.Lock()
	c.sessions[sessionKey] = created
	c.mu.Unlock()

	return created, nil
}

func (c *core) invalidateSession(sessionKey string) {
	c.mu.Lock()
	delete(c.sessions, sessionKey)
	c.mu.Unlock()
}

// updateParent threads the next turn onto the upstream conversation.
func (c *core) updateParent(sessionKey, parentMessageID string) {
	if parentMessageID == "" {
		return
	}

	c.mu.Lock()
	if sess, ok := c.sessions[sessionKey]; ok {
		sess.parentMessageID = parentMessageID
	}
	c.mu.Unlock()
}

// payload merges the credential secret bag with per-session threading
// fields for the transport.
func (c *core) payload(cred *credential.Entry, sess *session) map[string]string {
	merged := make(map[string]string, len(cred.Payload)+1)

	for k, v := range cred.Payload {
		merged[k] = v
	}

	if sess.parentMessageID != "" {
		merged["parent_message_id"] = sess.parentMessageID
	}

	return merged
}

func (c *core) markSuccess(id string) {
	if err := c.pool.MarkSuccess(id); err != nil {
		c.logger.Warn("failed to record credential success", "provider", c.name, "error", err)
	}
}

func (c *core) markFailed(id string, cause error) {
	if err := c.pool.MarkFailed(id, cause); err != nil {
		c.logger.Warn("failed to record credential failure", "provider", c.name, "error", err)
	}
}

// ResetClient drops all cached sessions.
func (c *core) ResetClient() {
	c.mu.Lock()
	c.sessions = make(map[string]*session)
	c.mu.Unlock()
}

// Pool exposes the adapter's credential pool for health reporting and the
// credentials CLI.
func (c *core) Pool() *credential.Pool {
	return c.pool
}
