package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

type logoutCall struct {
	token  string
	reason session.Reason
}

// fakeBackend records calls. Heartbeats are valid unless onHeartbeat says otherwise.
type fakeBackend struct {
	mu          sync.Mutex
	registerErr error
	onHeartbeat func(token string) (session.HeartbeatResult, error)
	logoutErr   error
	registered  []session.RegisterRequest
	heartbeats  []string
	logouts     []logoutCall
	seq         int
}

func (b *fakeBackend) Register(_ context.Context, req session.RegisterRequest) (session.Registration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registerErr != nil {
		return session.Registration{}, b.registerErr
	}
	b.seq++
	b.registered = append(b.registered, req)
	return session.Registration{
		SessionID: fmt.Sprintf("sess-%d", b.seq),
		ExpiresAt: time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
	}, nil
}

func (b *fakeBackend) Heartbeat(_ context.Context, token string) (session.HeartbeatResult, error) {
	b.mu.Lock()
	b.heartbeats = append(b.heartbeats, token)
	fn := b.onHeartbeat
	b.mu.Unlock()

	if fn != nil {
		return fn(token)
	}
	return session.HeartbeatResult{Valid: true}, nil
}

func (b *fakeBackend) Logout(_ context.Context, token string, reason session.Reason) (session.LogoutResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts = append(b.logouts, logoutCall{token: token, reason: reason})
	if b.logoutErr != nil {
		return session.LogoutResult{}, b.logoutErr
	}
	return session.LogoutResult{Success: true}, nil
}

func (b *fakeBackend) setHeartbeat(fn func(token string) (session.HeartbeatResult, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onHeartbeat = fn
}

func (b *fakeBackend) logoutCalls() []logoutCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]logoutCall(nil), b.logouts...)
}

func (b *fakeBackend) heartbeatCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.heartbeats)
}

func (b *fakeBackend) registrations() []session.RegisterRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]session.RegisterRequest(nil), b.registered...)
}

var errNetwork = errors.New("network unreachable")
