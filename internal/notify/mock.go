package notify

import (
	"context"
	"sync"
)

// Mock implements Gateway for testing.
// SendFunc decides the outcome; when nil, every send reports StatusSent, or
// StatusDryRun when opts.DryRun is set.
type Mock struct {
	SendFunc func(ctx context.Context, n *Notice, opts SendOptions) Result

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Send invocation.
type MockCall struct {
	Notice Notice
	Opts   SendOptions
}

// Send records the call and returns the configured outcome.
func (m *Mock) Send(ctx context.Context, n *Notice, opts SendOptions) Result {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Notice: *n, Opts: opts})
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, n, opts)
	}
	if opts.DryRun {
		return Result{Status: StatusDryRun}
	}
	return Result{Status: StatusSent}
}

// Calls returns every recorded invocation.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// Verify Mock implements Gateway interface at compile time.
var _ Gateway = (*Mock)(nil)
