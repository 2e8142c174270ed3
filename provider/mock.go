package provider

import (
	"context"
	"sync"
	"time"

	"github.com/harrowgate/llmgate/types"
)

// MockAdapter is a builder-style test double implementing Adapter, grounded
// on the teacher's testutil/mocks.MockProvider (WithResponse/WithError/
// WithStreamChunks/WithFailAfter builder API), re-pointed at this module's
// Request/GenerationResponse/StreamEvent types.
type MockAdapter struct {
	mu sync.Mutex

	name         string
	response     string
	streamChunks []string
	err          error
	usage        types.TokenUsage
	delay        time.Duration
	failAfter    int
	callCount    int
	calls        []MockCall

	invokeFunc func(ctx context.Context, req types.Request) (types.GenerationResponse, error)
}

// MockCall records one Invoke/Stream call for assertions.
type MockCall struct {
	Request  types.Request
	Response types.GenerationResponse
	Err      error
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		name:     "mock",
		response: "mock response",
		usage:    types.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30, UsageKnown: true},
	}
}

func (m *MockAdapter) WithResponse(response string) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

func (m *MockAdapter) WithError(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockAdapter) WithStreamChunks(chunks []string) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

func (m *MockAdapter) WithUsage(usage types.TokenUsage) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = usage
	return m
}

func (m *MockAdapter) WithDelay(d time.Duration) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter makes the adapter fail with err starting on the (n+1)th call.
func (m *MockAdapter) WithFailAfter(n int, err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.err = err
	return m
}

func (m *MockAdapter) WithInvokeFunc(fn func(ctx context.Context, req types.Request) (types.GenerationResponse, error)) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokeFunc = fn
	return m
}

func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) Invoke(ctx context.Context, req types.Request, deadline time.Time) (types.GenerationResponse, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	delay := m.delay
	customFn := m.invokeFunc
	failAfter := m.failAfter
	presetErr := m.err
	response := m.response
	usage := m.usage
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return types.GenerationResponse{}, types.NewError(types.ErrCancelled, "invoke cancelled").WithCause(ctx.Err())
		case <-time.After(delay):
		}
	}

	if customFn != nil {
		resp, err := customFn(ctx, req)
		m.recordCall(req, resp, err)
		return resp, err
	}

	if failAfter > 0 && count > failAfter {
		m.recordCall(req, types.GenerationResponse{}, presetErr)
		return types.GenerationResponse{}, presetErr
	}
	if presetErr != nil && failAfter == 0 {
		m.recordCall(req, types.GenerationResponse{}, presetErr)
		return types.GenerationResponse{}, presetErr
	}

	resp := types.GenerationResponse{
		Content:      response,
		Model:        req.Model.Alias,
		Provider:     m.name,
		Usage:        usage,
		FinishReason: types.FinishStop,
		TraceID:      req.TraceID,
	}
	m.recordCall(req, resp, nil)
	return resp, nil
}

func (m *MockAdapter) Stream(ctx context.Context, req types.Request, deadline time.Time) (<-chan types.StreamEvent, error) {
	m.mu.Lock()
	m.callCount++
	presetErr := m.err
	chunks := append([]string(nil), m.streamChunks...)
	response := m.response
	usage := m.usage
	m.mu.Unlock()

	if presetErr != nil {
		return nil, presetErr
	}
	if len(chunks) == 0 {
		chunks = []string{response}
	}

	ch := make(chan types.StreamEvent, len(chunks)+1)
	go func() {
		defer close(ch)
		for i, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- types.StreamEvent{
				Delta:   c,
				IsFinal: i == len(chunks)-1,
				Usage:   &usage,
			}:
			}
		}
	}()
	return ch, nil
}

func (m *MockAdapter) EstimateTokens(req types.Request) int {
	total := 0
	for _, p := range req.Parts {
		total += estimateTextTokens(p.Text)
	}
	return total
}

func (m *MockAdapter) recordCall(req types.Request, resp types.GenerationResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Request: req, Response: resp, Err: err})
}

func (m *MockAdapter) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *MockAdapter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
