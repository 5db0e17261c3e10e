package model

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/hupe1980/symflow/core"
)

// MockChatModel is a lightweight in-memory ChatModel useful for tests & examples.
// Scripted responses are served from a FIFO queue first, then from the prompt
// keyed map, then a deterministic fallback.
type MockChatModel struct {
	mu        sync.Mutex
	info      Info
	queue     []Response
	responses map[string]string
	requests  []Request
}

// NewMockChatModel constructs a MockChatModel with tool support enabled.
func NewMockChatModel() *MockChatModel {
	return &MockChatModel{
		info: Info{
			Name:          "mock-chat",
			Provider:      "mock",
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion keyed by the last
// message content of the request.
func (m *MockChatModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[prompt] = response
}

// Enqueue schedules final text responses served in FIFO order before any
// keyed lookup. Useful for scripting retry sequences.
func (m *MockChatModel) Enqueue(texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, text := range texts {
		m.queue = append(m.queue, Response{Text: text, FinishReason: "stop"})
	}
}

// EnqueueToolCalls schedules a final response requesting the given tool calls.
func (m *MockChatModel) EnqueueToolCalls(calls ...core.ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, Response{ToolCalls: calls, FinishReason: "tool_calls"})
}

// Requests returns a copy of every request seen so far.
func (m *MockChatModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// LastRequest returns the most recent request, or nil if none were made.
func (m *MockChatModel) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.requests) == 0 {
		return nil
	}

	req := m.requests[len(m.requests)-1]

	return &req
}

// Calls returns how many generate calls were made.
func (m *MockChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Generate implements ChatModel; emits optional streaming char chunks then
// the scripted final response.
func (m *MockChatModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	final := m.nextResponse(req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if req.Stream && final.Text != "" {
			for _, r := range final.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}

		respCh <- final
	}()

	return respCh, errCh
}

// Info implements ChatModel.
func (m *MockChatModel) Info() Info { return m.info }

func (m *MockChatModel) nextResponse(req Request) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.queue) > 0 {
		final := m.queue[0]
		m.queue = m.queue[1:]

		return final
	}

	var last string
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}

	if scripted, ok := m.responses[last]; ok {
		return Response{Text: scripted, FinishReason: "stop"}
	}

	return Response{Text: fmt.Sprintf("Mock response to: %s", last), FinishReason: "stop"}
}

// MockEmbeddingModel is a deterministic in-memory EmbeddingModel. Unscripted
// texts are embedded by folding their bytes into a fixed-size vector, so the
// same text always maps to the same unit vector.
type MockEmbeddingModel struct {
	mu      sync.Mutex
	info    Info
	dim     int
	vectors map[string][]float64
}

// NewMockEmbeddingModel creates a mock embedder with the given dimensionality.
func NewMockEmbeddingModel(dim int) *MockEmbeddingModel {
	if dim <= 0 {
		dim = 8
	}

	return &MockEmbeddingModel{
		info:    Info{Name: "mock-embedding", Provider: "mock"},
		dim:     dim,
		vectors: make(map[string][]float64),
	}
}

// AddVector registers a scripted embedding for a text.
func (m *MockEmbeddingModel) AddVector(text string, vector []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vectors[text] = vector
}

// Embed implements EmbeddingModel.
func (m *MockEmbeddingModel) Embed(_ context.Context, texts []string) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]float64, len(texts))
	for i, text := range texts {
		if scripted, ok := m.vectors[text]; ok {
			out[i] = scripted
			continue
		}

		out[i] = foldEmbed(text, m.dim)
	}

	return out, nil
}

// Info implements EmbeddingModel.
func (m *MockEmbeddingModel) Info() Info { return m.info }

func foldEmbed(text string, dim int) []float64 {
	vector := make([]float64, dim)
	for i, b := range []byte(text) {
		vector[i%dim] += float64(b)
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}

	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vector {
			vector[i] /= norm
		}
	}

	return vector
}
