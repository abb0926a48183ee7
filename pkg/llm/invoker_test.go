package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/internal/types"
)

type stubLLM struct {
	text string
	err  error
	// blockUntilDeadline makes the call hang until the per-call context
	// expires, simulating a slow model.
	blockUntilDeadline bool
}

func (s *stubLLM) Generate(ctx context.Context, modelID, prompt string, opts types.GenerateOptions) (*types.Generation, error) {
	if s.blockUntilDeadline {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &types.Generation{Text: s.text}, nil
}

type attemptRecorder struct {
	mu       sync.Mutex
	attempts []models.CascadeAttempt
}

func (r *attemptRecorder) RecordAttempt(a models.CascadeAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *attemptRecorder) all() []models.CascadeAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.CascadeAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

func TestInvokeSuccess(t *testing.T) {
	sink := &attemptRecorder{}
	invoker, err := NewInvoker(InvokerConfig{
		LLM:       &stubLLM{text: "[]"},
		Sink:      sink,
		RateLimit: 1000,
	})
	require.NoError(t, err)

	text, err := invoker.Invoke(context.Background(), types.ModelDescriptor{
		Rank:    1,
		ModelID: "qwen2.5:14b",
	}, "chunk-1", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[]", text)

	attempts := sink.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].Rank)
	assert.Equal(t, "qwen2.5:14b", attempts[0].ModelID)
	assert.Equal(t, "chunk-1", attempts[0].ChunkID)
	assert.True(t, attempts[0].Succeeded)
}

func TestInvokeTimeoutClassification(t *testing.T) {
	sink := &attemptRecorder{}
	invoker, err := NewInvoker(InvokerConfig{
		LLM:       &stubLLM{blockUntilDeadline: true},
		Sink:      sink,
		RateLimit: 1000,
	})
	require.NoError(t, err)

	_, err = invoker.Invoke(context.Background(), types.ModelDescriptor{
		Rank:    1,
		ModelID: "qwen2.5:14b",
		Timeout: 10 * time.Millisecond,
	}, "chunk-1", "prompt")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	attempts := sink.all()
	require.Len(t, attempts, 1, "a timed-out call still records its attempt")
	assert.False(t, attempts[0].Succeeded)
}

func TestInvokeTransportClassification(t *testing.T) {
	sink := &attemptRecorder{}
	invoker, err := NewInvoker(InvokerConfig{
		LLM:       &stubLLM{err: errors.New("connection refused")},
		Sink:      sink,
		RateLimit: 1000,
	})
	require.NoError(t, err)

	_, err = invoker.Invoke(context.Background(), types.ModelDescriptor{
		Rank:    2,
		ModelID: "llama3.2:3b",
	}, "chunk-1", "prompt")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrTimeout)

	attempts := sink.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, 2, attempts[0].Rank)
	assert.False(t, attempts[0].Succeeded)
}

func TestNewInvokerRequiresClient(t *testing.T) {
	_, err := NewInvoker(InvokerConfig{})
	assert.Error(t, err)
}
