package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/internal/types"
)

// ErrTimeout marks a model call that exceeded its rank's deadline. The
// cascade treats it as a signal to fall through to the next rank.
var ErrTimeout = errors.New("model call timed out")

// ErrTransport marks any other failure reaching or reading the model.
var ErrTransport = errors.New("model transport error")

// InvokerConfig represents the configuration for an Invoker.
type InvokerConfig struct {
	LLM         types.LLM
	Sink        types.AttemptSink
	RateLimit   float64 // model calls per second, shared across workers
	Temperature float64
	MaxTokens   int
}

// Invoker calls one ranked model under a bounded timeout and records one
// CascadeAttempt per call. It never retries; fallback belongs to the cascade.
type Invoker struct {
	config  InvokerConfig
	limiter *rate.Limiter
}

// NewInvoker creates a new Invoker with the given configuration.
func NewInvoker(config InvokerConfig) (*Invoker, error) {
	if config.LLM == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2.0
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}

	return &Invoker{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Invoke runs one call against the descriptor's model. The returned error
// wraps ErrTimeout or ErrTransport so the cascade can classify it.
func (iv *Invoker) Invoke(ctx context.Context, model types.ModelDescriptor, chunkID, prompt string) (string, error) {
	if err := iv.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	timeout := model.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	gen, err := iv.config.LLM.Generate(callCtx, model.ModelID, prompt, types.GenerateOptions{
		Temperature: iv.config.Temperature,
		MaxTokens:   iv.config.MaxTokens,
	})

	latency := time.Since(start).Milliseconds()
	if gen != nil && gen.LatencyMS > 0 {
		latency = gen.LatencyMS
	}

	iv.record(models.CascadeAttempt{
		Rank:      model.Rank,
		ModelID:   model.ModelID,
		LatencyMS: latency,
		Succeeded: err == nil,
		ChunkID:   chunkID,
	})

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: model %s after %s", ErrTimeout, model.ModelID, timeout)
		}
		return "", fmt.Errorf("%w: model %s: %v", ErrTransport, model.ModelID, err)
	}

	return gen.Text, nil
}

func (iv *Invoker) record(attempt models.CascadeAttempt) {
	if iv.config.Sink != nil {
		iv.config.Sink.RecordAttempt(attempt)
	}
}
