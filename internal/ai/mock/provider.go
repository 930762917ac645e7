// Package mock provides a deterministic ai.Provider for development and tests.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/tollgate/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	GenerateResponse *ai.GenerateResult
	GenerateError    error

	// Call tracking for testing
	GenerateCalls int
	LastParams    ai.GenerateParams
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Generate returns a canned response that echoes the prompt.
func (p *Provider) Generate(ctx context.Context, params ai.GenerateParams) (*ai.GenerateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GenerateCalls++
	p.LastParams = params

	if err := params.Validate(); err != nil {
		return nil, ai.WrapError("generate", err)
	}
	if p.GenerateError != nil {
		return nil, p.GenerateError
	}
	if p.GenerateResponse != nil {
		res := *p.GenerateResponse
		return &res, nil
	}

	text := fmt.Sprintf("Draft based on your request: %q. Replace this mock output by setting AI_PROVIDER=anthropic.", params.Prompt)
	return &ai.GenerateResult{
		Text: text,
		Usage: ai.UsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  len([]rune(params.Prompt)) / 4,
			OutputTokens: len([]rune(text)) / 4,
			Duration:     5 * time.Millisecond,
		},
	}, nil
}

// Calls returns the number of Generate calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.GenerateCalls
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = 0
	p.LastParams = ai.GenerateParams{}
	p.GenerateResponse = nil
	p.GenerateError = nil
}

var _ ai.Provider = (*Provider)(nil)
