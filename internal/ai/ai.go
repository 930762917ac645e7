// Package ai defines the text generation provider used by the metered
// generation endpoint.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider generates text for a principal.
type Provider interface {
	Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error)
}

// Limits on generation requests.
const (
	// MaxPromptRunes bounds the prompt accepted from clients.
	MaxPromptRunes = 8000

	// DefaultMaxTokens is used when the caller does not set MaxTokens.
	DefaultMaxTokens = 1024

	// MaxOutputTokens caps what a caller may ask for.
	MaxOutputTokens = 4096
)

// GenerateParams contains parameters for one generation call.
type GenerateParams struct {
	Prompt    string // User-supplied prompt
	Context   string // Optional extra instructions appended to the system prompt
	MaxTokens int    // Upper bound on output tokens
	Email     string // Principal, for logging only
}

// Validate checks the parameters and fills defaults.
func (p *GenerateParams) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", EAIInvalidRequest)
	}
	if n := len([]rune(p.Prompt)); n > MaxPromptRunes {
		return fmt.Errorf("%w: prompt is %d characters, maximum is %d", EAIInvalidRequest, n, MaxPromptRunes)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must be positive", EAIInvalidRequest)
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.MaxTokens > MaxOutputTokens {
		p.MaxTokens = MaxOutputTokens
	}
	return nil
}

// GenerateResult is the provider's answer.
type GenerateResult struct {
	Text  string
	Usage UsageInfo
}

// UsageInfo tracks provider-side usage for monitoring. It is not the
// billing unit; the metering service estimates that from the output.
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	CostCents    int           // Estimated cost in cents
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidRequest indicates the prompt or parameters were rejected
	EAIInvalidRequest = errors.New("invalid generation request")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
