// Package providers implements LLM provider integrations for the planner.
//
// Each provider adapts one vendor SDK to the ChatCompleter interface: a
// single-shot completion call with retry and backoff. The planner owns JSON
// parsing and validation; providers only move text.
package providers

import (
	"context"
	"errors"
	"strings"
	"time"
)

// CompletionRequest is a single planning call.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// CompletionResponse carries the model reply and accounting metadata.
type CompletionResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// ChatCompleter is the planner's view of an LLM.
type ChatCompleter interface {
	// Complete sends one prompt and returns the full reply text.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	// Model returns the configured model identifier.
	Model() string
}

// RetryConfig bounds the shared retry loop.
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// withRetries runs fn with exponential backoff on retryable errors.
func withRetries(ctx context.Context, cfg RetryConfig, fn func() (*CompletionResponse, error)) (*CompletionResponse, error) {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil || attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// isRetryable reports whether the error looks transient: rate limits,
// overloaded backends, and gateway errors.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "overloaded", "529",
		"500", "502", "503", "504", "timeout", "connection reset",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
