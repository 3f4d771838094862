// Package llm is the language-model collaborator used by the filter, the
// importance scorer, the feed suggestion engine and the summary writer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/metrics"
)

var (
	ErrOffline       = errors.New("llm: offline mode")
	ErrEmptyResponse = errors.New("llm: empty response")
	ErrRateLimited   = errors.New("llm: request budget exhausted")
)

// Request is one prompt submission. Temperature is optional.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float32
}

// Invoker submits a prompt and returns the model's text.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to Invoker.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Offline is the mock-mode invoker: every call fails with ErrOffline so that
// callers take their algorithmic fallback paths.
type Offline struct{}

func (Offline) Invoke(context.Context, Request) (string, error) {
	return "", ErrOffline
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float32) *float32 {
	return &t
}

// Call invokes inv with a per-call timeout and records the outcome. A nil
// invoker behaves like Offline.
func Call(ctx context.Context, inv Invoker, timeout time.Duration, req Request) (string, error) {
	if inv == nil {
		return "", ErrOffline
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := inv.Invoke(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if errors.Is(err, ErrOffline) {
		return "", err
	}

	metrics.Global.RecordLLMCall(err)
	if err != nil {
		logger.Warn("llm call failed", "model", req.Model, "err", err)
		return "", fmt.Errorf("invoke %s: %w", req.Model, err)
	}
	return text, nil
}
