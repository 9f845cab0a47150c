package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/loqalabs/aacharya/internal/api"
	"github.com/loqalabs/aacharya/internal/config"
)

// ErrRequestFailure wraps every failed round trip: network errors, non-2xx
// statuses and malformed or empty bodies.
var ErrRequestFailure = errors.New("chat request failed")

// Gateway sends one query to the remote assistant and returns its reply.
// Implementations never retry.
type Gateway interface {
	Send(ctx context.Context, query, language string) (string, error)
}

// New builds the gateway selected by cfg.Mode.
func New(cfg config.GatewayConfig, apiCfg config.APIConfig) (Gateway, error) {
	switch cfg.Mode {
	case "", "http":
		return NewHTTPGateway(api.New(apiCfg)), nil
	case "openai":
		httpClient := &http.Client{Timeout: time.Duration(apiCfg.TimeoutMS) * time.Millisecond}
		return NewOpenAIGateway(cfg, httpClient), nil
	case "mock":
		return NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", cfg.Mode)
	}
}

func failure(err error) error {
	return fmt.Errorf("%w: %w", ErrRequestFailure, err)
}
