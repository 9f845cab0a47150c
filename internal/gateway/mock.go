package gateway

import (
	"context"
	"strings"
	"time"
)

type mockGateway struct{}

func NewMockGateway() Gateway { return &mockGateway{} }

func (m *mockGateway) Send(ctx context.Context, query, language string) (string, error) {
	select {
	case <-ctx.Done():
		return "", failure(ctx.Err())
	case <-time.After(20 * time.Millisecond):
	}
	return "[mock reply (" + language + ") for " + strings.TrimSpace(query) + "]", nil
}
