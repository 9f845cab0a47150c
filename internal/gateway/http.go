package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/loqalabs/aacharya/internal/protocol"
)

var errEmptyReply = errors.New("response body has no reply text")

type chatClient interface {
	Chat(ctx context.Context, query, language string) (protocol.ChatResponse, error)
}

type httpGateway struct {
	client chatClient
}

// NewHTTPGateway sends queries to POST /api/chat through client.
func NewHTTPGateway(client chatClient) Gateway {
	return &httpGateway{client: client}
}

func (g *httpGateway) Send(ctx context.Context, query, language string) (string, error) {
	resp, err := g.client.Chat(ctx, query, language)
	if err != nil {
		return "", failure(err)
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", failure(errEmptyReply)
	}
	return resp.Response, nil
}
