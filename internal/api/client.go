package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/loqalabs/aacharya/internal/config"
	"github.com/loqalabs/aacharya/internal/protocol"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.Status)
}

// Client talks to the health-assistant backend.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg config.APIConfig) *Client {
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond})
}

func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) Chat(ctx context.Context, query, language string) (protocol.ChatResponse, error) {
	var resp protocol.ChatResponse
	err := c.do(ctx, http.MethodPost, protocol.PathChat, "", protocol.ChatRequest{Query: query, Language: language}, &resp)
	return resp, err
}

func (c *Client) GetAlerts(ctx context.Context) ([]protocol.Alert, error) {
	var alerts []protocol.Alert
	err := c.do(ctx, http.MethodGet, protocol.PathGetAlerts, "", nil, &alerts)
	return alerts, err
}

func (c *Client) Login(ctx context.Context, username, password string) (protocol.LoginResponse, error) {
	var resp protocol.LoginResponse
	err := c.do(ctx, http.MethodPost, protocol.PathWorkerLogin, "", protocol.LoginRequest{Username: username, Password: password}, &resp)
	return resp, err
}

func (c *Client) BroadcastAlert(ctx context.Context, token, message string) error {
	var resp protocol.StatusResponse
	return c.do(ctx, http.MethodPost, protocol.PathBroadcastAlert, token, protocol.BroadcastAlertRequest{Message: message}, &resp)
}

func (c *Client) ClearAlerts(ctx context.Context, token string) error {
	var resp protocol.StatusResponse
	return c.do(ctx, http.MethodPost, protocol.PathClearAlerts, token, nil, &resp)
}

func (c *Client) GetInventory(ctx context.Context, token string) ([]protocol.InventoryItem, error) {
	var items []protocol.InventoryItem
	err := c.do(ctx, http.MethodGet, protocol.PathGetInventory, token, nil, &items)
	return items, err
}

func (c *Client) UpdateInventory(ctx context.Context, token, itemName string, quantity int) error {
	var resp protocol.StatusResponse
	req := protocol.UpdateInventoryRequest{ItemName: itemName, Quantity: quantity}
	return c.do(ctx, http.MethodPost, protocol.PathUpdateInventory, token, req, &resp)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Detail: detailOf(data)}
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// detailOf extracts the human-readable "detail" of an error body. Validation
// errors carry a list there, which is flattened to its JSON text.
func detailOf(data []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := sonic.Unmarshal(data, &body); err != nil || body.Detail == nil {
		return ""
	}
	if s, ok := body.Detail.(string); ok {
		return s
	}
	raw, err := sonic.MarshalString(body.Detail)
	if err != nil {
		return ""
	}
	return raw
}
