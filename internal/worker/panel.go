package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/loqalabs/aacharya/internal/alerts"
	"github.com/loqalabs/aacharya/internal/api"
	"github.com/loqalabs/aacharya/internal/prefs"
	"github.com/loqalabs/aacharya/internal/protocol"
)

var (
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrSessionExpired   = errors.New("session expired, log in again")
	ErrEmptyCredentials = errors.New("username and password are required")
	ErrEmptyAlert       = errors.New("alert message is empty")
	ErrInvalidItem      = errors.New("item name is required and quantity must not be negative")
)

// Backend is the authenticated part of the remote API.
type Backend interface {
	Login(ctx context.Context, username, password string) (protocol.LoginResponse, error)
	BroadcastAlert(ctx context.Context, token, message string) error
	ClearAlerts(ctx context.Context, token string) error
	GetInventory(ctx context.Context, token string) ([]protocol.InventoryItem, error)
	UpdateInventory(ctx context.Context, token, itemName string, quantity int) error
}

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Panel is the health-worker console: it owns the access_token slot.
type Panel struct {
	backend Backend
	store   Store
	bus     alerts.Bus
	log     *slog.Logger
}

// NewPanel builds a panel. bus may be nil; when set, broadcasts and clears are
// also announced to live clients.
func NewPanel(backend Backend, store Store, bus alerts.Bus, log *slog.Logger) *Panel {
	return &Panel{backend: backend, store: store, bus: bus, log: log.With(slog.String("component", "worker"))}
}

func (p *Panel) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrEmptyCredentials
	}
	resp, err := p.backend.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return errors.New("login: backend returned no access token")
	}
	if err := p.store.Set(ctx, prefs.KeyAccessToken, resp.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	p.log.Info("worker logged in", slog.String("username", username))
	return nil
}

func (p *Panel) Logout(ctx context.Context) error {
	return p.store.Delete(ctx, prefs.KeyAccessToken)
}

// LoggedIn reports whether a token is stored. It does not validate it.
func (p *Panel) LoggedIn(ctx context.Context) bool {
	_, ok, err := p.store.Get(ctx, prefs.KeyAccessToken)
	return err == nil && ok
}

func (p *Panel) Broadcast(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyAlert
	}
	err := p.withToken(ctx, func(token string) error {
		return p.backend.BroadcastAlert(ctx, token, message)
	})
	if err != nil {
		return err
	}
	if p.bus != nil {
		if err := alerts.Announce(p.bus, protocol.Alert{Message: message}); err != nil {
			p.log.Warn("failed to announce alert", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (p *Panel) ClearAlerts(ctx context.Context) error {
	err := p.withToken(ctx, func(token string) error {
		return p.backend.ClearAlerts(ctx, token)
	})
	if err != nil {
		return err
	}
	if p.bus != nil {
		if err := alerts.AnnounceCleared(p.bus); err != nil {
			p.log.Warn("failed to announce clear", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (p *Panel) Inventory(ctx context.Context) ([]protocol.InventoryItem, error) {
	var items []protocol.InventoryItem
	err := p.withToken(ctx, func(token string) error {
		var err error
		items, err = p.backend.GetInventory(ctx, token)
		return err
	})
	return items, err
}

// UpdateInventory sets the quantity of itemName, creating the item if needed.
func (p *Panel) UpdateInventory(ctx context.Context, itemName string, quantity int) error {
	itemName = strings.TrimSpace(itemName)
	if itemName == "" || quantity < 0 {
		return ErrInvalidItem
	}
	return p.withToken(ctx, func(token string) error {
		return p.backend.UpdateInventory(ctx, token, itemName, quantity)
	})
}

// withToken runs fn with the stored token. A 401 drops the token.
func (p *Panel) withToken(ctx context.Context, fn func(token string) error) error {
	token, ok, err := p.store.Get(ctx, prefs.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	if !ok || token == "" {
		return ErrNotLoggedIn
	}
	err = fn(token)
	var status *api.StatusError
	if errors.As(err, &status) && status.Status == http.StatusUnauthorized {
		if delErr := p.store.Delete(ctx, prefs.KeyAccessToken); delErr != nil {
			p.log.Warn("failed to drop expired token", slog.String("error", delErr.Error()))
		}
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	return err
}
