package session

import (
	"context"

	"github.com/loqalabs/aacharya/internal/protocol"
)

type emptyFetcher struct{}

func (emptyFetcher) FetchAlerts(context.Context) []protocol.Alert { return nil }

func (c *Controller) loadAlerts() {
	defer c.wg.Done()
	defer close(c.alertsLoaded)

	fetched := c.fetcher.FetchAlerts(c.ctx)

	c.mu.Lock()
	// live alerts that arrived during the fetch stay in front
	merged := append([]protocol.Alert(nil), c.alerts...)
	for _, a := range fetched {
		if !containsAlert(merged, a) {
			merged = append(merged, a)
		}
	}
	c.alerts = merged
	c.mu.Unlock()
	c.notify()
}

// AlertsLoaded is closed once the initial alert fetch has finished.
func (c *Controller) AlertsLoaded() <-chan struct{} {
	return c.alertsLoaded
}

// Alerts returns at most MaxAlerts alerts, newest first.
func (c *Controller) Alerts() []protocol.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibleAlerts()
}

func (c *Controller) visibleAlerts() []protocol.Alert {
	n := len(c.alerts)
	if n > c.maxAlerts {
		n = c.maxAlerts
	}
	return append([]protocol.Alert{}, c.alerts[:n]...)
}

// IngestAlert places a live alert at the front of the list. Alerts already
// present are ignored.
func (c *Controller) IngestAlert(a protocol.Alert) {
	c.mu.Lock()
	if containsAlert(c.alerts, a) {
		c.mu.Unlock()
		return
	}
	c.alerts = append([]protocol.Alert{a}, c.alerts...)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) ClearAlerts() {
	c.mu.Lock()
	c.alerts = nil
	c.mu.Unlock()
	c.notify()
}

// containsAlert matches by ID, or by message for alerts announced before the
// backend assigned an ID.
func containsAlert(list []protocol.Alert, a protocol.Alert) bool {
	for _, existing := range list {
		if a.ID != 0 && existing.ID == a.ID {
			return true
		}
		if (a.ID == 0 || existing.ID == 0) && existing.Message == a.Message {
			return true
		}
	}
	return false
}
