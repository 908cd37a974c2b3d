// Package ntfy publishes booking confirmations to an ntfy topic.
package ntfy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Notifier sends messages via ntfy
type Notifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewNotifier creates a notifier for cfg.Topic on cfg.Server
func NewNotifier(cfg config.NtfyConfig) *Notifier {
	if !cfg.Enable || cfg.Topic == "" {
		return &Notifier{enabled: false}
	}
	server := strings.TrimRight(cfg.Server, "/")
	if server == "" {
		server = "https://ntfy.sh"
	}
	return &Notifier{
		url:     server + "/" + strings.TrimLeft(cfg.Topic, "/"),
		enabled: true,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// IsEnabled returns whether the notifier is enabled
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// NotifyBooking attaches the calendar document. Without one, a text summary is sent.
func (n *Notifier) NotifyBooking(ctx context.Context, conf domain.Confirmation, ics []byte) error {
	if !n.enabled {
		return nil
	}
	title := "Confirmation pour le " + conf.TargetDate.Format("02/01/2006")
	if len(ics) == 0 {
		body := fmt.Sprintf("%s - %s - %s", conf.Location, conf.DateText, conf.CourtText)
		return n.publish(ctx, title, "", []byte(body))
	}
	return n.publish(ctx, title, "event.ics", ics)
}

// NotifyFailure reports a run that ended without a booking
func (n *Notifier) NotifyFailure(ctx context.Context, result domain.BookingResult) error {
	if !n.enabled {
		return nil
	}
	title := "Échec de réservation pour le " + result.TargetDate.Format("02/01/2006")
	body := fmt.Sprintf("%d tentative(s): %s", result.Attempts, result.Reason)
	return n.publish(ctx, title, "", []byte(body))
}

func (n *Notifier) publish(ctx context.Context, title, filename string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Title", title)
	if filename != "" {
		req.Header.Set("Filename", filename)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy error: %d - %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
