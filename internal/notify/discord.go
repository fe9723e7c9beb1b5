package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Embed colours by outcome.
const (
	colorSuccess = 0x2ECC71
	colorFailure = 0xE74C3C
	colorNeutral = 0x95A5A6
)

// DiscordSender posts alerts as webhook embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

// Send posts one embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       alert.Title,
			"description": alert.Message,
			"color":       embedColor(alert.Event),
			"footer":      map[string]string{"text": alert.Event},
		}},
	}
	if err := postJSON(ctx, d.client, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns "discord".
func (d *DiscordSender) Name() string {
	return "discord"
}

func embedColor(event string) int {
	switch {
	case strings.HasSuffix(event, ".filled"):
		return colorSuccess
	case strings.HasSuffix(event, ".failed"):
		return colorFailure
	default:
		return colorNeutral
	}
}
