package repository

import (
	"context"
	"fmt"

	"StratGov/internal/domain/models"
	xhttp "StratGov/pkg/http"
)

// WebhookSink POSTs each alert as JSON to an operator-provided endpoint,
// typically a chat or pager relay. Delivery failures surface to the
// caller; the emitters log and count them without retrying.
type WebhookSink struct {
	url    string
	client *xhttp.Client
}

// NewWebhookSink creates a sink for the given endpoint URL.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: xhttp.NewClient(),
	}
}

func (s *WebhookSink) Publish(ctx context.Context, a models.Alert) error {
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.url,
		Body:   a,
	}, nil)
	if err != nil {
		return fmt.Errorf("webhook alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *WebhookSink) Close() error { return nil }
