package upstream

import (
	"context"
	"net/http"
	"net/url"
)

// AlertService forwards alert actions to the admin API.
type AlertService struct {
	c *Client
}

// Alerts returns the alert action service.
func (c *Client) Alerts() *AlertService {
	return &AlertService{c: c}
}

// Acknowledge calls POST /alerts/{id}/acknowledge.
func (s *AlertService) Acknowledge(ctx context.Context, id string) error {
	return s.c.do(ctx, GroupAlerts, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/acknowledge", nil, nil, nil)
}

// Resolve calls POST /alerts/{id}/resolve.
func (s *AlertService) Resolve(ctx context.Context, id string) error {
	return s.c.do(ctx, GroupAlerts, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/resolve", nil, nil, nil)
}

// Delete calls DELETE /alerts/{id}.
func (s *AlertService) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, GroupAlerts, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil, nil, nil)
}
