// Package n8n talks to the n8n automation webhooks used for vendor lookup and Slack relay.
package n8n

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/config"
)

// Webhook paths relative to the n8n base URL.
const (
	vendorLookupPath = "/webhook/flow/vendor-lookup"
	slackPath        = "/webhook/flow/slack"
	eventPath        = "/webhook/flow/events"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Flow-Signature"

var (
	// ErrVendorNotFound is returned when n8n has no record for a handle.
	ErrVendorNotFound = errors.New("vendor not found in n8n")
	// ErrDisabled is returned when no base URL is configured.
	ErrDisabled = errors.New("n8n integration disabled")
)

// VendorRecord is the vendor shape returned by the lookup workflow.
type VendorRecord struct {
	Handle          string  `json:"handle"`
	Name            string  `json:"name"`
	ContactName     string  `json:"contactName"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	City            string  `json:"city"`
	Country         string  `json:"country"`
	TotalOrders     int64   `json:"totalOrders"`
	GMV             float64 `json:"gmv"`
	Rating          float64 `json:"rating"`
	IsInternational bool    `json:"isInternational"`
}

type lookupResponse struct {
	Found  bool          `json:"found"`
	Vendor *VendorRecord `json:"vendor"`
}

// SlackMessage is relayed to Slack by n8n.
type SlackMessage struct {
	Channel      string `json:"channel"`
	Text         string `json:"text"`
	TicketNumber string `json:"ticketNumber,omitempty"`
	PriorityTier string `json:"priorityTier,omitempty"`
}

// Client is the outbound n8n client.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client. An empty base URL yields a disabled client.
func NewClient(cfg config.N8NConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.WebhookSecret,
		http:    &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

// Enabled reports whether a base URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// LookupVendor asks n8n for a vendor by handle.
func (c *Client) LookupVendor(ctx context.Context, handle string) (*VendorRecord, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	var resp lookupResponse
	status, err := c.post(ctx, vendorLookupPath, map[string]string{"handle": handle}, &resp)
	if status == http.StatusNotFound {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, err
	}
	if !resp.Found || resp.Vendor == nil || resp.Vendor.Handle == "" {
		return nil, ErrVendorNotFound
	}
	return resp.Vendor, nil
}

// SendSlack relays a message to Slack.
func (c *Client) SendSlack(ctx context.Context, msg SlackMessage) error {
	if !c.Enabled() {
		return nil
	}
	_, err := c.post(ctx, slackPath, msg, nil)
	return err
}

// NotifyEvent forwards a domain event to the generic n8n workflow.
func (c *Client) NotifyEvent(ctx context.Context, eventType string, payload any) error {
	if !c.Enabled() {
		return nil
	}
	body := map[string]any{
		"event":     eventType,
		"payload":   payload,
		"timestamp": time.Now().UTC(),
	}
	_, err := c.post(ctx, eventPath, body, nil)
	return err
}

func (c *Client) post(ctx context.Context, path string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "flow-helpdesk")
	if c.secret != "" {
		req.Header.Set(SignatureHeader, Sign(c.secret, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("n8n %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug("n8n request rejected", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return resp.StatusCode, fmt.Errorf("n8n %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("n8n %s: decode: %w", path, err)
	}
	return resp.StatusCode, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
