// Package transport talks to the Twilio REST API: outbound message
// sends and the authenticated media passthrough.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/config"
)

// Error is a transport-level failure carrying the provider's message.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("twilio request failed (%d): %s", e.StatusCode, e.Message)
}

// SendResponse is the provider's acknowledgement of an accepted send.
type SendResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client is a thin Twilio REST client. Send is invoked once per dispatch;
// retry policy lives with the caller.
type Client struct {
	httpClient   *http.Client
	logger       *zap.Logger
	accountSID   string
	authToken    string
	apiBaseURL   string
	mediaBaseURL string
}

func NewClient(cfg *config.TwilioConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		logger:       logger,
		accountSID:   cfg.AccountSID,
		authToken:    cfg.AuthToken,
		apiBaseURL:   "https://api.twilio.com",
		mediaBaseURL: fmt.Sprintf("https://mcs.%s.twilio.com", cfg.MediaRegion),
	}
}

// SetBaseURLs overrides the provider endpoints, used by tests.
func (c *Client) SetBaseURLs(api, media string) {
	c.apiBaseURL = api
	c.mediaBaseURL = media
}

// Send submits one outbound message and returns the provider sid and
// initial status. from and to are channel addresses (whatsapp:+...).
func (c *Client) Send(ctx context.Context, from, to, body string) (*SendResponse, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.apiBaseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach provider: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	var sendResp SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, fmt.Errorf("failed to decode send response: %w", err)
	}
	if sendResp.Status == "" {
		sendResp.Status = "queued"
	}
	return &sendResp, nil
}

// MessageMediaURL builds the direct media URL for classic MMS media.
func (c *Client) MessageMediaURL(messageSID, mediaSID string) string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages/%s/Media/%s",
		c.apiBaseURL, c.accountSID, messageSID, mediaSID)
}

// ConversationMediaURL builds the content URL for Conversations API media.
func (c *Client) ConversationMediaURL(serviceSID, mediaSID string) string {
	return fmt.Sprintf("%s/v1/Services/%s/Media/%s/Content", c.mediaBaseURL, serviceSID, mediaSID)
}

// ProxyMedia streams the authenticated media resource at mediaURL into w,
// forwarding content type and length. The returned bool reports whether
// anything reached the response: once the copy has started, the caller
// can no longer substitute an error body.
func (c *Client) ProxyMedia(ctx context.Context, mediaURL string, w http.ResponseWriter) (bool, error) {
	if c.accountSID == "" || c.authToken == "" {
		return false, &Error{StatusCode: http.StatusBadGateway, Message: "missing provider credentials"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create media request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close media body", zap.Error(err))
		}
	}()

	if resp.StatusCode >= 400 {
		return false, &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("media response %d", resp.StatusCode)}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n > 0, fmt.Errorf("failed to stream media: %w", err)
	}
	return true, nil
}
