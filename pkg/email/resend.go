package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const (
	defaultBaseURL = "https://api.resend.com"
	defaultTimeout = 10 * time.Second
	maxRetries     = 2
	maxBodyLog     = 512
)

// ErrDisabled is returned by Send when no API key is configured.
var ErrDisabled = errors.New("email delivery disabled: resend api key not configured")

// Message is a single outbound email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type Options struct {
	APIKey     string
	BaseURL    string
	From       string
	Timeout    time.Duration
	HTTPClient *http.Client
	RetryBase  time.Duration
}

// OptionsFromConfig maps the email config group onto client options.
func OptionsFromConfig(cfg config.EmailConfig) Options {
	return Options{
		APIKey:  cfg.ResendAPIKey,
		BaseURL: cfg.ResendURL,
		From:    cfg.FromAddress,
		Timeout: cfg.Timeout,
	}
}

// Client talks to the Resend REST API.
type Client struct {
	apiKey    string
	baseURL   string
	from      string
	http      *http.Client
	retryBase time.Duration
}

func NewClient(opts Options) (*Client, error) {
	from := strings.TrimSpace(opts.From)
	if from == "" {
		return nil, errors.New("from address is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}
	return &Client{
		apiKey:    strings.TrimSpace(opts.APIKey),
		baseURL:   baseURL,
		from:      from,
		http:      httpClient,
		retryBase: retryBase,
	}, nil
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// APIError is a non-2xx response from Resend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("resend returned %d: %s", e.StatusCode, e.Body)
}

// Send posts the message and returns the provider message id. 429 and 5xx
// responses are retried a couple of times with exponential backoff.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if len(msg.To) == 0 {
		return "", errors.New("at least one recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return "", errors.New("subject is required")
	}
	if msg.HTML == "" && msg.Text == "" {
		return "", errors.New("message body is required")
	}

	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("encode email: %w", err)
	}

	var id string
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(c.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		sent, err := c.post(ctx, body)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !retryableStatus(apiErr.StatusCode) {
				return err
			}
			return retry.RetryableError(err)
		}
		id = sent
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read resend response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(raw)
		if len(text) > maxBodyLog {
			text = text[:maxBodyLog]
		}
		return "", &APIError{StatusCode: resp.StatusCode, Body: text}
	}

	var decoded sendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode resend response: %w", err)
	}
	return decoded.ID, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
