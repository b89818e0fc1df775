package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"squeegee/pkg/logging"
)

// Client forwards messages to the configured SMS gateway, injecting the API
// key server-side. It is a stateless request forwarder; credit accounting
// happens in the handler layer.
type Client struct {
	http          *resty.Client
	apiURL        string
	provider      string
	defaultSender string
	logger        logging.Logger
}

// Config for creating an SMS client
type Config struct {
	APIURL        string // SMS_API_URL
	APIKey        string // SMS_API_KEY
	Provider      string // label reported back to clients
	DefaultSender string
	Logger        logging.Logger
}

// NewClient creates a new SMS client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("SMS gateway URL and API key are required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "sms-gateway"
	}

	http := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:          http,
		apiURL:        cfg.APIURL,
		provider:      provider,
		defaultSender: cfg.DefaultSender,
		logger:        cfg.Logger,
	}, nil
}

// Provider returns the provider label
func (c *Client) Provider() string {
	return c.provider
}

// SendResult is the reshaped provider response
type SendResult struct {
	Success  bool
	Response string
}

// Send forwards a message. Upstream non-2xx responses are returned as errors
// carrying the raw body.
func (c *Client) Send(ctx context.Context, to, message, sender string) (*SendResult, error) {
	if sender == "" {
		sender = c.defaultSender
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"to":      to,
			"from":    sender,
			"message": message,
		}).
		Post(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("sms send failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sms provider returned status %d: %s", resp.StatusCode(), resp.Body())
	}

	c.logger.WithFields(logging.Fields{
		"to":       to,
		"sender":   sender,
		"provider": c.provider,
	}).Info("SMS forwarded to provider")

	return &SendResult{Success: true, Response: string(resp.Body())}, nil
}
