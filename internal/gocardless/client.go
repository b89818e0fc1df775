package gocardless

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"squeegee/pkg/logging"
)

const apiVersion = "2015-07-06"

// Client wraps the GoCardless Billing Requests API: one-off instant payments,
// Direct Debit mandate authorisation flows and recurring subscriptions.
type Client struct {
	http          *resty.Client
	webhookSecret string
	environment   string
	logger        logging.Logger
}

// Config for creating a new GoCardless client
type Config struct {
	AccessToken   string // GC_ACCESS_TOKEN
	Environment   string // sandbox or live
	WebhookSecret string // for webhook signature verification
	BaseURL       string // overrides the environment-derived API base URL
	Logger        logging.Logger
}

// NewClient creates a new GoCardless client
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("GoCardless access token is required")
	}

	env := cfg.Environment
	if env == "" {
		env = "sandbox"
	}

	baseURL := "https://api-sandbox.gocardless.com"
	if env == "live" {
		baseURL = "https://api.gocardless.com"
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Authorization", "Bearer "+cfg.AccessToken).
		SetHeader("GoCardless-Version", apiVersion).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:          http,
		webhookSecret: cfg.WebhookSecret,
		environment:   env,
		logger:        cfg.Logger,
	}, nil
}

// IsSandbox reports whether the client talks to the sandbox environment.
func (c *Client) IsSandbox() bool {
	return c.environment != "live"
}

// APIError is a non-2xx response from the GoCardless API. The raw body is
// kept for diagnostics and surfaced by handlers as a 502.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gocardless API error (status %d): %s", e.StatusCode, e.Body)
}

// BillingRequestLinks holds the provider resource links consumed here
type BillingRequestLinks struct {
	MandateRequestMandate string `json:"mandate_request_mandate"`
	PaymentRequestPayment string `json:"payment_request_payment"`
	Customer              string `json:"customer"`
}

// BillingRequest is the provider-side payment or mandate intent
type BillingRequest struct {
	ID       string              `json:"id"`
	Status   string              `json:"status"`
	Links    BillingRequestLinks `json:"links"`
	Metadata map[string]string   `json:"metadata"`
}

// BillingRequestFlow is the hosted authorisation session bound to a request
type BillingRequestFlow struct {
	ID               string `json:"id"`
	AuthorisationURL string `json:"authorisation_url"`
	Links            struct {
		BillingRequest string `json:"billing_request"`
	} `json:"links"`
}

// Subscription is a recurring Direct Debit collection against a mandate
type Subscription struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Links    struct {
		Mandate string `json:"mandate"`
	} `json:"links"`
}

type billingRequestEnvelope struct {
	BillingRequests *BillingRequest `json:"billing_requests"`
}

type flowEnvelope struct {
	BillingRequestFlows *BillingRequestFlow `json:"billing_request_flows"`
}

type subscriptionEnvelope struct {
	Subscriptions *Subscription `json:"subscriptions"`
}

func upstreamErr(resp *resty.Response) error {
	return &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
}

// CreatePaymentRequest creates a billing request for a one-off payment
func (c *Client) CreatePaymentRequest(ctx context.Context, amountPence int64, currency, description string, metadata map[string]string) (*BillingRequest, error) {
	if currency == "" {
		currency = "GBP"
	}

	body := map[string]interface{}{
		"billing_requests": map[string]interface{}{
			"payment_request": map[string]interface{}{
				"amount":      amountPence,
				"currency":    currency,
				"description": description,
			},
			"metadata": metadata,
		},
	}

	var result billingRequestEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/billing_requests")
	if err != nil {
		return nil, fmt.Errorf("failed to create billing request: %w", err)
	}
	if resp.IsError() || result.BillingRequests == nil {
		return nil, upstreamErr(resp)
	}

	c.logger.WithFields(logging.Fields{
		"billing_request_id": result.BillingRequests.ID,
		"amount_pence":       amountPence,
		"currency":           currency,
	}).Info("Created GoCardless payment billing request")

	return result.BillingRequests, nil
}

// CreateMandateRequest creates a billing request authorising a recurring mandate
func (c *Client) CreateMandateRequest(ctx context.Context, currency string, metadata map[string]string) (*BillingRequest, error) {
	if currency == "" {
		currency = "GBP"
	}

	body := map[string]interface{}{
		"billing_requests": map[string]interface{}{
			"mandate_request": map[string]interface{}{
				"scheme":   "bacs",
				"currency": currency,
			},
			"metadata": metadata,
		},
	}

	var result billingRequestEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/billing_requests")
	if err != nil {
		return nil, fmt.Errorf("failed to create mandate billing request: %w", err)
	}
	if resp.IsError() || result.BillingRequests == nil {
		return nil, upstreamErr(resp)
	}

	c.logger.WithField("billing_request_id", result.BillingRequests.ID).
		Info("Created GoCardless mandate billing request")

	return result.BillingRequests, nil
}

// FlowParams customises the hosted authorisation flow
type FlowParams struct {
	BillingRequestID string
	RedirectURI      string
	ExitURI          string
	CompanyName      string
	Email            string
}

// CreateFlow creates the hosted checkout session for a billing request
func (c *Client) CreateFlow(ctx context.Context, params FlowParams) (*BillingRequestFlow, error) {
	flow := map[string]interface{}{
		"links": map[string]string{
			"billing_request": params.BillingRequestID,
		},
		"auto_fulfil": true,
	}
	if params.RedirectURI != "" {
		flow["redirect_uri"] = params.RedirectURI
	}
	if params.ExitURI != "" {
		flow["exit_uri"] = params.ExitURI
	}
	if params.CompanyName != "" || params.Email != "" {
		flow["prefilled_customer"] = map[string]string{
			"company_name": params.CompanyName,
			"email":        params.Email,
		}
	}

	var result flowEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"billing_request_flows": flow}).
		SetResult(&result).
		Post("/billing_request_flows")
	if err != nil {
		return nil, fmt.Errorf("failed to create billing request flow: %w", err)
	}
	if resp.IsError() || result.BillingRequestFlows == nil {
		return nil, upstreamErr(resp)
	}

	c.logger.WithFields(logging.Fields{
		"flow_id":            result.BillingRequestFlows.ID,
		"billing_request_id": params.BillingRequestID,
	}).Info("Created GoCardless billing request flow")

	return result.BillingRequestFlows, nil
}

// CompleteFlow completes a flow after the customer returns from checkout,
// resolving the billing request it was bound to.
func (c *Client) CompleteFlow(ctx context.Context, flowID string) (*BillingRequestFlow, error) {
	var result flowEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{}).
		SetResult(&result).
		Post("/billing_request_flows/" + flowID + "/actions/complete")
	if err != nil {
		return nil, fmt.Errorf("failed to complete billing request flow: %w", err)
	}
	if resp.IsError() || result.BillingRequestFlows == nil {
		return nil, upstreamErr(resp)
	}

	return result.BillingRequestFlows, nil
}

// GetBillingRequest retrieves a billing request by id
func (c *Client) GetBillingRequest(ctx context.Context, id string) (*BillingRequest, error) {
	var result billingRequestEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/billing_requests/" + id)
	if err != nil {
		return nil, fmt.Errorf("failed to get billing request: %w", err)
	}
	if resp.IsError() || result.BillingRequests == nil {
		return nil, upstreamErr(resp)
	}

	return result.BillingRequests, nil
}

// CreateSubscription creates a monthly subscription collecting against a mandate
func (c *Client) CreateSubscription(ctx context.Context, mandateID string, amountPence int64, currency, name string) (*Subscription, error) {
	if currency == "" {
		currency = "GBP"
	}

	body := map[string]interface{}{
		"subscriptions": map[string]interface{}{
			"amount":        amountPence,
			"currency":      currency,
			"name":          name,
			"interval_unit": "monthly",
			"links": map[string]string{
				"mandate": mandateID,
			},
		},
	}

	var result subscriptionEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/subscriptions")
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	if resp.IsError() || result.Subscriptions == nil {
		return nil, upstreamErr(resp)
	}

	c.logger.WithFields(logging.Fields{
		"subscription_id": result.Subscriptions.ID,
		"mandate_id":      mandateID,
		"amount_pence":    amountPence,
	}).Info("Created GoCardless subscription")

	return result.Subscriptions, nil
}

// HasWebhookSecret returns true when webhook signature verification is configured.
func (c *Client) HasWebhookSecret() bool {
	return c.webhookSecret != ""
}

// VerifyWebhook verifies the Webhook-Signature header: hex HMAC-SHA256 of the
// raw body keyed with the endpoint secret, compared in constant time.
func (c *Client) VerifyWebhook(payload []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
