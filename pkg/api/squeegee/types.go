package squeegee

import (
	"time"

	"squeegee/pkg/api/common"
)

// ErrorResponse is a type alias to the common error response
type ErrorResponse = common.ErrorResponse

// CreateInstantPayLinkRequest creates a one-off payment link for SMS credits
type CreateInstantPayLinkRequest struct {
	Amount       int64  `json:"amount"` // minor currency units (pennies)
	Currency     string `json:"currency,omitempty"`
	Description  string `json:"description,omitempty"`
	SubscriberID string `json:"subscriberId,omitempty"`
	PackageID    string `json:"packageId,omitempty"`
}

// CreateInstantPayLinkResponse is the created checkout session
type CreateInstantPayLinkResponse struct {
	RedirectURL    string `json:"redirect_url"`
	SessionID      string `json:"session_id"` // billing request id
	RedirectFlowID string `json:"redirect_flow_id"`
	Credits        int64  `json:"credits"`
}

// CompleteInstantPayFlowRequest completes a checkout flow on customer return
type CompleteInstantPayFlowRequest struct {
	RedirectFlowID   string `json:"redirectFlowId"`
	BillingRequestID string `json:"billingRequestId,omitempty"`
	SubscriberID     string `json:"subscriberId,omitempty"`
	Credits          int64  `json:"credits,omitempty"`
	SandboxForce     bool   `json:"sandboxForce,omitempty"`
}

// CompleteInstantPayFlowResponse reports flow completion and credit application.
// Credit bookkeeping problems surface in Error while Success stays true,
// because the checkout itself already succeeded upstream.
type CompleteInstantPayFlowResponse struct {
	Success              bool   `json:"success"`
	BillingRequestID     string `json:"billing_request_id"`
	SandboxApplied       bool   `json:"sandboxApplied"`
	SandboxAutoCompleted bool   `json:"sandboxAutoCompleted"`
	Error                string `json:"error,omitempty"`
}

// PaymentStatusResponse maps the provider status to the simplified enum
type PaymentStatusResponse struct {
	Status    string `json:"status"` // confirmed, cancelled, authorised, pending
	RawStatus string `json:"raw_status"`
}

// CreateSubscriberMandateRequest starts Direct Debit onboarding for a subscriber
type CreateSubscriberMandateRequest struct {
	SubscriberID  string `json:"subscriberId"`
	CompanyName   string `json:"companyName"`
	Email         string `json:"email"`
	MonthlyAmount int64  `json:"monthlyAmount"` // pennies
}

// CreateSubscriberMandateResponse is the hosted authorisation flow
type CreateSubscriberMandateResponse struct {
	RedirectURL      string `json:"redirect_url"`
	MandateRequestID string `json:"mandate_request_id"`
}

// FinaliseSubscriberMandateRequest activates the recurring subscription once
// the mandate has been authorised
type FinaliseSubscriberMandateRequest struct {
	SubscriberID     string `json:"subscriberId"`
	BillingRequestID string `json:"billingRequestId"`
	MonthlyAmount    int64  `json:"monthlyAmount"`
}

// FinaliseSubscriberMandateResponse carries the provisioned provider ids
type FinaliseSubscriberMandateResponse struct {
	MandateID      string `json:"mandate_id"`
	SubscriptionID string `json:"subscription_id"`
}

// NearbyRoadsResponse lists road names around a coordinate
type NearbyRoadsResponse struct {
	Names  []string `json:"names"`
	Source string   `json:"source"`
}

// SendSMSRequest forwards a message to the SMS provider
type SendSMSRequest struct {
	To           string `json:"to"`
	Message      string `json:"message"`
	Sender       string `json:"sender,omitempty"`
	SubscriberID string `json:"subscriberId,omitempty"`
}

// SendSMSResponse reports the provider outcome
type SendSMSResponse struct {
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
	Response string `json:"response"`
}

// OfflineQuote is one offline-submitted quote row for the dashboard
type OfflineQuote struct {
	ID                 string     `json:"id"`
	SubscriberID       string     `json:"subscriber_id"`
	CustomerName       string     `json:"customer_name"`
	CustomerEmail      string     `json:"customer_email,omitempty"`
	AmountPence        int64      `json:"amount_pence"`
	Status             string     `json:"status"`
	OfflineSubmitted   bool       `json:"offline_submitted"`
	OfflineEmailSent   bool       `json:"offline_email_sent"`
	PaymentLinkURL     string     `json:"payment_link_url,omitempty"`
	RetryCount         int        `json:"retry_count"`
	LastError          string     `json:"last_error,omitempty"`
	OfflineSubmittedAt *time.Time `json:"offline_submitted_at,omitempty"`
	ResentAt           *time.Time `json:"resent_at,omitempty"`
	Classification     string     `json:"classification"` // yellow, green, red
	Stale              bool       `json:"stale"`
}

// OfflineQueueResponse is the dashboard listing
type OfflineQueueResponse struct {
	Quotes []OfflineQuote `json:"quotes"`
	Count  int            `json:"count"`
}

// ResendPaymentLinkResponse reports a manual resend. Email failures are
// transient and reported inline, never persisted as a new error state.
type ResendPaymentLinkResponse struct {
	Success  bool       `json:"success"`
	ResentAt *time.Time `json:"resent_at,omitempty"`
	Error    string     `json:"error,omitempty"`
}
