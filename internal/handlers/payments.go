package handlers

import (
	"database/sql"
	"fmt"
	"net/http"

	"squeegee/internal/gocardless"
	api "squeegee/pkg/api/squeegee"
	"squeegee/pkg/config"
	"squeegee/pkg/logging"
	"squeegee/pkg/middleware"
)

// fallbackPencePerCredit prices credits when no package matches the amount
const fallbackPencePerCredit = 5

// creditsForPurchase resolves how many credits an amount buys: an explicit
// package wins, then a package matching the amount, then the flat rate.
func creditsForPurchase(c middleware.Context, packageID string, amountPence int64) int64 {
	if db != nil {
		var credits int64
		if packageID != "" {
			err := db.QueryRowContext(c.Request.Context(),
				`SELECT credits FROM squeegee.sms_packages WHERE id = $1 AND active = TRUE`,
				packageID).Scan(&credits)
			if err == nil {
				return credits
			}
			if err != sql.ErrNoRows {
				logger.WithError(err).WithField("package_id", packageID).Warn("Package lookup failed")
			}
		}
		err := db.QueryRowContext(c.Request.Context(),
			`SELECT credits FROM squeegee.sms_packages WHERE amount_pence = $1 AND active = TRUE`,
			amountPence).Scan(&credits)
		if err == nil {
			return credits
		}
		if err != sql.ErrNoRows {
			logger.WithError(err).Warn("Package lookup by amount failed")
		}
	}
	return amountPence / fallbackPencePerCredit
}

// CreateInstantPayLink creates a one-off payment billing request plus its
// hosted checkout flow and returns the redirect URL.
func CreateInstantPayLink(c middleware.Context) {
	var req api.CreateInstantPayLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid request body: "+err.Error())
		return
	}

	if req.Amount <= 0 {
		respondError(c, http.StatusBadRequest, codeValidation, "amount must be a positive integer in pence")
		return
	}

	if gcClient == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "payment provider is not configured")
		return
	}

	credits := creditsForPurchase(c, req.PackageID, req.Amount)

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("%d SMS credits", credits)
	}

	metadata := map[string]string{"purpose": "sms_credits"}
	if req.SubscriberID != "" {
		metadata["subscriber_id"] = req.SubscriberID
	}

	br, err := gcClient.CreatePaymentRequest(c.Request.Context(), req.Amount, req.Currency, description, metadata)
	if err != nil {
		if metrics != nil {
			metrics.PaymentLinksCreated.WithLabelValues("error").Inc()
		}
		logger.WithError(err).Error("Failed to create payment billing request")
		respondUpstreamError(c, err, "failed to create payment link")
		return
	}

	flow, err := gcClient.CreateFlow(c.Request.Context(), gocardless.FlowParams{
		BillingRequestID: br.ID,
		RedirectURI:      config.GetEnv("PAYMENT_REDIRECT_URI", ""),
		ExitURI:          config.GetEnv("PAYMENT_EXIT_URI", ""),
	})
	if err != nil {
		if metrics != nil {
			metrics.PaymentLinksCreated.WithLabelValues("error").Inc()
		}
		logger.WithError(err).WithField("billing_request_id", br.ID).Error("Failed to create checkout flow")
		respondUpstreamError(c, err, "failed to create payment link")
		return
	}

	// The purchase is normally recorded by the caller once the link is
	// handed out; with a subscriber id we record the pending row here too so
	// webhook and poller reconciliation can find it without the client.
	if req.SubscriberID != "" && db != nil {
		_, err := db.ExecContext(c.Request.Context(), `
			INSERT INTO squeegee.sms_purchases
				(subscriber_id, package_id, credits, amount_pence, currency, billing_request_id, status)
			VALUES ($1, NULLIF($2, ''), $3, $4, COALESCE(NULLIF($5, ''), 'GBP'), $6, 'pending')`,
			req.SubscriberID, req.PackageID, credits, req.Amount, req.Currency, br.ID)
		if err != nil {
			logger.WithError(err).WithFields(logging.Fields{
				"subscriber_id":      req.SubscriberID,
				"billing_request_id": br.ID,
			}).Warn("Failed to record pending purchase")
		}
	}

	if metrics != nil {
		metrics.PaymentLinksCreated.WithLabelValues("success").Inc()
	}

	c.JSON(http.StatusOK, api.CreateInstantPayLinkResponse{
		RedirectURL:    flow.AuthorisationURL,
		SessionID:      br.ID,
		RedirectFlowID: flow.ID,
		Credits:        credits,
	})
}
