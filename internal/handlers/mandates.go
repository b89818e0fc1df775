package handlers

import (
	"fmt"
	"net/http"

	"squeegee/internal/gocardless"
	api "squeegee/pkg/api/squeegee"
	"squeegee/pkg/config"
	"squeegee/pkg/logging"
	"squeegee/pkg/middleware"
)

// CreateSubscriberMandate starts Direct Debit onboarding: a mandate billing
// request plus its hosted authorisation flow.
func CreateSubscriberMandate(c middleware.Context) {
	var req api.CreateSubscriberMandateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid request body: "+err.Error())
		return
	}
	if req.SubscriberID == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "subscriberId is required")
		return
	}
	if req.MonthlyAmount <= 0 {
		respondError(c, http.StatusBadRequest, codeValidation, "monthlyAmount must be a positive integer in pence")
		return
	}

	if gcClient == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "payment provider is not configured")
		return
	}

	br, err := gcClient.CreateMandateRequest(c.Request.Context(), "GBP", map[string]string{
		"subscriber_id": req.SubscriberID,
	})
	if err != nil {
		logger.WithError(err).WithField("subscriber_id", req.SubscriberID).Error("Failed to create mandate billing request")
		respondUpstreamError(c, err, "failed to start mandate authorisation")
		return
	}

	flow, err := gcClient.CreateFlow(c.Request.Context(), gocardless.FlowParams{
		BillingRequestID: br.ID,
		RedirectURI:      config.GetEnv("MANDATE_REDIRECT_URI", ""),
		ExitURI:          config.GetEnv("MANDATE_EXIT_URI", ""),
		CompanyName:      req.CompanyName,
		Email:            req.Email,
	})
	if err != nil {
		logger.WithError(err).WithField("billing_request_id", br.ID).Error("Failed to create mandate flow")
		respondUpstreamError(c, err, "failed to start mandate authorisation")
		return
	}

	_, err = db.ExecContext(c.Request.Context(), `
		UPDATE squeegee.subscribers
		SET mandate_request_id = $1, monthly_amount_pence = $2, updated_at = NOW()
		WHERE id = $3`,
		br.ID, req.MonthlyAmount, req.SubscriberID)
	if err != nil {
		logger.WithError(err).WithField("subscriber_id", req.SubscriberID).Error("Failed to store mandate request id")
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to record mandate request")
		return
	}

	c.JSON(http.StatusOK, api.CreateSubscriberMandateResponse{
		RedirectURL:      flow.AuthorisationURL,
		MandateRequestID: br.ID,
	})
}

// FinaliseSubscriberMandate activates the monthly subscription once the
// customer has authorised the mandate. Until the provider surfaces the
// mandate link the request is not ready and callers should retry.
func FinaliseSubscriberMandate(c middleware.Context) {
	var req api.FinaliseSubscriberMandateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid request body: "+err.Error())
		return
	}
	if req.SubscriberID == "" || req.BillingRequestID == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "subscriberId and billingRequestId are required")
		return
	}
	if req.MonthlyAmount <= 0 {
		respondError(c, http.StatusBadRequest, codeValidation, "monthlyAmount must be a positive integer in pence")
		return
	}

	if gcClient == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "payment provider is not configured")
		return
	}

	br, err := gcClient.GetBillingRequest(c.Request.Context(), req.BillingRequestID)
	if err != nil {
		logger.WithError(err).WithField("billing_request_id", req.BillingRequestID).Error("Failed to fetch mandate billing request")
		respondUpstreamError(c, err, "failed to fetch mandate authorisation state")
		return
	}

	if br.Links.MandateRequestMandate == "" {
		respondError(c, http.StatusConflict, codeNotReady, "mandate is not authorised yet, retry shortly")
		return
	}

	sub, err := gcClient.CreateSubscription(c.Request.Context(), br.Links.MandateRequestMandate,
		req.MonthlyAmount, "GBP", fmt.Sprintf("Squeegee monthly plan (%s)", req.SubscriberID))
	if err != nil {
		logger.WithError(err).WithField("mandate_id", br.Links.MandateRequestMandate).Error("Failed to create subscription")
		respondUpstreamError(c, err, "failed to create subscription")
		return
	}

	_, err = db.ExecContext(c.Request.Context(), `
		UPDATE squeegee.subscribers
		SET gc_mandate_id = $1, gc_subscription_id = $2, status = 'active', updated_at = NOW()
		WHERE id = $3`,
		br.Links.MandateRequestMandate, sub.ID, req.SubscriberID)
	if err != nil {
		logger.WithError(err).WithField("subscriber_id", req.SubscriberID).Error("Failed to store subscription ids")
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to record subscription")
		return
	}

	logger.WithFields(logging.Fields{
		"subscriber_id":   req.SubscriberID,
		"mandate_id":      br.Links.MandateRequestMandate,
		"subscription_id": sub.ID,
	}).Info("Subscriber mandate finalised")

	c.JSON(http.StatusOK, api.FinaliseSubscriberMandateResponse{
		MandateID:      br.Links.MandateRequestMandate,
		SubscriptionID: sub.ID,
	})
}
