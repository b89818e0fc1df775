package handlers

import (
	"context"
	"database/sql"
	"net/http"

	api "squeegee/pkg/api/squeegee"
	"squeegee/pkg/logging"
	"squeegee/pkg/middleware"
)

// SendSMS forwards a message to the SMS provider with credentials injected
// server-side. When a subscriber id is supplied one credit is debited first;
// a zero balance refuses the send.
func SendSMS(c middleware.Context) {
	var req api.SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid request body: "+err.Error())
		return
	}
	if req.To == "" || req.Message == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "to and message are required")
		return
	}

	if smsClient == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "SMS provider is not configured")
		return
	}

	if req.SubscriberID != "" {
		debited, err := debitOneCredit(c.Request.Context(), req.SubscriberID)
		if err != nil {
			logger.WithError(err).WithField("subscriber_id", req.SubscriberID).Error("Credit debit failed")
			respondError(c, http.StatusInternalServerError, codeInternal, "failed to debit SMS credit")
			return
		}
		if !debited {
			respondError(c, http.StatusPaymentRequired, codeValidation, "no SMS credits remaining")
			return
		}
	}

	result, err := smsClient.Send(c.Request.Context(), req.To, req.Message, req.Sender)
	if err != nil {
		if req.SubscriberID != "" {
			refundOneCredit(c.Request.Context(), req.SubscriberID)
		}
		if metrics != nil {
			metrics.SMSForwarded.WithLabelValues("error").Inc()
		}
		logger.WithError(err).Error("SMS forwarding failed")
		respondUpstreamError(c, err, "failed to send SMS")
		return
	}

	if metrics != nil {
		metrics.SMSForwarded.WithLabelValues("success").Inc()
	}

	recordSMSMessage(c.Request.Context(), req, result.Response)

	c.JSON(http.StatusOK, api.SendSMSResponse{
		Success:  true,
		Provider: smsClient.Provider(),
		Response: result.Response,
	})
}

// debitOneCredit atomically decrements the balance; false means no credit
func debitOneCredit(ctx context.Context, subscriberID string) (bool, error) {
	var remaining int64
	err := db.QueryRowContext(ctx, `
		UPDATE squeegee.sms_settings
		SET credits_balance = credits_balance - 1
		WHERE subscriber_id = $1 AND credits_balance > 0
		RETURNING credits_balance`,
		subscriberID).Scan(&remaining)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// refundOneCredit returns a debited credit after a failed send, best effort
func refundOneCredit(ctx context.Context, subscriberID string) {
	_, err := db.ExecContext(ctx, `
		UPDATE squeegee.sms_settings
		SET credits_balance = credits_balance + 1
		WHERE subscriber_id = $1`,
		subscriberID)
	if err != nil {
		logger.WithError(err).WithField("subscriber_id", subscriberID).Error("Credit refund failed")
	}
}

func recordSMSMessage(ctx context.Context, req api.SendSMSRequest, providerResponse string) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO squeegee.sms_messages (subscriber_id, to_number, sender, body, provider, provider_status)
		VALUES (NULLIF($1, '')::uuid, $2, NULLIF($3, ''), $4, $5, $6)`,
		req.SubscriberID, req.To, req.Sender, req.Message, smsClient.Provider(), providerResponse)
	if err != nil {
		logger.WithError(err).WithFields(logging.Fields{
			"subscriber_id": req.SubscriberID,
			"to":            req.To,
		}).Warn("Failed to record SMS audit row")
	}
}
