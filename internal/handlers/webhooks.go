package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"squeegee/pkg/logging"
	"squeegee/pkg/middleware"
)

const webhookProvider = "gocardless"

type gcWebhookEvent struct {
	ID           string `json:"id"`
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Links        struct {
		BillingRequest string `json:"billing_request"`
		Payment        string `json:"payment"`
		Mandate        string `json:"mandate"`
	} `json:"links"`
}

type gcWebhookPayload struct {
	Events []gcWebhookEvent `json:"events"`
}

// HandleGoCardlessWebhook processes provider webhook deliveries: verify the
// signature, skip events already seen, then reconcile billing request
// outcomes against stored purchases.
func HandleGoCardlessWebhook(c middleware.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "failed to read webhook body")
		return
	}

	if gcClient == nil || !gcClient.HasWebhookSecret() {
		respondError(c, http.StatusInternalServerError, codeInternal, "webhook secret is not configured")
		return
	}

	signature := c.GetHeader("Webhook-Signature")
	if !gcClient.VerifyWebhook(body, signature) {
		logger.Warn("Rejected webhook with invalid signature")
		respondError(c, http.StatusUnauthorized, codeAuth, "invalid webhook signature")
		return
	}

	var payload gcWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(c, http.StatusBadRequest, codeValidation, "invalid webhook payload")
		return
	}

	for _, event := range payload.Events {
		if err := processWebhookEvent(c.Request.Context(), event); err != nil {
			// Processing errors are logged, not returned: the provider
			// retries whole deliveries and dedup keeps replays harmless.
			logger.WithError(err).WithField("event_id", event.ID).Error("Webhook event processing failed")
			if metrics != nil {
				metrics.WebhooksProcessed.WithLabelValues(event.Action, "error").Inc()
			}
			continue
		}
		if metrics != nil {
			metrics.WebhooksProcessed.WithLabelValues(event.Action, "success").Inc()
		}
	}

	c.JSON(http.StatusOK, map[string]interface{}{"received": len(payload.Events)})
}

func processWebhookEvent(ctx context.Context, event gcWebhookEvent) error {
	seen, err := isWebhookAlreadyProcessed(ctx, event.ID)
	if err != nil {
		return err
	}
	if seen {
		logger.WithField("event_id", event.ID).Debug("Skipping already processed webhook event")
		return nil
	}

	if event.ResourceType == "billing_requests" {
		switch event.Action {
		case "fulfilled":
			if event.Links.BillingRequest != "" {
				found, err := purchaseExists(ctx, event.Links.BillingRequest, "")
				if err != nil {
					return err
				}
				if found {
					if err := applyPurchasedCredits(ctx, event.Links.BillingRequest); err != nil {
						return err
					}
				} else {
					logger.WithField("billing_request_id", event.Links.BillingRequest).
						Warn("Fulfilled billing request has no recorded purchase")
				}
			}
		case "cancelled", "failed":
			if event.Links.BillingRequest != "" {
				if err := markPurchaseFailed(ctx, event.Links.BillingRequest, "billing request "+event.Action); err != nil {
					return err
				}
			}
		default:
			logger.WithFields(logging.Fields{
				"event_id": event.ID,
				"action":   event.Action,
			}).Debug("Ignoring unhandled billing request action")
		}
	}

	return markWebhookProcessed(ctx, event.ID, event.ResourceType+"."+event.Action)
}

func isWebhookAlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM squeegee.webhook_events
			WHERE provider = $1 AND event_id = $2
		)`,
		webhookProvider, eventID).Scan(&exists)
	return exists, err
}

func markWebhookProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO squeegee.webhook_events (provider, event_id, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		webhookProvider, eventID, eventType)
	return err
}
