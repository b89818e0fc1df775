package handlers

import (
	"net/http"
	"time"

	api "squeegee/pkg/api/squeegee"
	"squeegee/pkg/middleware"
)

// statusCacheTTL keeps polled statuses hot briefly; clients poll every few
// seconds so this mostly absorbs bursts, never staleness that matters.
const statusCacheTTL = 15 * time.Second

// MapBillingRequestStatus reduces a provider billing request status to the
// simplified polling enum. Unknown statuses are still in flight.
func MapBillingRequestStatus(raw string) string {
	switch raw {
	case "fulfilled":
		return "confirmed"
	case "cancelled":
		return "cancelled"
	case "ready_to_fulfil":
		return "authorised"
	default:
		return "pending"
	}
}

// CheckPaymentStatus polls the provider for a billing request's status
func CheckPaymentStatus(c middleware.Context) {
	id := c.Query("id")
	if id == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "id query parameter is required")
		return
	}

	if gcClient == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "payment provider is not configured")
		return
	}

	cacheKey := "squeegee:payment_status:" + id
	if statusCache != nil {
		if raw, err := statusCache.Get(c.Request.Context(), cacheKey).Result(); err == nil {
			c.JSON(http.StatusOK, api.PaymentStatusResponse{
				Status:    MapBillingRequestStatus(raw),
				RawStatus: raw,
			})
			return
		}
	}

	br, err := gcClient.GetBillingRequest(c.Request.Context(), id)
	if err != nil {
		logger.WithError(err).WithField("billing_request_id", id).Error("Failed to poll payment status")
		respondUpstreamError(c, err, "failed to check payment status")
		return
	}

	if statusCache != nil {
		if err := statusCache.Set(c.Request.Context(), cacheKey, br.Status, statusCacheTTL).Err(); err != nil {
			logger.WithError(err).Debug("Payment status cache write failed")
		}
	}

	c.JSON(http.StatusOK, api.PaymentStatusResponse{
		Status:    MapBillingRequestStatus(br.Status),
		RawStatus: br.Status,
	})
}
