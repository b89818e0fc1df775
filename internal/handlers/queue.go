package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"squeegee/internal/queue"
	api "squeegee/pkg/api/squeegee"
	"squeegee/pkg/middleware"
)

var queueUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboard origins are enforced by the CORS layer; the upgrade itself
	// accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func toOfflineQuote(r queue.Row, now time.Time) api.OfflineQuote {
	return api.OfflineQuote{
		ID:                 r.ID,
		SubscriberID:       r.SubscriberID,
		CustomerName:       r.CustomerName,
		CustomerEmail:      r.CustomerEmail,
		AmountPence:        r.AmountPence,
		Status:             r.Status,
		OfflineSubmitted:   r.OfflineSubmitted,
		OfflineEmailSent:   r.OfflineEmailSent,
		PaymentLinkURL:     r.PaymentLinkURL,
		RetryCount:         r.RetryCount,
		LastError:          r.LastError,
		OfflineSubmittedAt: r.OfflineSubmittedAt,
		ResentAt:           r.ResentAt,
		Classification:     queue.Classify(r.RetryCount, r.LastError, r.OfflineEmailSent, r.Status),
		Stale:              queue.IsStale(r.OfflineSubmittedAt, now),
	}
}

func toOfflineQueueResponse(rows []queue.Row) api.OfflineQueueResponse {
	now := time.Now()
	quotes := make([]api.OfflineQuote, 0, len(rows))
	for _, r := range rows {
		quotes = append(quotes, toOfflineQuote(r, now))
	}
	return api.OfflineQueueResponse{Quotes: quotes, Count: len(quotes)}
}

// GetOfflineQueue lists every offline-submitted quote with its classification
func GetOfflineQueue(c middleware.Context) {
	rows, err := queue.LoadOffline(c.Request.Context(), db)
	if err != nil {
		logger.WithError(err).Error("Failed to load offline queue")
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to load offline queue")
		return
	}

	c.JSON(http.StatusOK, toOfflineQueueResponse(rows))
}

// ResendPaymentLink re-sends the stored payment link email for a quote.
// Email failures are transient: reported in the body, never persisted.
func ResendPaymentLink(c middleware.Context) {
	quoteID := c.Param("id")
	if quoteID == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "quote id is required")
		return
	}

	var customerEmail, paymentLinkURL sql.NullString
	var customerName string
	err := db.QueryRowContext(c.Request.Context(), `
		SELECT customer_name, customer_email, payment_link_url
		FROM squeegee.quotes
		WHERE id = $1 AND offline_submitted = TRUE`,
		quoteID).Scan(&customerName, &customerEmail, &paymentLinkURL)
	if err == sql.ErrNoRows {
		respondError(c, http.StatusNotFound, codeValidation, "offline quote not found")
		return
	}
	if err != nil {
		logger.WithError(err).WithField("quote_id", quoteID).Error("Failed to load quote for resend")
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to load quote")
		return
	}

	if customerEmail.String == "" || paymentLinkURL.String == "" {
		respondError(c, http.StatusBadRequest, codeValidation, "quote has no email address or payment link")
		return
	}

	if emailService == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "email service is not configured")
		return
	}

	if err := emailService.SendPaymentLink(customerEmail.String, customerName, paymentLinkURL.String); err != nil {
		logger.WithError(err).WithField("quote_id", quoteID).Warn("Payment link resend failed")
		c.JSON(http.StatusOK, api.ResendPaymentLinkResponse{
			Success: false,
			Error:   "email delivery failed: " + err.Error(),
		})
		return
	}

	now := time.Now()
	_, err = db.ExecContext(c.Request.Context(), `
		UPDATE squeegee.quotes
		SET resent_at = $1, offline_email_sent = TRUE, updated_at = NOW()
		WHERE id = $2`,
		now, quoteID)
	if err != nil {
		logger.WithError(err).WithField("quote_id", quoteID).Warn("Failed to stamp resent_at")
	}

	c.JSON(http.StatusOK, api.ResendPaymentLinkResponse{
		Success:  true,
		ResentAt: &now,
	})
}

// StreamOfflineQueue upgrades to WebSocket and pushes a full queue snapshot
// whenever the queue changes. Disconnecting unsubscribes.
func StreamOfflineQueue(c middleware.Context) {
	if queueWatcher == nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "queue watcher is not running")
		return
	}

	conn, err := queueUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Warn("Queue stream upgrade failed")
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := queueWatcher.Subscribe()
	defer unsubscribe()

	// Reader goroutine: drains control frames and detects disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case rows, ok := <-snapshots:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(toOfflineQueueResponse(rows)); err != nil {
				logger.WithError(err).Debug("Queue stream write failed")
				return
			}
		}
	}
}
