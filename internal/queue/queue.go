package queue

import (
	"context"
	"database/sql"
	"time"
)

// Row is one offline-submitted quote as stored
type Row struct {
	ID                 string
	SubscriberID       string
	CustomerName       string
	CustomerEmail      string
	AmountPence        int64
	Status             string
	OfflineSubmitted   bool
	OfflineEmailSent   bool
	PaymentLinkURL     string
	RetryCount         int
	LastError          string
	OfflineSubmittedAt *time.Time
	ResentAt           *time.Time
}

// StaleAfter is how old an offline submission may be before it is flagged
const StaleAfter = 24 * time.Hour

// Classify assigns the dashboard colour for an offline quote. Errors override
// everything; a sent email with a pending payment is healthy; anything else
// still needs attention.
func Classify(retryCount int, lastError string, emailSent bool, status string) string {
	if retryCount > 3 || lastError != "" {
		return "red"
	}
	if emailSent && status == "pending_payment" {
		return "green"
	}
	return "yellow"
}

// IsStale reports whether an offline submission is older than StaleAfter
func IsStale(submittedAt *time.Time, now time.Time) bool {
	if submittedAt == nil {
		return false
	}
	return now.Sub(*submittedAt) > StaleAfter
}

const loadOfflineQuery = `
	SELECT id, subscriber_id, customer_name, customer_email, amount_pence,
	       status, offline_submitted, offline_email_sent, payment_link_url,
	       retry_count, last_error, offline_submitted_at, resent_at
	FROM squeegee.quotes
	WHERE offline_submitted = TRUE
	ORDER BY offline_submitted_at DESC NULLS LAST, created_at DESC`

// LoadOffline returns every offline-submitted quote across subscribers
func LoadOffline(ctx context.Context, db *sql.DB) ([]Row, error) {
	rows, err := db.QueryContext(ctx, loadOfflineQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var email, linkURL, lastError sql.NullString
		var submittedAt, resentAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.SubscriberID, &r.CustomerName, &email,
			&r.AmountPence, &r.Status, &r.OfflineSubmitted, &r.OfflineEmailSent,
			&linkURL, &r.RetryCount, &lastError, &submittedAt, &resentAt); err != nil {
			return nil, err
		}
		r.CustomerEmail = email.String
		r.PaymentLinkURL = linkURL.String
		r.LastError = lastError.String
		if submittedAt.Valid {
			t := submittedAt.Time
			r.OfflineSubmittedAt = &t
		}
		if resentAt.Valid {
			t := resentAt.Time
			r.ResentAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
