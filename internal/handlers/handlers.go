package handlers

import (
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"

	"squeegee/internal/geocode"
	"squeegee/internal/gocardless"
	"squeegee/internal/queue"
	"squeegee/internal/sms"
	"squeegee/pkg/api/common"
	"squeegee/pkg/logging"
	"squeegee/pkg/middleware"
)

var (
	db           *sql.DB
	logger       logging.Logger
	metrics      *SqueegeeMetrics
	gcClient     *gocardless.Client
	geoClient    *geocode.Client
	smsClient    *sms.Client
	emailService *EmailService
	queueWatcher *queue.Watcher
	statusCache  *redis.Client // optional; nil disables caching
)

// Init sets the package-level database, logger and metrics
func Init(database *sql.DB, log logging.Logger, m *SqueegeeMetrics) {
	db = database
	logger = log
	metrics = m
}

// SetPaymentsClient wires the Direct Debit provider client
func SetPaymentsClient(c *gocardless.Client) {
	gcClient = c
}

// SetGeocodeClient wires the geocoding proxy client
func SetGeocodeClient(c *geocode.Client) {
	geoClient = c
}

// SetSMSClient wires the SMS forwarder client
func SetSMSClient(c *sms.Client) {
	smsClient = c
}

// SetEmailService wires the outbound email service
func SetEmailService(es *EmailService) {
	emailService = es
}

// SetQueueWatcher wires the offline queue watcher used by the stream endpoint
func SetQueueWatcher(w *queue.Watcher) {
	queueWatcher = w
}

// SetStatusCache wires the optional Redis cache for payment status polls
func SetStatusCache(client *redis.Client) {
	statusCache = client
}

// Error taxonomy codes carried in ErrorResponse.Code
const (
	codeValidation = "validation"
	codeAuth       = "auth"
	codeUpstream   = "upstream"
	codeNotReady   = "not_ready"
	codeInternal   = "internal"
)

func respondError(c middleware.Context, status int, code, message string) {
	c.JSON(status, common.ErrorResponse{Error: message, Code: code})
}

// respondUpstreamError maps provider API failures to 502 with the raw
// upstream body preserved in details; anything else is an internal 500.
func respondUpstreamError(c middleware.Context, err error, message string) {
	if apiErr, ok := err.(*gocardless.APIError); ok {
		c.JSON(http.StatusBadGateway, common.ErrorResponse{
			Error: message,
			Code:  codeUpstream,
			Details: map[string]interface{}{
				"upstream_status": apiErr.StatusCode,
				"upstream_body":   apiErr.Body,
			},
		})
		return
	}
	c.JSON(http.StatusBadGateway, common.ErrorResponse{
		Error: message,
		Code:  codeUpstream,
		Details: map[string]interface{}{
			"cause": err.Error(),
		},
	})
}
