package handlers

import (
	"context"
	"time"

	"squeegee/internal/queue"
	"squeegee/pkg/logging"
)

// JobManager runs the background reconciliation loops
type JobManager struct {
	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	logger logging.Logger
}

// NewJobManager creates a job manager
func NewJobManager(log logging.Logger) *JobManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		logger: log,
	}
}

// Start launches the background jobs
func (jm *JobManager) Start() {
	jm.logger.Info("Starting background jobs")
	go jm.runPurchaseReconciliation()
	go jm.runStalePurchaseSweep()
	go jm.runQueueDepthGauge()
}

// Stop signals all jobs to stop
func (jm *JobManager) Stop() {
	jm.logger.Info("Stopping background jobs")
	jm.cancel()
	close(jm.stopCh)
}

// runPurchaseReconciliation polls the provider for pending purchases that
// never came back through the browser flow or a webhook.
func (jm *JobManager) runPurchaseReconciliation() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.reconcilePendingPurchases()
		}
	}
}

func (jm *JobManager) reconcilePendingPurchases() {
	if gcClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(jm.ctx, 45*time.Second)
	defer cancel()

	ids, err := listPendingPurchases(ctx)
	if err != nil {
		jm.logger.WithError(err).Error("Failed to list pending purchases")
		return
	}

	for _, id := range ids {
		br, err := gcClient.GetBillingRequest(ctx, id)
		if err != nil {
			jm.logger.WithError(err).WithField("billing_request_id", id).Warn("Pending purchase poll failed")
			continue
		}

		switch br.Status {
		case "fulfilled":
			if err := applyPurchasedCredits(ctx, id); err != nil {
				jm.logger.WithError(err).WithField("billing_request_id", id).Error("Reconciliation credit application failed")
			}
		case "cancelled":
			if err := markPurchaseFailed(ctx, id, "cancelled upstream"); err != nil {
				jm.logger.WithError(err).WithField("billing_request_id", id).Error("Failed to fail cancelled purchase")
			}
		}
	}
}

// listPendingPurchases returns billing request ids of purchases still
// pending past a two minute grace period, so the browser completion path
// gets first go.
func listPendingPurchases(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT billing_request_id
		FROM squeegee.sms_purchases
		WHERE status = 'pending' AND created_at < NOW() - INTERVAL '2 minutes'
		ORDER BY created_at
		LIMIT 50`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// runStalePurchaseSweep fails purchases stuck pending for over a week
func (jm *JobManager) runStalePurchaseSweep() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(jm.ctx, 30*time.Second)
			res, err := db.ExecContext(ctx, `
				UPDATE squeegee.sms_purchases
				SET status = 'failed'
				WHERE status = 'pending' AND created_at < NOW() - INTERVAL '7 days'`)
			cancel()
			if err != nil {
				jm.logger.WithError(err).Error("Stale purchase sweep failed")
				continue
			}
			if n, _ := res.RowsAffected(); n > 0 {
				jm.logger.WithField("count", n).Info("Failed stale pending purchases")
			}
		}
	}
}

// runQueueDepthGauge publishes offline queue depth by classification
func (jm *JobManager) runQueueDepthGauge() {
	if metrics == nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(jm.ctx, 15*time.Second)
			rows, err := queue.LoadOffline(ctx, db)
			cancel()
			if err != nil {
				jm.logger.WithError(err).Warn("Queue depth poll failed")
				continue
			}

			counts := map[string]float64{"yellow": 0, "green": 0, "red": 0}
			for _, r := range rows {
				counts[queue.Classify(r.RetryCount, r.LastError, r.OfflineEmailSent, r.Status)]++
			}
			for classification, count := range counts {
				metrics.QueueDepth.WithLabelValues(classification).Set(count)
			}
		}
	}
}
