package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"squeegee/pkg/logging"
)

// Watcher polls the offline queue and pushes full snapshots to subscribers
// whenever the queue changes. Subscribers that fall behind get the latest
// snapshot only; intermediate states are dropped.
type Watcher struct {
	db       *sql.DB
	logger   logging.Logger
	interval time.Duration

	mu         sync.Mutex
	subs       map[int]chan []Row
	nextSubID  int
	lastDigest string
	lastRows   []Row

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher polling at the given interval
func NewWatcher(db *sql.DB, logger logging.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		db:       db,
		logger:   logger,
		interval: interval,
		subs:     make(map[int]chan []Row),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the poll loop
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.WithField("interval", w.interval.String()).Info("Offline queue watcher started")
}

// Stop halts the poll loop and closes all subscriber channels
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	for id, ch := range w.subs {
		close(ch)
		delete(w.subs, id)
	}
	w.mu.Unlock()
	w.logger.Info("Offline queue watcher stopped")
}

// Subscribe registers for snapshots. The current snapshot (if any) is
// delivered immediately. The returned function unsubscribes; after it
// returns the channel is closed.
func (w *Watcher) Subscribe() (<-chan []Row, func()) {
	ch := make(chan []Row, 1)

	w.mu.Lock()
	id := w.nextSubID
	w.nextSubID++
	w.subs[id] = ch
	if w.lastRows != nil {
		ch <- w.lastRows
	}
	w.mu.Unlock()

	unsubscribe := func() {
		w.mu.Lock()
		if existing, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(existing)
		}
		w.mu.Unlock()
	}
	return ch, unsubscribe
}

func (w *Watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	ctx, cancel := context.WithTimeout(w.ctx, w.interval)
	defer cancel()

	rows, err := LoadOffline(ctx, w.db)
	if err != nil {
		w.logger.WithError(err).Warn("Offline queue poll failed")
		return
	}

	digest := snapshotDigest(rows)

	w.mu.Lock()
	defer w.mu.Unlock()
	if digest == w.lastDigest {
		return
	}
	w.lastDigest = digest
	w.lastRows = rows

	for _, ch := range w.subs {
		select {
		case ch <- rows:
		default:
			// subscriber is behind: replace the stale snapshot
			select {
			case <-ch:
			default:
			}
			ch <- rows
		}
	}
}

func snapshotDigest(rows []Row) string {
	var b strings.Builder
	for _, r := range rows {
		resent := ""
		if r.ResentAt != nil {
			resent = r.ResentAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%s|%s|%t|%d|%s|%s;", r.ID, r.Status, r.OfflineEmailSent, r.RetryCount, r.LastError, resent)
	}
	return b.String()
}
