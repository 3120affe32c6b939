package db

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CanonicalFanouter re-runs cross-vendor comparison for one canonical item.
// Implemented by the engine; declared here so the worker doesn't import it.
type CanonicalFanouter interface {
	FanOutCanonical(tenantID string, canonicalID uint) error
}

// runFanoutRefreshOnce re-fans-out every canonical item touched since the
// cutoff. Partial fan-out left behind by a failed ingest self-heals here
// instead of waiting for the next line for that product.
func runFanoutRefreshOnce(db *gorm.DB, eng CanonicalFanouter, log *logrus.Logger, since time.Time) error {
	touched, err := ListTouchedCanonicals(db, since)
	if err != nil {
		return err
	}
	for _, t := range touched {
		if err := eng.FanOutCanonical(t.TenantID, t.CanonicalItemID); err != nil {
			log.WithFields(logrus.Fields{
				"tenant":    t.TenantID,
				"canonical": t.CanonicalItemID,
			}).WithError(err).Warn("fanout refresh failed")
		}
	}
	return nil
}

// StartFanoutRefreshWorker launches a background goroutine that periodically
// re-runs cross-vendor fan-out for recently touched canonical items. A zero
// interval disables it.
func StartFanoutRefreshWorker(db *gorm.DB, eng CanonicalFanouter, log *logrus.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for t := range ticker.C {
			// Look back two intervals so a slow previous pass can't open a gap.
			since := t.Add(-2 * interval)
			if err := runFanoutRefreshOnce(db, eng, log, since); err != nil {
				log.WithError(err).Error("fanout refresh pass failed")
			}
		}
	}()
}
