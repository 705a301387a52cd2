package txn

import (
	"context"
	"time"

	"github.com/jrife/skv/utils/log"
	"go.uber.org/zap"
)

func (coordinator *Coordinator) reaper(interval time.Duration) {
	defer close(coordinator.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-coordinator.stop:
			return
		case <-ticker.C:
			if err := coordinator.Reap(context.Background()); err != nil {
				coordinator.logger.Error("reaper pass failed", zap.Error(err))
			}
		}
	}
}

// Reap aborts transactions that were idle for longer than the
// transaction timeout and forgets finalized transactions older
// than the finalized retention. If compaction is enabled it then
// drops versions that no active snapshot can observe.
func (coordinator *Coordinator) Reap(ctx context.Context) error {
	logger := log.Operation(ctx, coordinator.logger, "Reap")

	logger.Debug("start")
	defer logger.Debug("return")

	now := coordinator.now()
	timeout := coordinator.config.TransactionTimeout
	retention := coordinator.config.FinalizedRetention
	aborted := 0
	forgotten := 0

	coordinator.txns.Range(func(id string, txn *transaction) bool {
		if txn.active() {
			if timeout > 0 && now.Sub(txn.lastActive.Load()) > timeout && coordinator.expire(txn, now, timeout) {
				aborted++
			}

			return true
		}

		if now.Sub(txn.finalized.Load()) >= retention {
			coordinator.txns.Delete(id)
			forgotten++
		}

		return true
	})

	if aborted > 0 || forgotten > 0 {
		logger.Info("reaped transactions", zap.Int("aborted", aborted), zap.Int("forgotten", forgotten))
	}

	if !coordinator.config.Compact {
		return nil
	}

	return coordinator.compact(logger)
}

// expire aborts txn if it is still active and idle
func (coordinator *Coordinator) expire(txn *transaction, now time.Time, timeout time.Duration) bool {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	if !txn.active() || now.Sub(txn.lastActive.Load()) <= timeout {
		return false
	}

	coordinator.finalize(txn, Aborted)

	return true
}

// oldestSnapshot returns the lowest snapshot any active transaction
// reads from or the newest timestamp if none are active
func (coordinator *Coordinator) oldestSnapshot() uint64 {
	coordinator.snapshotMu.Lock()
	defer coordinator.snapshotMu.Unlock()

	oldest := coordinator.oracle.Load()

	coordinator.txns.Range(func(id string, txn *transaction) bool {
		if txn.active() && txn.snapshot < oldest {
			oldest = txn.snapshot
		}

		return true
	})

	return oldest
}

func (coordinator *Coordinator) compact(logger *zap.Logger) error {
	oldest := coordinator.oldestSnapshot()

	if oldest <= coordinator.compacted.Load() {
		return nil
	}

	removed, err := coordinator.store.Compact(oldest)

	if err != nil {
		return err
	}

	coordinator.compacted.Store(oldest)
	logger.Info("compacted versions", zap.Uint64("timestamp", oldest), zap.Int("removed", removed))

	return nil
}
