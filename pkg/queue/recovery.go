package queue

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/kamikyo/MappedFileQueues/pkg/metrics"
	"github.com/kamikyo/MappedFileQueues/util"
)

// recover repairs the store after an unclean shutdown: producer progress
// beyond the last stable record is rolled back, and an unreadable record at
// the consumer offset is skipped destructively after notifying the
// observer. Runs under a cross-process exclusive lock so concurrent opens
// of the same store cannot race on the rollback.
func (q *Queue) recover() error {
	fl := flock.New(q.cfg.RecoveryLockPath())
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire recovery lock: %w", err)
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			util.Error("release recovery lock: %v", err)
		}
	}()

	cons, err := newConsumer(q.cfg)
	if err != nil {
		return err
	}
	defer cons.Close()

	prod, err := newProducer(q.cfg)
	if err != nil {
		return err
	}
	defer prod.Close()

	pOff, cOff := prod.Offset(), cons.Offset()

	// Nothing pending, nothing to repair.
	if pOff <= cOff {
		return nil
	}

	// Roll the producer back to the last point known stable. The confirmed
	// offset, not the producer offset word, is what survived the crash.
	rollback := cOff
	if conf := prod.ConfirmedOffset(); conf > rollback {
		rollback = conf
	}
	if pOff > rollback {
		util.Warn("recovery: rolling producer offset back from %d to %d", pOff, rollback)
		if err := prod.AdjustOffset(rollback); err != nil {
			return err
		}
	}

	// If the head record is still unreadable, it is torn beyond repair:
	// report it and move the consumer past the damage.
	if pOff = prod.Offset(); pOff > cOff && !cons.NextMessageAvailable() {
		corruption := fmt.Errorf("record at consumer offset %d is corrupted; advancing consumer to %d", cOff, pOff)
		q.notify(corruption)
		metrics.RecoveryRepairs.Inc()
		if err := cons.AdjustOffset(pOff, true); err != nil {
			return err
		}
	}

	return nil
}
