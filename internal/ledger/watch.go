package ledger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Watch logs ledger events until ctx is cancelled. Closures are logged at
// info with the realized result, everything else at debug. Events lost to a
// full queue are reported once per gap.
func Watch(ctx context.Context, l *Ledger, buffer int, logger logrus.FieldLogger) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "ledger_watch")

	sub := l.Subscribe(buffer)
	defer sub.Close()

	var reported uint64
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if lost := sub.Dropped(); lost > reported {
				logger.WithField("lost", lost-reported).Warn("ledger events dropped")
				reported = lost
			}
			logEvent(logger, ev)
		}
	}
}

func logEvent(logger logrus.FieldLogger, ev Event) {
	entry := logger.WithFields(logrus.Fields{
		"mint":    ev.Mint,
		"outcome": string(ev.Outcome),
		"fill_id": ev.Fill.FillID,
	})
	switch {
	case ev.Closed != nil:
		entry.WithFields(logrus.Fields{
			"realized_pnl": ev.Closed.RealizedPnL.String(),
			"trades":       len(ev.Closed.Transactions),
		}).Info("position closed")
	case ev.Position != nil:
		entry.WithField("held", ev.Position.TotalAmountHeld.String()).Debug("position changed")
	default:
		entry.Debug("fill recorded")
	}
}
