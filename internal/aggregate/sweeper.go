package aggregate

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/observability"
)

// DefaultSweepSchedule prunes decayed trade windows four times a minute.
const DefaultSweepSchedule = "@every 15s"

// Sweeper periodically prunes TPS windows of mints that stopped trading.
// Trades prune their own mint on write; the sweep only covers silent mints.
type Sweeper struct {
	store  *Store
	cron   *cron.Cron
	logger logrus.FieldLogger
}

// NewSweeper schedules store sweeps. An empty schedule uses DefaultSweepSchedule.
func NewSweeper(store *Store, schedule string, logger logrus.FieldLogger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = store.opts.Logger
	}

	sw := &Sweeper{
		store:  store,
		cron:   cron.New(),
		logger: logger.WithField("component", "sweeper"),
	}
	if _, err := sw.cron.AddFunc(schedule, sw.run); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	return sw, nil
}

func (sw *Sweeper) run() {
	start := time.Now()
	changed := sw.store.Sweep(sw.store.nowMs())
	observability.RecordSweep(time.Since(start).Seconds())
	observability.UpdateMintsTracked(sw.store.Len())
	if changed > 0 {
		sw.logger.WithField("mints", changed).Debug("pruned decayed trade windows")
	}
}

// Start begins the schedule in its own goroutine.
func (sw *Sweeper) Start() {
	sw.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
}
