package navigator

import (
	"context"

	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/aggregate"
	"solana-activity-engine/internal/cache"
	"solana-activity-engine/internal/domain"
	"solana-activity-engine/internal/notify"
)

const labelSyncBuffer = 256

// ChangeSource is the store surface LabelSync needs. *aggregate.Store implements it.
type ChangeSource interface {
	Subscribe(buffer int) *notify.Subscription[aggregate.Change]
	GetAggregate(mint string) (domain.MintAggregate, bool)
	Mints() []string
}

// LabelSync copies feed-supplied names and symbols into the label cache as
// they change, so sessions rarely fall back to shortened mints.
type LabelSync struct {
	src    ChangeSource
	labels cache.TokenInfoCache
	logger logrus.FieldLogger
}

// NewLabelSync creates a syncer. Nothing happens until Run.
func NewLabelSync(src ChangeSource, labels cache.TokenInfoCache, logger logrus.FieldLogger) *LabelSync {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LabelSync{
		src:    src,
		labels: labels,
		logger: logger.WithField("component", "label_sync"),
	}
}

// Run consumes store changes until ctx is cancelled.
func (ls *LabelSync) Run(ctx context.Context) {
	sub := ls.src.Subscribe(labelSyncBuffer)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-sub.C():
			if !ok {
				return
			}
			ls.apply(ctx, ch)
		}
	}
}

func (ls *LabelSync) apply(ctx context.Context, ch aggregate.Change) {
	if ch.Kind == aggregate.ChangeMint {
		ls.sync(ctx, ch.Mint, ch.At)
		return
	}
	for _, mint := range ls.src.Mints() {
		ls.sync(ctx, mint, ch.At)
	}
}

// sync writes the mint's metadata when it carries any and differs from the cache.
func (ls *LabelSync) sync(ctx context.Context, mint string, at int64) {
	agg, ok := ls.src.GetAggregate(mint)
	if !ok || (agg.Name == "" && agg.Symbol == "") {
		return
	}
	if cur, err := ls.labels.Get(ctx, mint); err == nil && cur.Name == agg.Name && cur.Symbol == agg.Symbol {
		return
	}

	info := domain.TokenInfo{Mint: mint, Name: agg.Name, Symbol: agg.Symbol, UpdatedAt: at}
	if err := ls.labels.Put(ctx, info); err != nil {
		ls.logger.WithError(err).WithField("mint", mint).Debug("label cache write failed")
	}
}
