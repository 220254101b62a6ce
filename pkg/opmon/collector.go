package opmon

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alessandrothea/daqmod/internal/metrics"
)

const publishTimeout = 10 * time.Second

// Restorer is optionally implemented by collectables that can take back an
// unpublished since-last-call amount after a failed publish.
type Restorer interface {
	RestoreOpmon(n int64)
}

// Journal receives every successfully published snapshot. Implemented by
// the bbolt-backed journal; nil disables journalling.
type Journal interface {
	Append(s Snapshot) error
}

// Collector periodically gathers snapshots from all registered collectables
// and hands them to the configured publisher.
type Collector struct {
	session  string
	interval time.Duration
	sources  []Collectable
	pub      Publisher
	journal  Journal
	now      func() time.Time
}

// NewCollector builds a collector. interval must be positive; a zero value
// falls back to 10s. journal may be nil.
func NewCollector(session string, interval time.Duration, sources []Collectable, pub Publisher, journal Journal) *Collector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Collector{
		session:  session,
		interval: interval,
		sources:  sources,
		pub:      pub,
		journal:  journal,
		now:      time.Now,
	}
}

// Run flushes every tick until ctx is cancelled, then performs a final
// flush so shutdown never drops a window.
func (c *Collector) Run(ctx context.Context) {
	if c.pub == nil || len(c.sources) == 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flushFinal()
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				log.Warn().Err(err).Msg("opmon flush failed")
			}
		}
	}
}

// Flush collects one snapshot per source and publishes the batch. On a
// publish failure the since-last-call amounts are restored to their source
// counters so the next tick carries them.
func (c *Collector) Flush(ctx context.Context) error {
	if c.pub == nil || len(c.sources) == 0 {
		return nil
	}

	now := c.now().UTC()
	batch := make([]Snapshot, 0, len(c.sources))
	for _, src := range c.sources {
		s := src.CollectOpmon()
		s.Session = c.session
		s.CollectedAt = now
		batch = append(batch, s)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := c.pub.Publish(pubCtx, batch); err != nil {
		metrics.PublishErrors.WithLabelValues(c.pub.Name()).Inc()
		for i, src := range c.sources {
			if r, ok := src.(Restorer); ok {
				r.RestoreOpmon(batch[i].AmountSinceLastCall)
			}
		}
		return err
	}

	metrics.SnapshotsPublished.Add(float64(len(batch)))
	if c.journal != nil {
		for _, s := range batch {
			if err := c.journal.Append(s); err != nil {
				log.Warn().Err(err).Str("module", s.Module).Msg("journal append failed")
			}
		}
	}
	return nil
}

// flushFinal runs one last flush on a background context; the run context
// is already cancelled at this point.
func (c *Collector) flushFinal() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("final opmon flush failed")
	}
}
