package capture

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Pruner periodically deletes captures older than the retention window
type Pruner struct {
	store     *FileStore
	retention time.Duration
	cron      *cron.Cron
	logger    arbor.ILogger
}

// NewPruner creates a pruner for store
func NewPruner(store *FileStore, retention time.Duration, logger arbor.ILogger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start schedules pruning; schedule is a cron spec such as "@every 1h"
func (p *Pruner) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 1h"
	}

	if _, err := p.cron.AddFunc(schedule, func() {
		p.RunNow()
	}); err != nil {
		return err
	}

	p.cron.Start()
	p.logger.Info().
		Str("schedule", schedule).
		Dur("retention", p.retention).
		Msg("Capture pruner started")

	return nil
}

// Stop stops the schedule and waits for a running prune to finish
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Debug().Msg("Capture pruner stopped")
}

// RunNow prunes immediately and returns the number of files removed
func (p *Pruner) RunNow() int {
	removed, err := p.store.Prune(time.Now().Add(-p.retention))
	if err != nil {
		p.logger.Warn().Err(err).Msg("Capture prune failed")
		return 0
	}
	if removed > 0 {
		p.logger.Info().Int("removed", removed).Msg("Pruned old response captures")
	}
	return removed
}
