package reload

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Pruner deletes request logs older than a cutoff
type Pruner interface {
	PruneRequestLogs(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler runs the periodic registry refresh and request log retention
type Scheduler struct {
	cron      *cron.Cron
	reloader  Reloader
	pruner    Pruner
	retention time.Duration
}

// NewScheduler registers the refresh job on schedule and, when pruner is
// set and retention positive, a daily pruning job. An empty schedule
// disables the refresh.
func NewScheduler(reloader Reloader, schedule string, pruner Pruner, retention time.Duration) (*Scheduler, error) {
	logger := cron.PrintfLogger(log.StandardLogger())
	s := &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		reloader:  reloader,
		pruner:    pruner,
		retention: retention,
	}

	if schedule != "" {
		if _, err := s.cron.AddFunc(schedule, func() { s.refresh(context.Background()) }); err != nil {
			return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
		}
	}
	if pruner != nil && retention > 0 {
		if _, err := s.cron.AddFunc("@daily", func() { s.prune(context.Background()) }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Jobs is the number of registered jobs
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	snap, err := s.reloader.Reload(ctx)
	if err != nil {
		log.WithField("event", "scheduled_reload_failed").WithError(err).Warn("Scheduled registry refresh failed")
		return
	}
	log.WithFields(log.Fields{"event": "scheduled_reload", "generation": snap.Generation()}).Debug("Registry refreshed")
}

func (s *Scheduler) prune(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.retention)
	n, err := s.pruner.PruneRequestLogs(ctx, cutoff)
	if err != nil {
		log.WithField("event", "log_prune_failed").WithError(err).Error("Request log pruning failed")
		return
	}
	log.WithFields(log.Fields{"event": "logs_pruned", "removed": n, "before": cutoff}).Info("Old request logs removed")
}
