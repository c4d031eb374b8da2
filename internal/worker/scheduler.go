// Package worker runs recurring scans on a cron schedule
package worker

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/costscope/costscope/internal/pkg/logger"
)

// Job is one scheduled unit of work. Errors are logged, never fatal; the
// next tick runs regardless.
type Job func(ctx context.Context) error

// Scheduler triggers jobs from cron expressions. Overlapping runs of the
// same job are skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
}

// NewScheduler creates a stopped scheduler
func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log,
	}
}

// Add registers a job under a cron spec
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.WithFields(map[string]interface{}{"job": name}).Info("scheduled job starting")
		if err := job(context.Background()); err != nil {
			s.log.WithFields(map[string]interface{}{"job": name}).
				WithError(err).Error("scheduled job failed")
			return
		}
		s.log.WithFields(map[string]interface{}{"job": name}).Info("scheduled job finished")
	})
	return err
}

// Start begins dispatching jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts dispatch and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
