// Package scheduler periodically triggers forecast extraction.
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs a job on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	job       func()
}

// New creates a Scheduler that invokes job every interval.
func New(interval time.Duration, job func()) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
		job:       job,
	}
}

// Start schedules the job and starts the underlying scheduler asynchronously.
// The job also runs once immediately so a fresh daemon produces data without
// waiting a full interval.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).StartImmediately().Do(s.job)
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
