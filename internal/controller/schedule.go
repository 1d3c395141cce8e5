package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// resyncTimeout bounds one scheduled resync run.
const resyncTimeout = 2 * time.Minute

// StartResync runs Resync on a cron schedule (standard five-field syntax or
// descriptors such as "@every 5m"). Runs are skipped while the controller is
// not Ready and never overlap. The returned function stops the schedule and
// waits for a running job.
func (c *Controller) StartResync(schedule string) (stop func(), err error) {
	if schedule == "" {
		return func() {}, nil
	}

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := sched.AddFunc(schedule, c.scheduledResync); err != nil {
		return nil, fmt.Errorf("resync schedule %q: %w", schedule, err)
	}
	sched.Start()
	c.log.WithField("schedule", schedule).Info("periodic resync enabled")

	return func() {
		<-sched.Stop().Done()
	}, nil
}

func (c *Controller) scheduledResync() {
	if c.State() != Ready {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if _, err := c.Resync(ctx); err != nil {
		c.log.WithError(err).Warn("scheduled resync failed")
	}
}
