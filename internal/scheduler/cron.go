package scheduler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron runs named jobs on cron specs. Standard five-field specs and
// descriptors such as "@every 60s" are accepted. A job still running when
// its next slot arrives is skipped, and a panicking job is recovered.
type Cron struct {
	c   *cron.Cron
	log *zap.Logger
}

// NewCron creates a stopped cron runner.
func NewCron(log *zap.Logger) *Cron {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	return &Cron{
		c: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		log: log,
	}
}

// Add registers fn under spec.
func (c *Cron) Add(name, spec string, fn func()) error {
	if _, err := c.c.AddFunc(spec, func() {
		c.log.Debug("cron job", zap.String("job", name))
		fn()
	}); err != nil {
		return errors.Wrapf(err, "register %s job %q", name, spec)
	}
	return nil
}

// Len returns the number of registered jobs.
func (c *Cron) Len() int { return len(c.c.Entries()) }

// Run starts the runner and blocks until ctx is done, then waits for
// running jobs to finish.
func (c *Cron) Run(ctx context.Context) error {
	c.c.Start()
	c.log.Info("cron started", zap.Int("jobs", c.Len()))
	<-ctx.Done()
	<-c.c.Stop().Done()
	c.log.Info("cron stopped")
	return nil
}
