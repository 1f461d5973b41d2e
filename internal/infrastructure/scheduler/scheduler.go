package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"workbee/pkg/logger"
)

// Job is a unit of periodic work. Run receives a context bounded by the
// scheduler's per-run timeout.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs on cron specs. Overlapping runs of the same
// job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

func New(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		timeout: timeout,
	}
}

// Register adds job under spec, e.g. "@every 10m" or "*/5 * * * *".
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		started := time.Now()
		if err := job.Run(ctx); err != nil {
			logger.Error("Scheduled job %s failed: %v", job.Name(), err)
			return
		}
		logger.Debug("Scheduled job %s finished in %s", job.Name(), time.Since(started))
	})
	if err != nil {
		return err
	}
	logger.Info("Scheduled job %s registered with spec %q", job.Name(), spec)
	return nil
}

// Func adapts a plain function to Job.
type Func struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f Func) Name() string                  { return f.JobName }
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
