package cronrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules the pipeline cycle on a fixed wall-clock interval and
// drains the in-flight run on shutdown.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Every registers job to run each interval, floored at one second so a
// misconfigured interval cannot spin the scheduler.
func (r *Runner) Every(interval time.Duration, job func(context.Context)) (cron.EntryID, error) {
	if interval < time.Second {
		interval = time.Second
	}
	return r.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		job(r.baseCtx)
	})
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("scheduler started")
	}
	r.cron.Start()
}

// Stop blocks until any in-flight job returns.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("scheduler stopped")
	}
}
