package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron wraps robfig/cron with panic recovery logged through zap.
type Cron struct {
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location, lg *zap.Logger) *Cron {
	if loc == nil {
		loc = time.Local
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	cl := cron.PrintfLogger(zap.NewStdLog(lg.Named("cron")))
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, ctx: ctx, cancel: cancel}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop cancels the job context and waits for running jobs.
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(cr.ctx) })
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
