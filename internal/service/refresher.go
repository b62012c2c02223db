package service

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "schoolsched/internal/log"
)

// Refresher rebuilds every configured schedule on a cron spec.
type Refresher struct {
	svc *Service

	mu      sync.Mutex
	cron    *cron.Cron
	spec    string
	entryID cron.EntryID
}

func NewRefresher(svc *Service) *Refresher {
	return &Refresher{
		svc:  svc,
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules RefreshAll on spec and starts the cron runner.
func (r *Refresher) Start(spec string) error {
	if err := r.Reschedule(spec); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Reschedule replaces the cron spec. An invalid spec leaves the current one
// in place.
func (r *Refresher) Reschedule(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if spec == r.spec && r.entryID != 0 {
		return nil
	}
	id, err := r.cron.AddFunc(spec, r.run)
	if err != nil {
		return err
	}
	if r.entryID != 0 {
		r.cron.Remove(r.entryID)
	}
	r.entryID, r.spec = id, spec
	appLog.Info("refresh scheduled", "cron", spec)
	return nil
}

// Stop stops the runner and waits for a running refresh to finish or ctx
// to expire.
func (r *Refresher) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundBuildTimeout)
	defer cancel()
	appLog.Info("scheduled refresh starting")
	if err := r.svc.RefreshAll(ctx); err != nil {
		appLog.Warn("scheduled refresh finished with errors", "reason", err.Error())
		return
	}
	appLog.Info("scheduled refresh finished")
}
