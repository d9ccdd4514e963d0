package job

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Rival420/donwatcher/errors"
)

// ReapEligible reports whether a dispatched job has waited past the beacon's
// own cadence. The cutoff is the beacon's configured poll interval times the
// multiplier, measured from dispatch. Jobs without a sent_at are never
// eligible.
func ReapEligible(j *Job, pollInterval time.Duration, multiplier int, now time.Time) bool {
	if j.Status != StatusSent && j.Status != StatusRunning {
		return false
	}
	if j.SentAt == nil {
		return false
	}
	if multiplier <= 0 {
		multiplier = 10
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return now.Sub(*j.SentAt) > pollInterval*time.Duration(multiplier)
}

// ReaperConfig contains configuration for the stale-job reaper
type ReaperConfig struct {
	Interval   time.Duration // How often to sweep (default: 1 minute)
	Multiplier int           // Missed poll intervals before a job is failed (default: 10)
}

// DefaultReaperConfig returns sensible defaults
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:   time.Minute,
		Multiplier: 10,
	}
}

// Reaper periodically fails dispatched jobs whose beacon went quiet. This is
// the authoritative reconciliation for jobs stuck in sent or running: there
// is no retry, the job fails and the operator decides what to do next.
type Reaper struct {
	store  *Store
	cfg    ReaperConfig
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu          sync.Mutex
	lastSweep   time.Time
	reapedTotal int64
}

// NewReaper creates a new reaper
func NewReaper(ctx context.Context, store *Store, cfg ReaperConfig, log *zap.SugaredLogger) *Reaper {
	reaperCtx, cancel := context.WithCancel(ctx)
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 10
	}
	return &Reaper{
		store:  store,
		cfg:    cfg,
		ctx:    reaperCtx,
		cancel: cancel,
		logger: log,
	}
}

// SetMultiplier updates the reap multiplier (used by config live reload).
func (r *Reaper) SetMultiplier(multiplier int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if multiplier > 0 {
		r.cfg.Multiplier = multiplier
	}
}

// Start begins the reaper loop
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Infow("Job reaper started",
		"interval", r.cfg.Interval,
		"multiplier", r.cfg.Multiplier)
}

// Stop gracefully stops the reaper
func (r *Reaper) Stop() {
	r.cancel()
	r.wg.Wait()
	r.logger.Infow("Job reaper stopped")
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case tickTime := <-ticker.C:
			if _, err := r.Sweep(tickTime); err != nil {
				r.logger.Warnw("Reaper sweep error", "error", err)
			}
		}
	}
}

// Sweep fails every eligible dispatched job and returns how many were reaped.
// Exposed so tests and the CLI can trigger a sweep without the ticker.
func (r *Reaper) Sweep(now time.Time) (int, error) {
	dispatched, err := r.store.ListDispatched()
	if err != nil {
		return 0, errors.Wrap(err, "list dispatched jobs")
	}

	r.mu.Lock()
	multiplier := r.cfg.Multiplier
	r.lastSweep = now
	r.mu.Unlock()

	reaped := 0
	for _, d := range dispatched {
		interval := time.Duration(d.PollIntervalSeconds) * time.Second
		if !ReapEligible(d.Job, interval, multiplier, now) {
			continue
		}

		// A result landing between the list and this update wins
		ok, err := r.store.FailTimedOut(d.Job.ID, now)
		if err != nil {
			r.logger.Errorw("Failed to reap job",
				"job_id", d.Job.ID,
				"error", err)
			continue
		}
		if ok {
			reaped++
			r.logger.Warnw("Reaped stale job",
				"job_id", d.Job.ID,
				"beacon_id", d.Job.BeaconID,
				"sent_at", d.Job.SentAt,
				"poll_interval_seconds", d.PollIntervalSeconds)
		}
	}

	if reaped > 0 {
		r.mu.Lock()
		r.reapedTotal += int64(reaped)
		r.mu.Unlock()
	}
	return reaped, nil
}
