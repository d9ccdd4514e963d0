package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Rival420/donwatcher/activity"
	"github.com/Rival420/donwatcher/beacon"
	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/job"
)

// SchedulerConfig contains configuration for the scheduler ticker
type SchedulerConfig struct {
	Interval   time.Duration     // How often to look for due schedules (default: 15 seconds)
	Thresholds beacon.Thresholds // Liveness windows for status-based filters
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   15 * time.Second,
		Thresholds: beacon.DefaultThresholds(),
	}
}

// Scheduler is the background ticker that fires due schedules. Each firing
// is claimed through a guarded UPDATE, so overlapping ticks (or a second
// server process) produce exactly one materialization per due schedule.
type Scheduler struct {
	store    *Store
	beacons  *beacon.Store
	jobs     *job.Store
	activity *activity.Store
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	thresholds beacon.Thresholds
	lastTickAt time.Time
	tickCount  int64
}

// NewScheduler creates a scheduler
func NewScheduler(ctx context.Context, store *Store, beacons *beacon.Store, jobs *job.Store, act *activity.Store, cfg SchedulerConfig, log *zap.SugaredLogger) *Scheduler {
	schedCtx, cancel := context.WithCancel(ctx)
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	return &Scheduler{
		store:      store,
		beacons:    beacons,
		jobs:       jobs,
		activity:   act,
		interval:   cfg.Interval,
		ctx:        schedCtx,
		cancel:     cancel,
		logger:     log,
		thresholds: cfg.Thresholds,
	}
}

// SetThresholds updates the liveness windows used by status filters (config
// live reload).
func (sc *Scheduler) SetThresholds(th beacon.Thresholds) {
	sc.mu.Lock()
	sc.thresholds = th
	sc.mu.Unlock()
}

// Start begins the scheduler loop
func (sc *Scheduler) Start() {
	sc.wg.Add(1)
	go sc.run()
	sc.logger.Infow("Scheduler started", "interval", sc.interval)
}

// Stop gracefully stops the scheduler
func (sc *Scheduler) Stop() {
	sc.cancel()
	sc.wg.Wait()
	sc.logger.Infow("Scheduler stopped")
}

func (sc *Scheduler) run() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case tickTime := <-ticker.C:
			sc.mu.Lock()
			sc.lastTickAt = tickTime
			sc.tickCount++
			sc.mu.Unlock()

			if err := sc.Tick(tickTime); err != nil {
				sc.logger.Warnw("Scheduler tick error", "error", err)
			}
		}
	}
}

// Tick fires every due schedule once. Exposed so tests can drive the
// scheduler without the ticker. A failing schedule never blocks the others.
func (sc *Scheduler) Tick(now time.Time) error {
	due, err := sc.store.ListDue(now)
	if err != nil {
		return errors.Wrap(err, "list due schedules")
	}
	if len(due) == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(sc.ctx)
	g.SetLimit(4)
	for _, sch := range due {
		sch := sch
		g.Go(func() error {
			if err := sc.fire(sch, now); err != nil {
				sc.logger.Errorw("Schedule firing failed",
					"schedule_id", sch.ID,
					"name", sch.Name,
					"error", err)
			}
			// Errors are per-schedule, never abort the tick
			return nil
		})
	}
	return g.Wait()
}

// fire claims one due schedule and materializes its jobs.
func (sc *Scheduler) fire(sch *Schedule, now time.Time) error {
	next, err := sch.NextRun(now)
	if err != nil {
		return err
	}

	owned, err := sc.store.ClaimDue(sch.ID, next, now)
	if err != nil {
		return err
	}
	if !owned {
		// Another tick or process fired this schedule first
		return nil
	}

	targets, err := sc.resolveTargets(sch, now)
	if err != nil {
		if errors.IsTargetResolution(err) {
			// A filter that cannot parse will never start parsing on its
			// own: disable the schedule instead of failing every tick.
			if derr := sc.store.SetEnabled(sch.ID, false); derr != nil {
				sc.logger.Errorw("Failed to disable schedule with malformed filter",
					"schedule_id", sch.ID,
					"error", derr)
			}
			sc.store.RecordRunStatus(sch.ID, RunStatusError)
			sc.activity.Record("", activity.CategorySchedule,
				fmt.Sprintf("schedule %s (%s) disabled: %v", sch.ID, sch.Name, err))
			sc.logger.Warnw("Disabled schedule with unresolvable target",
				"schedule_id", sch.ID,
				"name", sch.Name,
				"error", err)
			return nil
		}
		sc.store.RecordRunStatus(sch.ID, RunStatusError)
		return err
	}

	if len(targets) == 0 {
		sc.store.RecordRunStatus(sch.ID, RunStatusNoTargets)
		sc.logger.Infow("Schedule fired with no matching targets",
			"schedule_id", sch.ID,
			"name", sch.Name)
		return nil
	}

	created := 0
	for _, b := range targets {
		j := &job.Job{
			BeaconID:   b.ID,
			JobType:    sch.JobType,
			Command:    sch.Command,
			Params:     sch.Params,
			Priority:   sch.Priority,
			ScheduleID: sch.ID,
			TemplateID: sch.TemplateID,
			CreatedAt:  now.UTC(),
		}
		if err := sc.jobs.Create(j); err != nil {
			sc.logger.Errorw("Failed to create scheduled job",
				"schedule_id", sch.ID,
				"beacon_id", b.ID,
				"error", err)
			continue
		}
		created++
	}

	sc.store.RecordRunStatus(sch.ID, RunStatusOK)
	sc.activity.Record("", activity.CategorySchedule,
		fmt.Sprintf("schedule %s (%s) created %d jobs", sch.ID, sch.Name, created))
	sc.logger.Infow("Schedule fired",
		"schedule_id", sch.ID,
		"name", sch.Name,
		"jobs_created", created,
		"next_run_at", next)
	return nil
}

// resolveTargets expands the schedule's target into live beacons. Killed
// beacons are never targeted.
func (sc *Scheduler) resolveTargets(sch *Schedule, now time.Time) ([]*beacon.Beacon, error) {
	if sch.BeaconID != "" {
		b, err := sc.beacons.Get(sch.BeaconID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		if b.Killed {
			return nil, nil
		}
		return []*beacon.Beacon{b}, nil
	}

	filter, err := ParseFilter(sch.Filter)
	if err != nil {
		return nil, err
	}

	all, err := sc.beacons.List()
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	th := sc.thresholds
	sc.mu.Unlock()

	var matched []*beacon.Beacon
	for _, b := range all {
		if b.Killed {
			continue
		}
		status := beacon.ComputeStatus(b.Killed, b.LastSeen, now, th)
		if filter.Match(b, status) {
			matched = append(matched, b)
		}
	}
	return matched, nil
}
