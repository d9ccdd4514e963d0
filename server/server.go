// Package server exposes the HTTP API: the beacon check-in protocol on one
// side, the operator and dashboard surface on the other.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Rival420/donwatcher/activity"
	"github.com/Rival420/donwatcher/beacon"
	"github.com/Rival420/donwatcher/config"
	"github.com/Rival420/donwatcher/ingest"
	"github.com/Rival420/donwatcher/job"
	"github.com/Rival420/donwatcher/schedule"
)

// Server wires the stores behind the HTTP API.
type Server struct {
	db        *sql.DB
	beacons   *beacon.Store
	jobs      *job.Store
	schedules *schedule.Store
	activity  *activity.Store
	ingestor  ingest.Ingestor
	limiter   *checkInLimiter
	logger    *zap.SugaredLogger

	httpServer *http.Server

	mu         sync.RWMutex
	thresholds beacon.Thresholds
	checkin    config.CheckInConfig
}

// New creates a server over an opened database.
func New(db *sql.DB, cfg *config.Config, ingestor ingest.Ingestor, log *zap.SugaredLogger) *Server {
	if ingestor == nil {
		ingestor = ingest.NopIngestor{}
	}

	s := &Server{
		db:        db,
		beacons:   beacon.NewStore(db),
		jobs:      job.NewStore(db),
		schedules: schedule.NewStore(db),
		activity:  activity.NewStore(db),
		ingestor:  ingestor,
		limiter:   newCheckInLimiter(cfg.CheckIn.RatePerMinute, cfg.CheckIn.RateBurst),
		logger:    log,
		thresholds: beacon.Thresholds{
			ActiveWindow:  time.Duration(cfg.Status.ActiveWindowMinutes) * time.Minute,
			DormantWindow: time.Duration(cfg.Status.DormantWindowMinutes) * time.Minute,
		},
		checkin: cfg.CheckIn,
	}
	return s
}

// Activity returns the activity store for wiring into background components.
func (s *Server) Activity() *activity.Store {
	return s.activity
}

// ApplyConfig applies reloadable settings (config live reload callback).
func (s *Server) ApplyConfig(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = beacon.Thresholds{
		ActiveWindow:  time.Duration(cfg.Status.ActiveWindowMinutes) * time.Minute,
		DormantWindow: time.Duration(cfg.Status.DormantWindowMinutes) * time.Minute,
	}
	s.checkin = cfg.CheckIn
	s.limiter.setRate(cfg.CheckIn.RatePerMinute, cfg.CheckIn.RateBurst)
	return nil
}

func (s *Server) currentThresholds() beacon.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

func (s *Server) checkinConfig() config.CheckInConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkin
}

// routes builds the HTTP mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Beacon protocol
	mux.HandleFunc("/api/beacon/checkin", s.handleCheckIn)
	mux.HandleFunc("/api/beacon/result", s.handleResult)
	mux.HandleFunc("/api/beacon/progress", s.handleProgress)

	// Operator surface
	mux.HandleFunc("/api/beacons", s.handleBeacons)
	mux.HandleFunc("/api/beacons/", s.handleBeaconByID)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/bulk", s.handleJobsBulk)
	mux.HandleFunc("/api/jobs/", s.handleJobByID)
	mux.HandleFunc("/api/templates", s.handleTemplates)
	mux.HandleFunc("/api/templates/", s.handleTemplateByID)
	mux.HandleFunc("/api/schedules", s.handleSchedules)
	mux.HandleFunc("/api/schedules/", s.handleScheduleByID)
	mux.HandleFunc("/api/activity", s.handleActivity)
	mux.HandleFunc("/ws/activity", s.handleActivityFeed)

	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

// Start begins serving on the configured address. Blocks until the server
// stops.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Infow("Server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth responds to liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
