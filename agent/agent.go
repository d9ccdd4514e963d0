// Package agent is the beacon side: a jittered poll loop that checks in,
// executes delivered jobs, and reports results.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/protocol"
)

// State names for the poll loop.
type State string

const (
	StateIdle       State = "idle"
	StateSleeping   State = "sleeping"
	StateCheckingIn State = "checking_in"
	StateExecuting  State = "executing"
	StateReporting  State = "reporting"
)

// Config configures the agent loop.
type Config struct {
	ServerURL    string
	PollInterval time.Duration
	JitterPct    int
	ExecTimeout  time.Duration
}

// Agent runs the beacon poll loop. The loop is an explicit state machine:
// idle -> sleeping -> checking_in -> executing -> reporting -> sleeping,
// until the context ends or the server delivers a kill directive.
type Agent struct {
	cfg      Config
	client   *http.Client
	executor *Executor
	logger   *zap.SugaredLogger
	rng      *rand.Rand

	beaconID string
	state    State
}

// New creates an agent
func New(cfg Config, log *zap.SugaredLogger) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.JitterPct < 0 || cfg.JitterPct > 100 {
		cfg.JitterPct = 20
	}
	return &Agent{
		cfg:      cfg,
		client:   &http.Client{Timeout: 30 * time.Second},
		executor: NewExecutor(cfg.ExecTimeout),
		logger:   log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    StateIdle,
	}
}

// Run executes the poll loop until the context is cancelled or the server
// tells the agent to die. Check-in failures are absorbed: the loop sleeps
// and tries again.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Infow("Agent starting",
		"server", a.cfg.ServerURL,
		"poll_interval", a.cfg.PollInterval,
		"jitter_pct", a.cfg.JitterPct)

	for {
		a.state = StateCheckingIn
		resp, err := a.checkIn(ctx)
		if err != nil {
			a.logger.Warnw("Check-in failed", "error", err)
		} else {
			a.beaconID = resp.BeaconID

			if resp.Kill {
				a.logger.Infow("Kill directive received, terminating")
				return nil
			}

			// Server-side poll config wins over the local default
			if resp.PollIntervalSeconds > 0 {
				a.cfg.PollInterval = time.Duration(resp.PollIntervalSeconds) * time.Second
			}
			if resp.JitterPercent >= 0 && resp.JitterPercent <= 100 {
				a.cfg.JitterPct = resp.JitterPercent
			}

			for _, delivered := range resp.Jobs {
				a.state = StateExecuting
				a.logger.Infow("Executing job",
					"job_id", delivered.ID,
					"job_type", delivered.JobType)
				result := a.executor.Execute(ctx, a.beaconID, delivered)

				a.state = StateReporting
				if err := a.report(ctx, result); err != nil {
					a.logger.Warnw("Result report failed",
						"job_id", delivered.ID,
						"error", err)
				}
			}
		}

		a.state = StateSleeping
		sleep := a.sleepInterval()
		a.logger.Debugw("Sleeping until next check-in", "duration", sleep)
		select {
		case <-ctx.Done():
			a.state = StateIdle
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// State returns the current loop state.
func (a *Agent) State() State {
	return a.state
}

// sleepInterval returns the poll interval with uniform jitter applied:
// interval plus or minus up to jitterPct percent.
func (a *Agent) sleepInterval() time.Duration {
	base := a.cfg.PollInterval
	if a.cfg.JitterPct == 0 {
		return base
	}
	span := int64(base) * int64(a.cfg.JitterPct) / 100
	offset := a.rng.Int63n(2*span+1) - span
	return time.Duration(int64(base) + offset)
}

// checkIn posts identity to the server and returns the response.
func (a *Agent) checkIn(ctx context.Context) (*protocol.CheckInResponse, error) {
	ident, err := CollectIdentity()
	if err != nil {
		return nil, err
	}

	payload := struct {
		Version int `json:"version"`
		*protocol.CheckInRequest
	}{Version: 2, CheckInRequest: ident}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal check-in")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.ServerURL+"/api/beacon/checkin", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build check-in request")
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "post check-in")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.New("server rate limited the check-in")
	}
	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, errors.Newf("check-in returned %d: %s", httpResp.StatusCode, string(data))
	}

	var resp protocol.CheckInResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "decode check-in response")
	}
	return &resp, nil
}

// report submits a result, retrying a few times. The server treats an exact
// duplicate as a no-op, so retrying after an ambiguous failure is safe.
func (a *Agent) report(ctx context.Context, result protocol.ResultRequest) error {
	body, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.cfg.ServerURL+"/api/beacon/result", bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(err, "build result request")
		}
		req.Header.Set("Content-Type", "application/json")

		httpResp, err := a.client.Do(req)
		if err == nil {
			if httpResp.StatusCode == http.StatusOK {
				httpResp.Body.Close()
				return nil
			}
			data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
			httpResp.Body.Close()
			lastErr = errors.Newf("result submission returned %d: %s", httpResp.StatusCode, string(data))
			// Only transport-level problems and 5xx are worth retrying
			if httpResp.StatusCode < 500 {
				return lastErr
			}
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return errors.Wrap(lastErr, "result submission failed after retries")
}
