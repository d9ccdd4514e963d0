// Package ingest hands completed scan output to the report parsing
// collaborator. Ingestion is strictly secondary: a handoff failure is
// recorded and never rolls back the job's completion.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Rival420/donwatcher/errors"
	"github.com/Rival420/donwatcher/logger"
)

// Ingestor receives raw scan output from completed jobs.
type Ingestor interface {
	Ingest(ctx context.Context, jobID, beaconID, jobType, output string) error
}

// Report is the payload posted to the ingestion endpoint.
type Report struct {
	JobID    string `json:"job_id"`
	BeaconID string `json:"beacon_id"`
	JobType  string `json:"job_type"`
	Output   string `json:"output"`
}

// HTTPIngestor forwards scan output to a parser service over HTTP.
type HTTPIngestor struct {
	url    string
	client *http.Client
}

// NewHTTPIngestor creates an ingestor posting to the given URL.
func NewHTTPIngestor(url string, timeout time.Duration) *HTTPIngestor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPIngestor{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Ingest posts the report and fails on any non-2xx response.
func (h *HTTPIngestor) Ingest(ctx context.Context, jobID, beaconID, jobType, output string) error {
	body, err := json.Marshal(Report{
		JobID:    jobID,
		BeaconID: beaconID,
		JobType:  jobType,
		Output:   output,
	})
	if err != nil {
		return errors.Wrap(err, "marshal ingest report")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build ingest request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post ingest report")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf("ingest endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// NopIngestor logs and discards. Used when no parser endpoint is configured.
type NopIngestor struct{}

// Ingest logs the report at debug level and succeeds.
func (NopIngestor) Ingest(_ context.Context, jobID, beaconID, jobType, _ string) error {
	logger.Debugw("Ingest disabled, discarding report",
		"job_id", jobID,
		"beacon_id", beaconID,
		"job_type", jobType)
	return nil
}
