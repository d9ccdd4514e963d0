package job

import (
	"encoding/json"

	"github.com/Rival420/donwatcher/errors"
)

// PortScanParams parameterizes a port_scan job.
type PortScanParams struct {
	Targets []string `json:"targets"`
	Ports   string   `json:"ports,omitempty"` // nmap-style port spec, e.g. "1-1024" or "22,80,443"
	TopN    int      `json:"top_n,omitempty"`
}

// DomainReconParams parameterizes a domain_recon job.
type DomainReconParams struct {
	Domain     string `json:"domain"`
	Subdomains bool   `json:"subdomains,omitempty"`
}

// CollectReportParams parameterizes a collect_report job.
type CollectReportParams struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"` // xml or json
}

// DecodeParams validates and decodes the params payload for a job type.
// Known types get typed structs; shell jobs accept an open key-value bag.
// The tagged union lives here so malformed params are rejected at the
// boundary rather than on the beacon.
func DecodeParams(jobType string, raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	switch jobType {
	case TypePortScan:
		var p PortScanParams
		if err := strictDecode(raw, &p); err != nil {
			return nil, errors.Wrap(errors.ErrValidation, "invalid port_scan params: "+err.Error())
		}
		if len(p.Targets) == 0 {
			return nil, errors.Wrap(errors.ErrValidation, "port_scan requires at least one target")
		}
		return &p, nil

	case TypeDomainRecon:
		var p DomainReconParams
		if err := strictDecode(raw, &p); err != nil {
			return nil, errors.Wrap(errors.ErrValidation, "invalid domain_recon params: "+err.Error())
		}
		if p.Domain == "" {
			return nil, errors.Wrap(errors.ErrValidation, "domain_recon requires a domain")
		}
		return &p, nil

	case TypeCollectReport:
		var p CollectReportParams
		if err := strictDecode(raw, &p); err != nil {
			return nil, errors.Wrap(errors.ErrValidation, "invalid collect_report params: "+err.Error())
		}
		if p.Path == "" {
			return nil, errors.Wrap(errors.ErrValidation, "collect_report requires a path")
		}
		return &p, nil

	case TypeShell:
		var p map[string]interface{}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(errors.ErrValidation, "invalid shell params: "+err.Error())
		}
		return p, nil

	default:
		return nil, errors.NewValidationError("unknown job type %q", jobType)
	}
}

// IsScanType reports whether completed output of this job type is handed to
// the report ingestion collaborator.
func IsScanType(jobType string) bool {
	switch jobType {
	case TypePortScan, TypeDomainRecon, TypeCollectReport:
		return true
	}
	return false
}

func strictDecode(raw json.RawMessage, dst interface{}) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
