package protocol

import (
	"encoding/json"

	"github.com/Rival420/donwatcher/errors"
)

// v1CheckIn is the legacy flat payload shape still emitted by old agents.
// Single MAC and address, no descriptor bag.
type v1CheckIn struct {
	Hostname string `json:"hostname"`
	MAC      string `json:"mac"`
	IP       string `json:"ip"`
	OS       string `json:"os"`
	Platform string `json:"platform"`
	User     string `json:"user"`
	Domain   string `json:"domain"`
}

// ParseCheckIn decodes either request generation and normalizes it. The
// version field selects the shape: absent or 1 means legacy flat, 2 means
// the current nested form. The normalized request is validated before return,
// so callers never see a half-formed identity.
func ParseCheckIn(data []byte) (*CheckInRequest, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "malformed check-in body")
	}

	var req CheckInRequest
	switch probe.Version {
	case 0, 1:
		var legacy v1CheckIn
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, errors.Wrap(errors.ErrValidation, "malformed v1 check-in body")
		}
		req = CheckInRequest{
			MachineName: legacy.Hostname,
			OS:          legacy.OS,
			Platform:    legacy.Platform,
			Username:    legacy.User,
			Domain:      legacy.Domain,
		}
		if legacy.MAC != "" {
			req.MACs = []string{legacy.MAC}
		}
		if legacy.IP != "" {
			req.Addresses = []string{legacy.IP}
		}
	case 2:
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, errors.Wrap(errors.ErrValidation, "malformed v2 check-in body")
		}
	default:
		return nil, errors.NewValidationError("unsupported check-in version %d", probe.Version)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate enforces the minimum identity a check-in must carry: a machine
// name, at least one MAC, and at least one network address.
func (r *CheckInRequest) Validate() error {
	if r.MachineName == "" {
		return errors.Wrap(errors.ErrValidation, "machine name is required")
	}
	if len(r.MACs) == 0 || r.MACs[0] == "" {
		return errors.Wrap(errors.ErrValidation, "at least one MAC address is required")
	}
	if len(r.Addresses) == 0 || r.Addresses[0] == "" {
		return errors.Wrap(errors.ErrValidation, "at least one network address is required")
	}
	return nil
}
