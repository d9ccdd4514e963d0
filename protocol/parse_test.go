package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rival420/donwatcher/errors"
)

func TestParseCheckInLegacyFlat(t *testing.T) {
	body := `{
		"hostname": "WORKSTATION-01",
		"mac": "AA:BB:CC:DD:EE:FF",
		"ip": "10.0.0.5",
		"os": "windows",
		"platform": "win10",
		"user": "jdoe",
		"domain": "CORP"
	}`

	req, err := ParseCheckIn([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "WORKSTATION-01", req.MachineName)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, req.MACs)
	assert.Equal(t, []string{"10.0.0.5"}, req.Addresses)
	assert.Equal(t, "windows", req.OS)
	assert.Equal(t, "jdoe", req.Username)
	assert.Equal(t, "CORP", req.Domain)
}

func TestParseCheckInExplicitV1(t *testing.T) {
	body := `{"version": 1, "hostname": "host-a", "mac": "AA:BB:CC:DD:EE:FF", "ip": "10.0.0.5"}`
	req, err := ParseCheckIn([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "host-a", req.MachineName)
}

func TestParseCheckInV2Nested(t *testing.T) {
	body := `{
		"version": 2,
		"machine_name": "workstation-01",
		"macs": ["AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66"],
		"addresses": ["10.0.0.5", "fe80::1"],
		"os": "linux",
		"platform": "ubuntu",
		"username": "root",
		"descriptors": {"arch": "amd64", "kernel": "6.8"}
	}`

	req, err := ParseCheckIn([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "workstation-01", req.MachineName)
	assert.Len(t, req.MACs, 2)
	assert.Len(t, req.Addresses, 2)
	assert.Equal(t, "amd64", req.Descriptors["arch"])
}

func TestParseCheckInGenerationsNormalizeAlike(t *testing.T) {
	v1 := `{"hostname": "host-a", "mac": "AA:BB:CC:DD:EE:FF", "ip": "10.0.0.5", "os": "linux", "user": "jdoe"}`
	v2 := `{"version": 2, "machine_name": "host-a", "macs": ["AA:BB:CC:DD:EE:FF"], "addresses": ["10.0.0.5"], "os": "linux", "username": "jdoe"}`

	a, err := ParseCheckIn([]byte(v1))
	require.NoError(t, err)
	b, err := ParseCheckIn([]byte(v2))
	require.NoError(t, err)

	assert.Equal(t, a.MachineName, b.MachineName)
	assert.Equal(t, a.MACs, b.MACs)
	assert.Equal(t, a.Addresses, b.Addresses)
	assert.Equal(t, a.OS, b.OS)
	assert.Equal(t, a.Username, b.Username)
}

func TestParseCheckInUnsupportedVersion(t *testing.T) {
	_, err := ParseCheckIn([]byte(`{"version": 7, "machine_name": "host-a"}`))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestParseCheckInMalformedBody(t *testing.T) {
	_, err := ParseCheckIn([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestParseCheckInValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing machine name", `{"version": 2, "macs": ["AA:BB:CC:DD:EE:FF"], "addresses": ["10.0.0.5"]}`},
		{"missing macs", `{"version": 2, "machine_name": "host-a", "addresses": ["10.0.0.5"]}`},
		{"empty mac", `{"version": 2, "machine_name": "host-a", "macs": [""], "addresses": ["10.0.0.5"]}`},
		{"missing addresses", `{"version": 2, "machine_name": "host-a", "macs": ["AA:BB:CC:DD:EE:FF"]}`},
		{"legacy missing mac", `{"hostname": "host-a", "ip": "10.0.0.5"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCheckIn([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}
