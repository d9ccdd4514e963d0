package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rival420/donwatcher/beacon"
	"github.com/Rival420/donwatcher/errors"
)

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("os=linux status=active")
	require.NoError(t, err)
	require.Len(t, f.Terms, 2)
	assert.Equal(t, Term{Key: "os", Value: "linux"}, f.Terms[0])
	assert.Equal(t, Term{Key: "status", Value: "active"}, f.Terms[1])
}

func TestParseFilterKeyCaseInsensitive(t *testing.T) {
	f, err := ParseFilter("OS=Linux")
	require.NoError(t, err)
	assert.Equal(t, "os", f.Terms[0].Key)
}

func TestParseFilterRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"os",
		"os=",
		"=linux",
		"ip=10.0.0.5",
		"os=linux bogus",
	}
	for _, expr := range tests {
		_, err := ParseFilter(expr)
		require.Error(t, err, expr)
		assert.True(t, errors.IsTargetResolution(err), expr)
	}
}

func TestFilterMatch(t *testing.T) {
	b := &beacon.Beacon{
		Hostname: "Workstation-01",
		Domain:   "corp.example",
		OS:       "Linux",
	}

	tests := []struct {
		expr   string
		status beacon.Status
		want   bool
	}{
		{"os=linux", beacon.StatusActive, true},
		{"os=LINUX hostname=workstation-01", beacon.StatusActive, true},
		{"os=linux status=active", beacon.StatusActive, true},
		{"os=linux status=active", beacon.StatusDormant, false},
		{"os=windows", beacon.StatusActive, false},
		{"domain=corp.example", beacon.StatusDead, true},
	}

	for _, tt := range tests {
		f, err := ParseFilter(tt.expr)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Match(b, tt.status), tt.expr)
	}
}
