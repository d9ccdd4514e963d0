package beacon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rival420/donwatcher/errors"
)

func TestResolveIdentityDeterministic(t *testing.T) {
	a, err := ResolveIdentity("WORKSTATION-01", "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	b, err := ResolveIdentity("WORKSTATION-01", "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, IDPrefix))
	assert.Len(t, a, len(IDPrefix)+16)
}

func TestResolveIdentityCaseInsensitive(t *testing.T) {
	// Casing drift across reinstalls must not fork the identity.
	a, err := ResolveIdentity("Workstation-01", "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	b, err := ResolveIdentity("WORKSTATION-01", "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestResolveIdentityDistinctMachines(t *testing.T) {
	a, err := ResolveIdentity("host-a", "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	b, err := ResolveIdentity("host-b", "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	c, err := ResolveIdentity("host-a", "11:22:33:44:55:66")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestResolveIdentityRequiresInputs(t *testing.T) {
	_, err := ResolveIdentity("", "AA:BB:CC:DD:EE:FF")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, err = ResolveIdentity("host-a", "   ")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
