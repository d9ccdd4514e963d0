package beacon

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Rival420/donwatcher/errors"
)

// IDPrefix marks derived beacon identifiers.
const IDPrefix = "BCN_"

// ResolveIdentity derives the stable beacon ID from the machine name and the
// primary MAC address. The same machine always resolves to the same ID:
// volatile attributes like IP addresses and the logged-in user are excluded
// on purpose, and the machine name is lowercased so casing drift across
// reinstalls does not fork the identity.
func ResolveIdentity(machineName, primaryMAC string) (string, error) {
	if strings.TrimSpace(machineName) == "" {
		return "", errors.Wrap(errors.ErrValidation, "machine name is required for identity resolution")
	}
	if strings.TrimSpace(primaryMAC) == "" {
		return "", errors.Wrap(errors.ErrValidation, "primary MAC is required for identity resolution")
	}

	material := strings.ToLower(strings.TrimSpace(machineName)) + "|" + strings.ToLower(strings.TrimSpace(primaryMAC))
	sum := sha256.Sum256([]byte(material))
	return IDPrefix + hex.EncodeToString(sum[:])[:16], nil
}
