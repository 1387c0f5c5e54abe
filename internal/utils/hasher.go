package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash generates a SHA-256 hash of the input string
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// DeviceScope turns a client supplied device identifier into a short key
// segment. Empty identifiers map to "shared".
func DeviceScope(deviceID string) string {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "shared"
	}
	return Hash(deviceID)[:16]
}
