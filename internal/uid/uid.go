// Package uid provides unique identifier generation for the offloader.
package uid

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a 32-character hex string suitable for temp file names.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RunID returns a canonical UUID identifying one reconciliation pass.
func RunID() string {
	return uuid.NewString()
}
