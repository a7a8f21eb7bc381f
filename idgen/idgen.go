// Package idgen generates registry entry identifiers.
package idgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns "<prefix>_<unix millis>_<8 random hex chars>".
func New(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}
