package util

import (
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// GenerateConnectionID returns an opaque identifier for one live stream.
// The millisecond prefix keeps ids sortable by connect time for log correlation.
func GenerateConnectionID() string {
	shortID := shortuuid.New()[:8]

	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), shortID)
}
