package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

// JobViewKey caches the rendered poll projection of a terminal job.
func JobViewKey(jobID uuid.UUID) string {
	return fmt.Sprintf("jobview:%s", jobID)
}

func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:%s", clientIP)
}
