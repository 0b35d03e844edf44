package health

import (
	"fmt"
	"time"
)

// Status is the overall health verdict.
type Status string

const (
	StatusHealthy   Status = "Healthy"
	StatusDegraded  Status = "Degraded"
	StatusUnhealthy Status = "Unhealthy"
)

// StaleAfter is how long without a successful cycle before the daemon is
// reported unhealthy.
const StaleAfter = time.Hour

// Report is the result of one health check.
type Report struct {
	Status      Status         `json:"status"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// Checker evaluates liveness.
type Checker struct {
	live       *Liveness
	emailHost  string
	aiProvider string
	now        func() time.Time
}

// NewChecker creates a Checker. emailHost and aiProvider are reported as
// static data.
func NewChecker(live *Liveness, emailHost, aiProvider string) *Checker {
	return &Checker{
		live:       live,
		emailHost:  emailHost,
		aiProvider: aiProvider,
		now:        time.Now,
	}
}

// WithClock returns a copy of c that uses now.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	cp := *c
	cp.now = now
	return &cp
}

// Check builds a report from the current liveness state.
func (c *Checker) Check() Report {
	last, ok := c.live.LastSuccess()

	data := map[string]any{
		"lastSuccessfulRun": "never",
		"isProcessing":      c.live.Processing(),
		"emailHost":         c.emailHost,
		"aiProvider":        c.aiProvider,
	}

	if !ok {
		return Report{
			Status:      StatusDegraded,
			Description: "No successful processing runs yet",
			Data:        data,
		}
	}

	data["lastSuccessfulRun"] = last.UTC().Format(time.RFC3339)
	elapsed := c.now().Sub(last)
	minutes := int(elapsed.Minutes())

	if elapsed > StaleAfter {
		return Report{
			Status:      StatusUnhealthy,
			Description: fmt.Sprintf("Last successful run was %d minutes ago", minutes),
			Data:        data,
		}
	}

	return Report{
		Status:      StatusHealthy,
		Description: fmt.Sprintf("Last successful run %d minutes ago", minutes),
		Data:        data,
	}
}

// Ready reports whether at least one cycle has succeeded.
func (c *Checker) Ready() bool {
	_, ok := c.live.LastSuccess()
	return ok
}
