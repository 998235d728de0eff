package main

import (
	"fmt"
	"time"

	"github.com/joshp123/gohome-lyric/internal/server"
)

type pollState interface {
	PolledAt() time.Time
	LastError() error
	Interval() time.Duration
}

// pollHealth is degraded until the first good poll or after a failed one, and
// an error once the snapshot is older than three intervals.
func pollHealth(p pollState, now func() time.Time) server.HealthFunc {
	return func() (server.HealthStatus, string) {
		polledAt := p.PolledAt()
		if polledAt.IsZero() {
			if err := p.LastError(); err != nil {
				return server.HealthError, fmt.Sprintf("no successful poll: %v", err)
			}
			return server.HealthDegraded, "waiting for first poll"
		}
		if age := now().Sub(polledAt); age > 3*p.Interval() {
			return server.HealthError, fmt.Sprintf("last poll %s ago", age.Round(time.Second))
		}
		if err := p.LastError(); err != nil {
			return server.HealthDegraded, err.Error()
		}
		return server.HealthHealthy, ""
	}
}
