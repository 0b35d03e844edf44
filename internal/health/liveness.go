// Package health tracks daemon liveness and serves it over HTTP.
package health

import (
	"sync/atomic"
	"time"
)

// Liveness is the in-memory record of the last successful cycle. It is safe
// for concurrent use by the poller and the HTTP handler.
type Liveness struct {
	lastSuccess atomic.Int64 // unix nanos; 0 means never
	processing  atomic.Bool
}

// NewLiveness returns a tracker with no successful run.
func NewLiveness() *Liveness {
	return &Liveness{}
}

// ReportSuccess records t as the last successful cycle.
func (l *Liveness) ReportSuccess(t time.Time) {
	l.lastSuccess.Store(t.UnixNano())
}

// SetProcessing marks whether a cycle is running.
func (l *Liveness) SetProcessing(v bool) {
	l.processing.Store(v)
}

// LastSuccess returns the last successful cycle time. ok is false before
// the first success.
func (l *Liveness) LastSuccess() (time.Time, bool) {
	n := l.lastSuccess.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

func (l *Liveness) Processing() bool {
	return l.processing.Load()
}
