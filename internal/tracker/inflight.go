package tracker

import (
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sells-group/acquisition-cli/internal/model"
)

// InflightGuard allows at most one in-flight attempt per candidate across
// every run in the process. It does not coordinate separate processes: a CLI
// enrichment next to serve may fetch the same candidate twice.
type InflightGuard struct {
	slots *xsync.Map[string, struct{}]
}

// NewInflightGuard creates an empty guard.
func NewInflightGuard() *InflightGuard {
	return &InflightGuard{slots: xsync.NewMap[string, struct{}]()}
}

// Acquire claims the slot for (platform, handle).
func (g *InflightGuard) Acquire(platform model.Platform, handle string) (func(), bool) {
	key := string(platform) + "/" + handle
	if _, loaded := g.slots.LoadOrStore(key, struct{}{}); loaded {
		return func() {}, false
	}
	return func() { g.slots.Delete(key) }, true
}

// Len returns the number of attempts in flight.
func (g *InflightGuard) Len() int {
	return g.slots.Size()
}
