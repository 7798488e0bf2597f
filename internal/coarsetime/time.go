// Package coarsetime provides a cheap clock for bookkeeping timestamps.
// The current time is refreshed every 50ms by a goroutine started on first use.
package coarsetime

import (
	"sync"
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var (
	now   atomic.Int64 // unix nanoseconds
	start sync.Once
)

func run() {
	now.Store(time.Now().UnixNano())

	ticker := time.NewTicker(tick)
	go func() {
		for t := range ticker.C {
			now.Store(t.UnixNano())
		}
	}()
}

// Now returns the current time with a resolution of about 50ms.
func Now() time.Time {
	start.Do(run)
	return time.Unix(0, now.Load())
}
