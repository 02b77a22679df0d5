package signalr

import (
	"sync"
	"sync/atomic"
	"time"
)

// watchdog is the one-shot, rearmable server-idle timer. needed is decided
// once at construction: true iff the transport does not advertise inherent
// keep-alive. When not needed, rearm is a no-op and no timer is ever
// started.
type watchdog struct {
	needed    bool
	timeoutNs int64 // atomic; read at each rearm, so setTimeout takes effect on the next rearm
	onTimeout func()

	mu       sync.Mutex
	timer    *time.Timer
	disposed bool
}

func newWatchdog(needed bool, timeout time.Duration, onTimeout func()) *watchdog {
	w := &watchdog{needed: needed, onTimeout: onTimeout}
	atomic.StoreInt64(&w.timeoutNs, int64(timeout))
	return w
}

// setTimeout updates the duration used by future rearms.
func (w *watchdog) setTimeout(d time.Duration) {
	atomic.StoreInt64(&w.timeoutNs, int64(d))
}

// rearm schedules (or reschedules) the one-shot timeout. Rearming after
// dispose is absorbed silently, covering the race at shutdown.
func (w *watchdog) rearm() {
	if !w.needed {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return
	}
	d := time.Duration(atomic.LoadInt64(&w.timeoutNs))
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(d, w.onTimeout)
}

// dispose stops the timer and makes further rearms no-ops. Safe to call
// more than once.
func (w *watchdog) dispose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return
	}
	w.disposed = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
