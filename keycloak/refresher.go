package keycloak

import (
	"sync"
	"time"
)

// refresher drives the auto-refresh timer.  At most one loop runs per
// refresher: start always stops any existing loop first, so single-instance
// behavior holds by construction rather than by a guard check.
type refresher struct {
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

func newRefresher(interval time.Duration) *refresher {
	return &refresher{interval: interval}
}

// start begins firing refresh every interval.  A false return from refresh
// ends the loop; the session has been demoted and further attempts would
// only repeat the failure.
func (r *refresher) start(refresh func() bool) {
	r.stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	r.stopCh = stopCh
	r.doneCh = doneCh

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if !refresh() {
					return
				}
			}
		}
	}()
}

// stop cancels the running loop, if any, and waits for it to exit.
func (r *refresher) stop() {
	r.mu.Lock()
	stopCh, doneCh := r.stopCh, r.doneCh
	r.stopCh, r.doneCh = nil, nil
	r.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// running reports whether a loop is active.
func (r *refresher) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doneCh == nil {
		return false
	}
	select {
	case <-r.doneCh:
		return false
	default:
		return true
	}
}
