package app

import "time"

// CachePruner drops expired cache entries and reports how many went.
type CachePruner interface {
	PruneCache() int
}

// StartCachePruner prunes p every interval until stop is closed. The
// returned channel is closed once the loop has exited.
func StartCachePruner(p CachePruner, interval time.Duration, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.PruneCache()
			case <-stop:
				return
			}
		}
	}()
	return done
}
