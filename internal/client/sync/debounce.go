package sync

import "time"

// debouncer collapses bursts of notifications: every notification pushes the
// pass back by wait, but never beyond max after the first one of the burst
type debouncer struct {
	first time.Time
	wait  time.Duration
	max   time.Duration
	armed bool
}

// next returns the delay until the pass for a notification received at now
func (d *debouncer) next(now time.Time) time.Duration {
	if !d.armed {
		d.armed = true
		d.first = now
	}

	deadline := d.first.Add(d.max)
	fire := now.Add(d.wait)
	if fire.After(deadline) {
		fire = deadline
	}
	if delay := fire.Sub(now); delay > 0 {
		return delay
	}
	return 0
}

// fired сбрасывает серию после запуска прохода
func (d *debouncer) fired() {
	d.armed = false
}
