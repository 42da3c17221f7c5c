package device

import (
	"log"
)

// Stats counts the work of the device since the last print. MaxInFlight is
// the most fenced commands waiting for their fences at once.
type Stats struct {
	Requests    uint64
	MaxInFlight uint64
	Submits3D   uint64
	Bytes3D     uint64
}

// Stats returns the counters of the current period.
func (d *Device) Stats() Stats {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.stats
}

// printStats prints and resets the counters. The timer stops once a period
// saw no request and restarts with the next one.
func (d *Device) printStats() {
	if d.stats.Requests == 0 {
		log.Printf("%s stats: idle", d.name)
		return
	}

	log.Printf("%s stats: vq req %4d, %3d -- 3D %4d (%5d)",
		d.name,
		d.stats.Requests,
		d.stats.MaxInFlight,
		d.stats.Submits3D,
		d.stats.Bytes3D)

	d.stats = Stats{}
	d.statsTicker.TickAfter(StatsInterval)
}
