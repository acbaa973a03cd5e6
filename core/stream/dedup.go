package stream

import "github.com/google/uuid"

// dedup remembers IDs of recently forwarded events, keyed by event time.
// IDs older than window behind the newest timestamp are forgotten.
type dedup struct {
	window    int64
	ids       map[uuid.UUID]int64
	high      int64
	lastPrune int64
}

// The window is at least 1ms so floor stays below the newest event time and a
// resync from floor still covers events sharing that millisecond.
func newDedup(windowMS int64) *dedup {
	windowMS = max(windowMS, 1)
	return &dedup{window: windowMS, ids: make(map[uuid.UUID]int64)}
}

func (d *dedup) seen(id uuid.UUID) bool {
	_, ok := d.ids[id]
	return ok
}

func (d *dedup) add(id uuid.UUID, ts int64) {
	if ts > d.high {
		d.high = ts
	}
	if ts >= d.high-d.window {
		d.ids[id] = ts
	}
	if d.high-d.lastPrune > d.window {
		d.prune()
	}
}

func (d *dedup) prune() {
	floor := d.high - d.window
	for id, ts := range d.ids {
		if ts < floor {
			delete(d.ids, id)
		}
	}
	d.lastPrune = d.high
}

// floor is the oldest event time still covered by remembered IDs.
func (d *dedup) floor() int64 {
	return d.high - d.window
}
