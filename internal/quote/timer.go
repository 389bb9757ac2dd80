package quote

import "time"

// Phase is the time spent in one named step of a quote.
type Phase struct {
	Name string `json:"name"`
	Ms   int64  `json:"ms"`
}

// Stats summarizes a quote's timing.
type Stats struct {
	TotalMs int64   `json:"totalMs"`
	Phases  []Phase `json:"phases"`
}

// Timer records consecutive phases of a single request. It is not safe for concurrent use.
type Timer struct {
	now    func() time.Time
	start  time.Time
	last   time.Time
	phases []Phase
}

func NewTimer(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Timer{now: now, start: start, last: start}
}

// Mark closes the phase that started at the previous mark.
func (t *Timer) Mark(name string) {
	current := t.now()
	t.phases = append(t.phases, Phase{Name: name, Ms: current.Sub(t.last).Milliseconds()})
	t.last = current
}

func (t *Timer) Stats() Stats {
	phases := make([]Phase, len(t.phases))
	copy(phases, t.phases)
	return Stats{TotalMs: t.last.Sub(t.start).Milliseconds(), Phases: phases}
}
