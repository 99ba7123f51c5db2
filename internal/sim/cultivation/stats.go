package cultivation

type StatsBucket struct {
	Seeded        int `json:"seeded"`
	Harvested     int `json:"harvested"`
	Died          int `json:"died"`
	Transitions   int `json:"transitions"`
	Denied        int `json:"denied"`
	AlertsRaised  int `json:"alerts_raised"`
	AlertsCleared int `json:"alerts_cleared"`
}

// FacilityStats keeps a rolling window of activity counters, bucketed so old
// activity ages out instead of accumulating forever.
type FacilityStats struct {
	bucketTicks uint64
	windowTicks uint64

	buckets []StatsBucket
	curIdx  int
	curBase uint64 // start tick (inclusive) of current bucket
}

func NewFacilityStats(bucketTicks, windowTicks uint64) *FacilityStats {
	if bucketTicks <= 0 {
		bucketTicks = 300
	}
	if windowTicks < bucketTicks {
		windowTicks = bucketTicks
	}
	n := int(windowTicks / bucketTicks)
	if n < 1 {
		n = 1
	}
	return &FacilityStats{
		bucketTicks: bucketTicks,
		windowTicks: uint64(n) * bucketTicks,
		buckets:     make([]StatsBucket, n),
	}
}

func (s *FacilityStats) rotate(nowTick uint64) {
	if s == nil {
		return
	}
	// Move forward until nowTick is in [curBase, curBase+bucketTicks).
	for nowTick >= s.curBase+s.bucketTicks {
		s.curIdx = (s.curIdx + 1) % len(s.buckets)
		s.buckets[s.curIdx] = StatsBucket{}
		s.curBase += s.bucketTicks
	}
}

func (s *FacilityStats) RecordSeeded(nowTick uint64) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	s.buckets[s.curIdx].Seeded++
}

func (s *FacilityStats) RecordHarvested(nowTick uint64) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	s.buckets[s.curIdx].Harvested++
}

func (s *FacilityStats) RecordDied(nowTick uint64) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	s.buckets[s.curIdx].Died++
}

func (s *FacilityStats) RecordTransition(nowTick uint64) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	s.buckets[s.curIdx].Transitions++
}

func (s *FacilityStats) RecordDenied(nowTick uint64) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	s.buckets[s.curIdx].Denied++
}

func (s *FacilityStats) RecordAlertRaised(nowTick uint64) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	s.buckets[s.curIdx].AlertsRaised++
}

func (s *FacilityStats) RecordAlertCleared(nowTick uint64) {
	if s == nil {
		return
	}
	s.rotate(nowTick)
	s.buckets[s.curIdx].AlertsCleared++
}

func (s *FacilityStats) WindowTicks() uint64 {
	if s == nil {
		return 0
	}
	return s.windowTicks
}

func (s *FacilityStats) Summarize(nowTick uint64) StatsBucket {
	if s == nil {
		return StatsBucket{}
	}
	s.rotate(nowTick)
	var out StatsBucket
	for _, b := range s.buckets {
		out.Seeded += b.Seeded
		out.Harvested += b.Harvested
		out.Died += b.Died
		out.Transitions += b.Transitions
		out.Denied += b.Denied
		out.AlertsRaised += b.AlertsRaised
		out.AlertsCleared += b.AlertsCleared
	}
	return out
}
