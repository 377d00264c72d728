package probe

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Summary aggregates the probes of a run
type Summary struct {
	Total   int
	Success int
	Errors  int
	Waiting int
	Updated int // Responses served by relaunched processes

	P50 time.Duration
	P95 time.Duration
	Max time.Duration
}

// Summarize computes counts and latency percentiles over terminal probes
func Summarize(snaps []Snapshot) Summary {
	s := Summary{Total: len(snaps)}
	durations := make([]time.Duration, 0, len(snaps))

	for _, snap := range snaps {
		switch snap.State {
		case StateWaiting:
			s.Waiting++
			continue
		case StateSuccess:
			s.Success++
			if snap.Updated() {
				s.Updated++
			}
		case StateError:
			s.Errors++
		}
		durations = append(durations, snap.Elapsed)
	}

	sort.Slice(durations, func(i, j int) bool {
		return durations[i] < durations[j]
	})
	s.P50 = percentile(durations, 50)
	s.P95 = percentile(durations, 95)
	if len(durations) > 0 {
		s.Max = durations[len(durations)-1]
	}
	return s
}

// Complete reports whether no probe is still waiting
func (s Summary) Complete() bool {
	return s.Waiting == 0
}

func (s Summary) String() string {
	return fmt.Sprintf("success %d  error %d  waiting %d  p50 %dms  p95 %dms  max %dms  updated %d",
		s.Success, s.Errors, s.Waiting,
		s.P50.Milliseconds(), s.P95.Milliseconds(), s.Max.Milliseconds(),
		s.Updated)
}

// percentile interpolates linearly between the closest ranks of sorted
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return time.Duration(math.Round(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight))
}
