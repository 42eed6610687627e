package main

import (
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"time"
)

type sample struct {
	latency time.Duration
	status  int
	err     error
}

type summary struct {
	total, success, failed int
	rps                    float64
	latencies              []time.Duration // sorted, transport errors excluded
	statuses               map[int]int
}

func summarize(samples []sample, d time.Duration) summary {
	s := summary{total: len(samples), statuses: map[int]int{}}
	for _, smp := range samples {
		if smp.err != nil {
			s.failed++
			continue
		}
		if smp.status >= 200 && smp.status < 300 {
			s.success++
		} else {
			s.failed++
		}
		s.latencies = append(s.latencies, smp.latency)
		s.statuses[smp.status]++
	}
	slices.Sort(s.latencies)
	if d > 0 {
		s.rps = float64(s.total) / d.Seconds()
	}
	return s
}

func (s summary) mean() time.Duration {
	if len(s.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range s.latencies {
		sum += l
	}
	return sum / time.Duration(len(s.latencies))
}

func (s summary) stddev() time.Duration {
	if len(s.latencies) == 0 {
		return 0
	}
	avg := float64(s.mean())
	var sq float64
	for _, l := range s.latencies {
		sq += (float64(l) - avg) * (float64(l) - avg)
	}
	return time.Duration(math.Sqrt(sq / float64(len(s.latencies))))
}

// percentile uses the nearest-rank method.
func (s summary) percentile(p float64) time.Duration {
	n := len(s.latencies)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	return s.latencies[min(max(idx, 0), n-1)]
}

func (s summary) print(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success)
	fmt.Fprintf(w, "Errors:          %d\n", s.failed)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.failed)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", s.rps)
	}

	if n := len(s.latencies); n > 0 {
		fmt.Fprintln(w, "\n=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", s.latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", s.mean())
		fmt.Fprintf(w, "P50:    %s\n", s.percentile(50))
		fmt.Fprintf(w, "P90:    %s\n", s.percentile(90))
		fmt.Fprintf(w, "P99:    %s\n", s.percentile(99))
		fmt.Fprintf(w, "Max:    %s\n", s.latencies[n-1])
		fmt.Fprintf(w, "StdDev: %s\n", s.stddev())
	}

	fmt.Fprintln(w, "\n=== Status Codes ===")
	for _, code := range slices.Sorted(maps.Keys(s.statuses)) {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statuses[code])
	}
}
