package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	samples := []sample{
		{latency: 3 * time.Millisecond, status: 200},
		{latency: time.Millisecond, status: 200},
		{latency: 2 * time.Millisecond, status: 503},
		{err: errors.New("refused")},
	}
	s := summarize(samples, 2*time.Second)

	assert.Equal(t, 4, s.total)
	assert.Equal(t, 2, s.success)
	assert.Equal(t, 2, s.failed)
	assert.Equal(t, 2.0, s.rps)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, s.latencies)
	assert.Equal(t, map[int]int{200: 2, 503: 1}, s.statuses)
	assert.Equal(t, 2*time.Millisecond, s.mean())
}

func TestPercentile(t *testing.T) {
	var samples []sample
	for i := 1; i <= 10; i++ {
		samples = append(samples, sample{latency: time.Duration(i), status: 200})
	}
	s := summarize(samples, time.Second)
	assert.Equal(t, time.Duration(5), s.percentile(50))
	assert.Equal(t, time.Duration(10), s.percentile(99))
	assert.Equal(t, time.Duration(1), s.percentile(0))
	assert.Zero(t, summary{}.percentile(50))
}

func TestPrintListsStatusCodes(t *testing.T) {
	var buf bytes.Buffer
	summarize([]sample{{latency: time.Millisecond, status: 200}}, time.Second).print(&buf)
	assert.Contains(t, buf.String(), "200: 1")
	assert.Contains(t, buf.String(), "P99:")
}
