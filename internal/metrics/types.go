package metrics

import (
	"sync"
	"time"
)

// Kind identifies what a metric path records.
type Kind string

const (
	KindTiming      Kind = "timing"
	KindCounter     Kind = "counter"
	KindGauge       Kind = "gauge"
	KindSuccessFail Kind = "success_fail"
	KindOutcome     Kind = "outcome"
)

// Health is a traffic-light rating shown next to a metric.
type Health int

const (
	HealthGood Health = iota
	HealthWarning
	HealthCritical
)

const maxSamples = 500

type timing struct {
	mu      sync.Mutex
	count   int64
	total   time.Duration
	min     time.Duration
	max     time.Duration
	last    time.Duration
	samples []time.Duration // ring buffer for percentiles
	next    int
}

type counter struct {
	mu    sync.Mutex
	value int64
}

type gauge struct {
	mu    sync.Mutex
	value int64
	min   int64
	max   int64
}

type successFail struct {
	mu       sync.Mutex
	success  int64
	failures int64
	reasons  map[string]int64
	recent   [100]bool // sliding window of the last 100 results
	next     int
	size     int
}

type outcome struct {
	mu     sync.Mutex
	counts map[string]int64
	total  int64
	last   string
}

// Snapshot is a point-in-time copy of one metric, as served by the API.
type Snapshot struct {
	Path   string `json:"path"`
	Kind   Kind   `json:"kind"`
	Health Health `json:"health"`
	Data   any    `json:"data"`
}

// TimingData summarizes a timing metric.
type TimingData struct {
	Count  int64   `json:"count"`
	AvgMs  float64 `json:"avgMs"`
	MinMs  float64 `json:"minMs"`
	MaxMs  float64 `json:"maxMs"`
	LastMs float64 `json:"lastMs"`
	P95Ms  float64 `json:"p95Ms,omitempty"`
}

// ValueData holds a counter or gauge.
type ValueData struct {
	Value int64 `json:"value"`
	Min   int64 `json:"min,omitempty"`
	Max   int64 `json:"max,omitempty"`
}

// SuccessFailData summarizes a success/failure metric.
type SuccessFailData struct {
	Success     int64            `json:"success"`
	Failures    int64            `json:"failures"`
	SuccessRate float64          `json:"successRate"`
	RecentRate  float64          `json:"recentRate"`
	Reasons     map[string]int64 `json:"reasons,omitempty"`
}

// OutcomeData summarizes an outcome metric.
type OutcomeData struct {
	Outcomes map[string]int64 `json:"outcomes"`
	Total    int64            `json:"total"`
	Last     string           `json:"last,omitempty"`
}
