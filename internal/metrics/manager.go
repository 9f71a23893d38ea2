package metrics

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Manager holds every metric recorded by the process, keyed by
// "topic/function" path (e.g. "llm/openai/summarize").
type Manager struct {
	mu          sync.RWMutex
	timings     map[string]*timing
	counters    map[string]*counter
	gauges      map[string]*gauge
	successFail map[string]*successFail
	outcomes    map[string]*outcome

	active     map[string]time.Time
	keyCounter uint64

	db       *sql.DB
	stopSave chan struct{}
	saveDone chan struct{}
}

var (
	instance *Manager
	once     sync.Once
)

// GetInstance returns the process-wide manager.
func GetInstance() *Manager {
	once.Do(func() {
		instance = newManager()
	})
	return instance
}

func newManager() *Manager {
	return &Manager{
		timings:     make(map[string]*timing),
		counters:    make(map[string]*counter),
		gauges:      make(map[string]*gauge),
		successFail: make(map[string]*successFail),
		outcomes:    make(map[string]*outcome),
		active:      make(map[string]time.Time),
	}
}

func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return topic + "/" + function
}

// StartTiming begins timing and returns a key for EndTiming.
func (m *Manager) StartTiming(topic, function string) string {
	n := atomic.AddUint64(&m.keyCounter, 1)
	key := fmt.Sprintf("%s#%d", buildPath(topic, function), n)

	m.mu.Lock()
	m.active[key] = time.Now()
	m.mu.Unlock()
	return key
}

// EndTiming records the time since the matching StartTiming.
func (m *Manager) EndTiming(key string) {
	m.mu.Lock()
	start, ok := m.active[key]
	delete(m.active, key)
	m.mu.Unlock()
	if !ok {
		return
	}

	path := key
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '#' {
			path = key[:i]
			break
		}
	}
	m.RecordDuration(path, "", time.Since(start))
}

// RecordDuration adds one timing sample.
func (m *Manager) RecordDuration(topic, function string, d time.Duration) {
	path := buildPath(topic, function)

	m.mu.Lock()
	t, ok := m.timings[path]
	if !ok {
		t = &timing{min: d, max: d, samples: make([]time.Duration, 0, maxSamples)}
		m.timings[path] = t
	}
	m.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	t.total += d
	t.last = d
	if d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	if len(t.samples) < maxSamples {
		t.samples = append(t.samples, d)
	} else {
		t.samples[t.next] = d
		t.next = (t.next + 1) % maxSamples
	}
}

// AddCounter adds delta to a counter.
func (m *Manager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	c, ok := m.counters[path]
	if !ok {
		c = &counter{}
		m.counters[path] = c
	}
	m.mu.Unlock()

	c.mu.Lock()
	c.value += delta
	c.mu.Unlock()
}

// SetGauge sets a value that can go up or down.
func (m *Manager) SetGauge(topic, function string, value int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	g, ok := m.gauges[path]
	if !ok {
		g = &gauge{min: value, max: value}
		m.gauges[path] = g
	}
	m.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = value
	if value < g.min {
		g.min = value
	}
	if value > g.max {
		g.max = value
	}
}

func (m *Manager) successFailFor(path string) *successFail {
	m.mu.Lock()
	defer m.mu.Unlock()
	sf, ok := m.successFail[path]
	if !ok {
		sf = &successFail{reasons: make(map[string]int64)}
		m.successFail[path] = sf
	}
	return sf
}

// RecordSuccess counts one success.
func (m *Manager) RecordSuccess(topic, function string) {
	sf := m.successFailFor(buildPath(topic, function))
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.success++
	sf.push(true)
}

// RecordFailure counts one failure, optionally with a reason.
func (m *Manager) RecordFailure(topic, function, reason string) {
	sf := m.successFailFor(buildPath(topic, function))
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.failures++
	if reason != "" {
		sf.reasons[reason]++
	}
	sf.push(false)
}

func (sf *successFail) push(ok bool) {
	sf.recent[sf.next] = ok
	sf.next = (sf.next + 1) % len(sf.recent)
	if sf.size < len(sf.recent) {
		sf.size++
	}
}

// RecordOutcome counts one named outcome.
func (m *Manager) RecordOutcome(topic, function, name string) {
	path := buildPath(topic, function)

	m.mu.Lock()
	o, ok := m.outcomes[path]
	if !ok {
		o = &outcome{counts: make(map[string]int64)}
		m.outcomes[path] = o
	}
	m.mu.Unlock()

	o.mu.Lock()
	o.counts[name]++
	o.total++
	o.last = name
	o.mu.Unlock()
}

// Snapshot returns a copy of every metric sorted by path.
func (m *Manager) Snapshot() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.timings)+len(m.counters)+len(m.gauges)+len(m.successFail)+len(m.outcomes))

	for path, t := range m.timings {
		t.mu.Lock()
		d := TimingData{
			Count:  t.count,
			MinMs:  ms(t.min),
			MaxMs:  ms(t.max),
			LastMs: ms(t.last),
			P95Ms:  ms(percentile(t.samples, 95)),
		}
		if t.count > 0 {
			d.AvgMs = ms(t.total) / float64(t.count)
		}
		t.mu.Unlock()
		out = append(out, Snapshot{Path: path, Kind: KindTiming, Health: timingHealth(d.AvgMs), Data: d})
	}

	for path, c := range m.counters {
		c.mu.Lock()
		d := ValueData{Value: c.value}
		c.mu.Unlock()
		out = append(out, Snapshot{Path: path, Kind: KindCounter, Data: d})
	}

	for path, g := range m.gauges {
		g.mu.Lock()
		d := ValueData{Value: g.value, Min: g.min, Max: g.max}
		g.mu.Unlock()
		out = append(out, Snapshot{Path: path, Kind: KindGauge, Data: d})
	}

	for path, sf := range m.successFail {
		sf.mu.Lock()
		d := SuccessFailData{Success: sf.success, Failures: sf.failures, Reasons: copyCounts(sf.reasons)}
		if total := sf.success + sf.failures; total > 0 {
			d.SuccessRate = float64(sf.success) / float64(total) * 100
		}
		if sf.size > 0 {
			ok := 0
			for i := 0; i < sf.size; i++ {
				if sf.recent[i] {
					ok++
				}
			}
			d.RecentRate = float64(ok) / float64(sf.size) * 100
		}
		sf.mu.Unlock()
		out = append(out, Snapshot{Path: path, Kind: KindSuccessFail, Health: rateHealth(d.RecentRate), Data: d})
	}

	for path, o := range m.outcomes {
		o.mu.Lock()
		d := OutcomeData{Outcomes: copyCounts(o.counts), Total: o.total, Last: o.last}
		o.mu.Unlock()
		out = append(out, Snapshot{Path: path, Kind: KindOutcome, Data: d})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Reset clears every metric. Persistence is left as is.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings = make(map[string]*timing)
	m.counters = make(map[string]*counter)
	m.gauges = make(map[string]*gauge)
	m.successFail = make(map[string]*successFail)
	m.outcomes = make(map[string]*outcome)
	m.active = make(map[string]time.Time)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func copyCounts(in map[string]int64) map[string]int64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Provider calls are slow by nature; the thresholds are tuned for that.
func timingHealth(avgMs float64) Health {
	switch {
	case avgMs < 30_000:
		return HealthGood
	case avgMs < 120_000:
		return HealthWarning
	default:
		return HealthCritical
	}
}

func rateHealth(rate float64) Health {
	switch {
	case rate >= 95:
		return HealthGood
	case rate >= 80:
		return HealthWarning
	default:
		return HealthCritical
	}
}
