package metrics

import (
	"path/filepath"
	"testing"
	"time"
)

func find(snaps []Snapshot, path string) (Snapshot, bool) {
	for _, s := range snaps {
		if s.Path == path {
			return s, true
		}
	}
	return Snapshot{}, false
}

func TestSnapshotKinds(t *testing.T) {
	m := newManager()
	m.RecordDuration("llm/openai", "summarize", 200*time.Millisecond)
	m.RecordDuration("llm/openai", "summarize", 400*time.Millisecond)
	m.AddCounter("llm/openai", "input_tokens", 120)
	m.AddCounter("llm/openai", "input_tokens", 30)
	m.SetGauge("operations", "active", 3)
	m.SetGauge("operations", "active", 1)
	m.RecordSuccess("llm/openai", "summarize")
	m.RecordFailure("llm/openai", "summarize", "quota_exceeded")
	m.RecordOutcome("telemetry/summarize", "fallback", "provider")
	m.RecordOutcome("telemetry/summarize", "fallback", "none")
	m.RecordOutcome("telemetry/summarize", "fallback", "none")

	snaps := m.Snapshot()
	for i := 1; i < len(snaps); i++ {
		if snaps[i-1].Path > snaps[i].Path {
			t.Fatalf("snapshots not sorted: %s before %s", snaps[i-1].Path, snaps[i].Path)
		}
	}

	tests := []struct {
		path  string
		kind  Kind
		check func(any) bool
	}{
		{"llm/openai/summarize", KindTiming, func(d any) bool {
			td := d.(TimingData)
			return td.Count == 2 && td.AvgMs == 300 && td.MinMs == 200 && td.MaxMs == 400
		}},
		{"llm/openai/input_tokens", KindCounter, func(d any) bool { return d.(ValueData).Value == 150 }},
		{"operations/active", KindGauge, func(d any) bool {
			v := d.(ValueData)
			return v.Value == 1 && v.Min == 1 && v.Max == 3
		}},
		{"telemetry/summarize/fallback", KindOutcome, func(d any) bool {
			o := d.(OutcomeData)
			return o.Total == 3 && o.Outcomes["none"] == 2 && o.Last == "none"
		}},
	}
	for _, tt := range tests {
		var s Snapshot
		var ok bool
		for _, c := range snaps {
			if c.Path == tt.path && c.Kind == tt.kind {
				s, ok = c, true
			}
		}
		if !ok {
			t.Errorf("%s: missing %s snapshot", tt.path, tt.kind)
			continue
		}
		if !tt.check(s.Data) {
			t.Errorf("%s: unexpected data %+v", tt.path, s.Data)
		}
	}

	for _, s := range snaps {
		if s.Kind != KindSuccessFail {
			continue
		}
		d := s.Data.(SuccessFailData)
		if d.Success != 1 || d.Failures != 1 || d.SuccessRate != 50 || d.Reasons["quota_exceeded"] != 1 {
			t.Errorf("success/fail = %+v", d)
		}
		if s.Health != HealthCritical {
			t.Errorf("health = %d, want critical", s.Health)
		}
	}
}

func TestTimerKeys(t *testing.T) {
	m := newManager()
	a := m.StartTiming("stt/openai", "transcribe")
	b := m.StartTiming("stt/openai", "transcribe")
	if a == b {
		t.Fatal("timer keys collide")
	}
	m.EndTiming(a)
	m.EndTiming(b)
	m.EndTiming(b)

	s, ok := find(m.Snapshot(), "stt/openai/transcribe")
	if !ok || s.Data.(TimingData).Count != 2 {
		t.Fatalf("timing = %+v", s)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metrics.db")

	m := newManager()
	if err := m.Open(dbPath); err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.AddCounter("operations", "started", 5)
	m.RecordFailure("stt/groq", "transcribe", "network")
	m.SetGauge("operations", "active", 2)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := newManager()
	if err := reopened.Open(dbPath); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	snaps := reopened.Snapshot()
	if s, ok := find(snaps, "operations/started"); !ok || s.Data.(ValueData).Value != 5 {
		t.Errorf("counter not restored: %+v", s)
	}
	if s, ok := find(snaps, "stt/groq/transcribe"); !ok || s.Data.(SuccessFailData).Reasons["network"] != 1 {
		t.Errorf("failure reasons not restored: %+v", s)
	}
	if _, ok := find(snaps, "operations/active"); ok {
		t.Error("gauge should not be restored")
	}
}

func TestCloseWithoutOpen(t *testing.T) {
	if err := newManager().Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
