package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memSink struct {
	mu      sync.Mutex
	records []Record
	block   chan struct{}
	closed  bool
}

func (m *memSink) Name() string { return "mem" }

func (m *memSink) Write(ctx context.Context, r Record) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestAsyncDeliversInOrder(t *testing.T) {
	sink := &memSink{}
	a := NewAsync(8, sink)
	a.Report(Record{ProviderID: "openai", Success: false, ErrorKind: "api_key_missing"})
	a.Report(Record{ProviderID: "local", Success: true, UsedFallback: FallbackLocal})
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	if len(sink.records) != 2 {
		t.Fatalf("records = %d", len(sink.records))
	}
	if sink.records[1].UsedFallback != FallbackLocal || sink.records[1].At.IsZero() {
		t.Errorf("record = %+v", sink.records[1])
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
}

func TestAsyncDropsWhenFull(t *testing.T) {
	sink := &memSink{block: make(chan struct{})}
	a := NewAsync(1, sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			a.Report(Record{ProviderID: "p"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked")
	}
	if a.Dropped() == 0 {
		t.Error("expected dropped records")
	}
	close(sink.block)
	_ = a.Close()
}

func TestRedisSink(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	sink, err := NewRedisSink(ctx, RedisConfig{Addr: mr.Addr(), Stream: "test:telemetry"})
	if err != nil {
		t.Fatalf("NewRedisSink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	rec := Record{ProviderID: "anthropic", Success: true, UsedFallback: FallbackProvider, ElapsedMs: 420, InputLength: 1000, OutputLength: 200, At: time.Now()}
	if err := sink.Write(ctx, rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	msgs, err := client.XRange(ctx, "test:telemetry", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d", len(msgs))
	}
	v := msgs[0].Values
	if v["providerId"] != "anthropic" || v["usedFallback"] != "provider" || v["success"] != "true" || v["elapsedMs"] != "420" {
		t.Errorf("values = %v", v)
	}
}

func TestRedisSinkRequiresAddr(t *testing.T) {
	if _, err := NewRedisSink(context.Background(), RedisConfig{}); err == nil {
		t.Error("expected error without address")
	}
}
