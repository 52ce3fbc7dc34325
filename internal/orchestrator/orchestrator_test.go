package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"pulsefeed/internal/broker"
	"pulsefeed/internal/config"
	"pulsefeed/internal/logging"
	"pulsefeed/internal/types"
)

// stubSource records Consume calls and blocks until cancellation, like a real
// consumer waiting for messages.
type stubSource struct {
	mu         sync.Mutex
	partitions int
	consumed   map[string][]int
}

func newStubSource(partitions int) *stubSource {
	return &stubSource{partitions: partitions, consumed: make(map[string][]int)}
}

func (s *stubSource) Partitions() int { return s.partitions }

func (s *stubSource) Consume(ctx context.Context, level string, partition int, _ string, _ bool, _ broker.Handler) error {
	s.mu.Lock()
	s.consumed[level] = append(s.consumed[level], partition)
	s.mu.Unlock()
	<-ctx.Done()
	return nil
}

func newTestOrchestrator(source ConsumerSource, engine *stubAdmitter) *Orchestrator {
	f := newFixture()
	if engine != nil {
		f.pipeline.engine = engine
	}
	groups := GroupsFromConfig(config.BrokerConfig{
		CriticalConcurrency: 8,
		HighConcurrency:     4,
		LowConcurrency:      2,
	})
	clock := &mockClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(source, f.pipeline, groups, 10*time.Millisecond, clock, logging.NewNop())
}

func TestGroupsFromConfig(t *testing.T) {
	groups := GroupsFromConfig(config.BrokerConfig{
		CriticalConcurrency: 8,
		HighConcurrency:     4,
		LowConcurrency:      2,
	})
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0].Level != broker.LevelCritical || !groups[0].DeliverAll {
		t.Error("critical group must replay backlog")
	}
	if groups[1].DeliverAll || groups[2].DeliverAll {
		t.Error("only the critical group replays backlog")
	}
	if groups[0].Concurrency <= groups[1].Concurrency || groups[1].Concurrency <= groups[2].Concurrency {
		t.Error("concurrency must decrease with priority level")
	}
}

func TestRun_ConsumesEveryPartitionPerGroup(t *testing.T) {
	source := newStubSource(4)
	o := newTestOrchestrator(source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Wait for all 3 groups x 4 partitions to subscribe.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		source.mu.Lock()
		total := len(source.consumed[broker.LevelCritical]) +
			len(source.consumed[broker.LevelHigh]) +
			len(source.consumed[broker.LevelLow])
		source.mu.Unlock()
		if total == 12 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("cancelled run must return nil, got %v", err)
	}
	for _, level := range []string{broker.LevelCritical, broker.LevelHigh, broker.LevelLow} {
		if got := len(source.consumed[level]); got != 4 {
			t.Errorf("group %s consumed %d partitions, want 4", level, got)
		}
	}
}

func TestRun_FlushLoopEmitsWindows(t *testing.T) {
	source := newStubSource(1)
	engine := &stubAdmitter{
		windows: []*types.AggregatedData{
			{
				RecipientID: "u1",
				Type:        types.EventLike,
				ActorIDs:    []string{"a1", "a2", "a3"},
				ActorNames:  []string{"Alice", "Bob", "Cara"},
				Count:       3,
				Priority:    types.PriorityCritical,
				Message:     "Alice and 2 others liked your post",
			},
		},
	}
	o := newTestOrchestrator(source, engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Give the 10ms flush interval a few ticks.
	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
