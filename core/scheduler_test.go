package core

import (
	"context"
	"sync"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestJobRunnerSkipsWhileBusy(t *testing.T) {
	m := NewMetrics()
	started := make(chan struct{})
	release := make(chan struct{})
	var runs int

	j := &jobRunner{
		name:    "test_job",
		metrics: m,
		log:     testLogger(),
		run: func(ctx context.Context) {
			runs++
			close(started)
			<-release
		},
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		j.tick(context.Background())
	}()

	<-started
	j.tick(context.Background()) // should be skipped, the first tick is still running

	close(release)
	wg.Wait()

	if runs != 1 {
		t.Fatalf("expected exactly 1 run to have started, got %d", runs)
	}

	var metric dto.Metric
	if err := m.SchedulerSkips.WithLabelValues("test_job").Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 recorded skip, got %v", got)
	}
}

func TestJobRunnerRunsAgainAfterBusyClears(t *testing.T) {
	m := NewMetrics()
	var runs int
	j := &jobRunner{
		name:    "another_job",
		metrics: m,
		log:     testLogger(),
		run:     func(ctx context.Context) { runs++ },
	}

	j.tick(context.Background())
	j.tick(context.Background())

	if runs != 2 {
		t.Fatalf("expected both sequential ticks to run, got %d runs", runs)
	}
	if j.busy.Load() {
		t.Fatal("busy flag should be cleared after a run completes")
	}
}
