// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/animedex/internal/metrics"
)

// countingService counts its starts and fails the first failures of them.
type countingService struct {
	name     string
	failures int32
	starts   atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failures {
		return fmt.Errorf("%s: start %d failed", s.name, n)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	t.Parallel()

	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})
	if err != nil {
		t.Fatalf("NewSupervisorTree() error = %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("Root() = nil")
	}

	want := DefaultTreeConfig()
	want.FailureBackoff = time.Second
	if tree.config != want {
		t.Errorf("config = %+v, want %+v", tree.config, want)
	}
}

func TestSupervisorTree_StartsEveryLayer(t *testing.T) {
	t.Parallel()

	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewSupervisorTree() error = %v", err)
	}
	data := &countingService{name: "pipeline"}
	messaging := &countingService{name: "ingest"}
	api := &countingService{name: "http"}
	tree.AddDataService(data)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if data.starts.Load() > 0 && messaging.starts.Load() > 0 && api.starts.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	for _, svc := range []*countingService{data, messaging, api} {
		if svc.starts.Load() < 1 {
			t.Errorf("%s was not started", svc.name)
		}
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not shut down")
	}
}

func TestSupervisorTree_RestartsFailingService(t *testing.T) {
	t.Parallel()

	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("NewSupervisorTree() error = %v", err)
	}
	flaky := &countingService{name: "flaky-ingest", failures: 2}
	stable := &countingService{name: "stable-http"}
	tree.AddMessagingService(flaky)
	tree.AddAPIService(stable)

	before := testutil.ToFloat64(metrics.ServiceRestartsTotal.WithLabelValues("flaky-ingest"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	for flaky.starts.Load() < 3 && ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-errCh

	if got := flaky.starts.Load(); got < 3 {
		t.Errorf("flaky starts = %d, want at least 3", got)
	}
	if stable.starts.Load() != 1 {
		t.Errorf("stable starts = %d, want 1", stable.starts.Load())
	}
	restarts := testutil.ToFloat64(metrics.ServiceRestartsTotal.WithLabelValues("flaky-ingest")) - before
	if restarts < 2 {
		t.Errorf("recorded restarts = %v, want at least 2", restarts)
	}
}

func TestRestartMetricsHook(t *testing.T) {
	t.Parallel()

	var forwarded int
	hook := restartMetricsHook(func(suture.Event) { forwarded++ })

	before := testutil.ToFloat64(metrics.ServiceRestartsTotal.WithLabelValues("hook-test"))
	hook(suture.EventServiceTerminate{ServiceName: "hook-test"})
	hook(suture.EventServicePanic{ServiceName: "hook-test"})
	hook(suture.EventBackoff{SupervisorName: "data-layer"})

	if got := testutil.ToFloat64(metrics.ServiceRestartsTotal.WithLabelValues("hook-test")) - before; got != 2 {
		t.Errorf("restarts = %v, want 2", got)
	}
	if forwarded != 3 {
		t.Errorf("forwarded events = %d, want 3", forwarded)
	}

	// A nil next hook is tolerated.
	restartMetricsHook(nil)(suture.EventServiceTerminate{ServiceName: "hook-test"})
}
