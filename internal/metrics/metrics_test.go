package metrics_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MY221B/bird-download/internal/metrics"
	"github.com/MY221B/bird-download/internal/report"
)

func TestWriteTextfile(t *testing.T) {
	run := metrics.New()
	run.ObserveFetch(nil, 120*time.Millisecond)
	run.ObserveFetch(errors.New("boom"), time.Second)

	start := time.Unix(1700000000, 0)
	b := &report.Builder{RunID: "r", StartedAt: start}
	b.AddLocation(report.Location{ID: "olympic", Status: report.Status(30, 10), Species: 30, New: 3})
	run.ObserveReport(b.Build(start.Add(90 * time.Second)))

	path := filepath.Join(t.TempDir(), "textfile", "birdsync.prom")
	if err := run.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`birdsync_locations{outcome="updated"} 1`,
		`birdsync_location_species{location="olympic"} 30`,
		`birdsync_fetch_requests_total{outcome="error"} 1`,
		`birdsync_run_duration_seconds 90`,
		`birdsync_last_success_timestamp_seconds 1.70000009e+09`,
		`birdsync_registry_new_species 3`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestWriteTextfileEmptyPathIsNoop(t *testing.T) {
	if err := metrics.New().WriteTextfile(""); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}
