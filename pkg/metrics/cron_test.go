package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.Observe("abandoned_carts", 250*time.Millisecond, nil)
	m.Observe("abandoned_carts", 100*time.Millisecond, errors.New("db down"))
	m.Observe("", time.Millisecond, nil)

	g := gather(t, reg)
	for result, want := range map[string]float64{"success": 1, "failure": 1} {
		got, ok := g.sum("storefront_cron_job_runs_total", map[string]string{"job": "abandoned_carts", "result": result})
		if !ok || got != want {
			t.Fatalf("%s runs = %v (found %v), want %v", result, got, ok, want)
		}
	}
	if got, _ := g.sum("storefront_cron_job_runs_total", map[string]string{"job": "unknown"}); got != 1 {
		t.Fatalf("blank job name should count as unknown, got %v", got)
	}
	if got, ok := g.sum("storefront_cron_job_duration_seconds", map[string]string{"job": "abandoned_carts"}); !ok || got < 0.35 {
		t.Fatalf("expected both durations observed, got %v", got)
	}
	if _, ok := g.sum("storefront_cron_job_last_success_timestamp_seconds", map[string]string{"job": "abandoned_carts"}); !ok {
		t.Fatal("expected last success gauge")
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.Observe("job", time.Second, nil)
	NewCronJobMetrics(nil).Observe("job", time.Second, nil)
}
