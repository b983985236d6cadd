package awe

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsNilReceiverIsNoOp(t *testing.T) {
	var m *Metrics
	m.SetTasksInflight(5)
	m.SetTagSetLen(3)
	m.ObservePhaseDuration("submit", time.Second)
	m.ObserveTaskLatency(time.Second)
	m.IncRestarts()
	m.IncDuplications()
	m.IncInvalidModels()
}

func TestMetricsRecordsValues(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.SetTasksInflight(7)
	m.IncRestarts()
	m.IncRestarts()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var foundInflight, foundRestarts bool
	for _, fam := range families {
		switch fam.GetName() {
		case "awe_tasks_inflight":
			foundInflight = true
			if got := fam.Metric[0].GetGauge().GetValue(); got != 7 {
				t.Fatalf("awe_tasks_inflight = %v, want 7", got)
			}
		case "awe_task_restarts_total":
			foundRestarts = true
			if got := fam.Metric[0].GetCounter().GetValue(); got != 2 {
				t.Fatalf("awe_task_restarts_total = %v, want 2", got)
			}
		}
	}
	if !foundInflight {
		t.Fatal("awe_tasks_inflight metric not registered")
	}
	if !foundRestarts {
		t.Fatal("awe_task_restarts_total metric not registered")
	}
}
