package prometheus

import (
	"testing"
	"time"

	"github.com/marmos91/gorpcd/pkg/metrics"
)

func TestNewRuntimeMetrics_NilWhenDisabled(t *testing.T) {
	metrics.Reset()

	if got := NewRuntimeMetrics(); got != nil {
		t.Fatalf("expected nil RuntimeMetrics when metrics disabled, got %v", got)
	}
}

func TestNewRuntimeMetrics_RecordsWithoutPanicking(t *testing.T) {
	metrics.InitRegistry()
	defer metrics.Reset()

	m := NewRuntimeMetrics()
	if m == nil {
		t.Fatal("expected non-nil RuntimeMetrics when metrics enabled")
	}

	m.RecordFrame("3", 2*time.Millisecond, "")
	m.RecordBytesTransferred("read", 128)
	m.RecordBytesTransferred("write", 64)
	m.SetConnectionCount(2)
	m.RecordConnectionAccepted()
	m.RecordConnectionClosed()
	m.SetPendingListDepth(1)
	m.SetWorkingListDepth(1)
	m.SetWorkerUtilization(0.5)
	m.RecordClientRoundTrip("3", 3*time.Millisecond, false)
	m.RecordClientRoundTrip("3", 30*time.Second, true)
}
