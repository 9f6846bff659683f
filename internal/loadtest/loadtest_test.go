package loadtest

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestCreateTestDatabase verifies that we can create a test database with the expected properties.
func TestCreateTestDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	td, err := CreateTestDatabase(dbPath, 100)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer td.Close()

	if len(td.OrderIDs) != 100 {
		t.Errorf("Expected 100 order IDs, got %d", len(td.OrderIDs))
	}

	stats, err := td.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats["stored"] != 100 {
		t.Errorf("Expected 100 stored shipments, got %v", stats["stored"])
	}
	t.Logf("Database stats: %+v", stats)
}

func TestCreateTestDatabase_Invalid(t *testing.T) {
	if _, err := CreateTestDatabase(filepath.Join(t.TempDir(), "test.db"), 0); err == nil {
		t.Fatal("Expected error for zero shipments")
	}
}

func TestGenerateShipments(t *testing.T) {
	a := GenerateShipments(50, 1)
	b := GenerateShipments(50, 1)
	c := GenerateShipments(50, 2)

	seen := make(map[int64]bool)
	for i := range a {
		if err := a[i].Validate(); err != nil {
			t.Fatalf("shipment %d invalid: %v", i, err)
		}
		if a[i].OrderID != b[i].OrderID || a[i].DeliveryDate != b[i].DeliveryDate {
			t.Fatalf("Expected deterministic output at %d", i)
		}
		seen[a[i].OrderID] = true
	}
	for _, s := range c {
		if seen[s.OrderID] {
			t.Fatalf("Variants share order ID %d", s.OrderID)
		}
	}
}

// TestConcurrentReads_Small verifies basic concurrent query functionality.
func TestConcurrentReads_Small(t *testing.T) {
	td, err := CreateTestDatabase(filepath.Join(t.TempDir(), "test.db"), 100)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer td.Close()

	// Run 10 concurrent readers, 5 queries each
	stats, err := td.RunConcurrentReads(10, 5)
	if err != nil {
		t.Fatalf("Concurrent reads failed: %v", err)
	}

	if stats.Errors > 0 {
		t.Errorf("Got %d errors during queries", stats.Errors)
	}
	if stats.TotalQueries != 50 {
		t.Errorf("Expected 50 total queries, got %d", stats.TotalQueries)
	}
	if stats.Min > stats.P50 || stats.P50 > stats.P99 || stats.P99 > stats.Max {
		t.Errorf("Percentiles out of order: %+v", stats)
	}

	var buf bytes.Buffer
	stats.PrintStats(&buf)
	if !strings.Contains(buf.String(), "Total Queries: 50") {
		t.Errorf("Unexpected stats output:\n%s", buf.String())
	}
}

// TestReplaceUnderLoad checks that readers never see an empty or partial
// table while snapshots are being replaced.
func TestReplaceUnderLoad(t *testing.T) {
	td, err := CreateTestDatabase(filepath.Join(t.TempDir(), "test.db"), 200)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer td.Close()

	report, err := td.RunReplaceUnderLoad(context.Background(), 8, 20)
	if err != nil {
		t.Fatalf("RunReplaceUnderLoad() failed: %v", err)
	}

	if !report.Consistent() {
		t.Errorf("Readers saw inconsistent snapshots: empty=%d torn=%d", report.EmptyReads, report.TornReads)
	}
	if report.Reads.Errors > 0 {
		t.Errorf("Got %d read errors", report.Reads.Errors)
	}
	if report.Replaces.TotalQueries != 20 {
		t.Errorf("Expected 20 replaces, got %d", report.Replaces.TotalQueries)
	}

	// 20 replaces alternate large, small, ...; the last one is small.
	n, err := td.DB.GetShipmentCountContext(context.Background())
	if err != nil {
		t.Fatalf("GetShipmentCountContext() failed: %v", err)
	}
	if n != 200 {
		t.Errorf("Expected 200 shipments after final replace, got %d", n)
	}
}

func TestComputeLatencyStats(t *testing.T) {
	durs := make([]time.Duration, 100)
	for i := range durs {
		durs[i] = time.Duration(100-i) * time.Millisecond
	}

	stats := computeLatencyStats(durs)
	if stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("Unexpected min/max: %v/%v", stats.Min, stats.Max)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("Expected P50 51ms, got %v", stats.P50)
	}
	if stats.P99 != 100*time.Millisecond {
		t.Errorf("Expected P99 100ms, got %v", stats.P99)
	}

	if empty := computeLatencyStats(nil); empty.TotalQueries != 0 {
		t.Errorf("Expected empty stats, got %+v", empty)
	}
}

// TestStressReplace runs a longer replace loop with more readers.
func TestStressReplace(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	td, err := CreateTestDatabase(filepath.Join(t.TempDir(), "test.db"), 1000)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer td.Close()

	start := time.Now()
	report, err := td.RunReplaceUnderLoad(context.Background(), 50, 50)
	if err != nil {
		t.Fatalf("RunReplaceUnderLoad() failed: %v", err)
	}
	t.Logf("%d reads, %d replaces in %v (replace p95 %v)",
		report.Reads.TotalQueries, report.Replaces.TotalQueries, time.Since(start), report.Replaces.P95)

	if !report.Consistent() {
		t.Errorf("Readers saw inconsistent snapshots: empty=%d torn=%d", report.EmptyReads, report.TornReads)
	}
}
