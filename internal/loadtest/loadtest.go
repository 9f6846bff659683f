// Package loadtest exercises the shipment store under concurrent access.
//
// It simulates the read pattern of a presentation layer (many readers listing
// shipments) while the engine replaces the whole table with fresh snapshots,
// and checks that readers only ever observe a complete snapshot: never an
// empty table and never a mix of two snapshots.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
	"github.com/fieldagentpro/fieldsync/internal/store"
)

// TestDatabase represents a populated test database for load testing.
type TestDatabase struct {
	DB             *store.DB
	OrderIDs       []int64
	TotalShipments int
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// ReplaceReport is the outcome of RunReplaceUnderLoad.
type ReplaceReport struct {
	Reads    *LatencyStats
	Replaces *LatencyStats

	// EmptyReads counts reads that saw an empty table. Snapshots are never
	// empty, so any non-zero value means a reader saw a replace in progress.
	EmptyReads int

	// TornReads counts reads whose size matched neither snapshot.
	TornReads int
}

// Consistent reports whether every read observed a complete snapshot.
func (r *ReplaceReport) Consistent() bool {
	return r.EmptyReads == 0 && r.TornReads == 0
}

// CreateTestDatabase creates a new test database holding numShipments
// generated shipments.
func CreateTestDatabase(dbPath string, numShipments int) (*TestDatabase, error) {
	if numShipments <= 0 {
		return nil, fmt.Errorf("numShipments must be positive (got %d)", numShipments)
	}

	database, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Optimize connection pool for high concurrency testing
	database.RawDB().SetMaxOpenConns(150)
	database.RawDB().SetMaxIdleConns(50)
	database.RawDB().SetConnMaxLifetime(10 * time.Minute)

	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	rows := GenerateShipments(numShipments, 1)
	if _, err := database.ReplaceAllShipments(context.Background(), rows); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to insert shipments: %w", err)
	}

	td := &TestDatabase{
		DB:             database,
		OrderIDs:       make([]int64, 0, numShipments),
		TotalShipments: numShipments,
	}
	for _, s := range rows {
		td.OrderIDs = append(td.OrderIDs, s.OrderID)
	}
	return td, nil
}

// Close closes the test database connection.
func (td *TestDatabase) Close() error {
	if td.DB != nil {
		return td.DB.Close()
	}
	return nil
}

// RunConcurrentReads simulates numReaders concurrent readers listing every
// shipment, readsPerReader times each.
func (td *TestDatabase) RunConcurrentReads(numReaders, readsPerReader int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numReaders)
	errorsChan := make(chan error, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, readsPerReader)
			ctx := context.Background()

			for j := 0; j < readsPerReader; j++ {
				start := time.Now()
				_, err := td.DB.ListActiveContext(ctx)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("reader %d query %d failed: %w", readerID, j, err)
					return
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	errorCount := 0
	for range errorsChan {
		errorCount++
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}
	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no successful queries completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// RunReplaceUnderLoad replaces the table replaces times, alternating between
// two snapshots of different sizes, while numReaders readers list shipments
// until the writer is done.
func (td *TestDatabase) RunReplaceUnderLoad(ctx context.Context, numReaders, replaces int) (*ReplaceReport, error) {
	small := GenerateShipments(td.TotalShipments, 1)
	large := GenerateShipments(td.TotalShipments+td.TotalShipments/2+1, 2)
	valid := map[int]bool{len(small): true, len(large): true}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		readDurs    []time.Duration
		readErrors  int
		emptyReads  int
		tornReads   int
		firstErr    error
		replaceDurs = make([]time.Duration, 0, replaces)
	)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()

			var durs []time.Duration
			empty, torn, errs := 0, 0, 0
			for ctx.Err() == nil {
				start := time.Now()
				rows, err := td.DB.ListActiveContext(ctx)
				durs = append(durs, time.Since(start))

				switch {
				case err != nil && ctx.Err() == nil:
					errs++
				case err != nil:
				case len(rows) == 0:
					empty++
				case !valid[len(rows)]:
					torn++
				}
			}

			mu.Lock()
			readDurs = append(readDurs, durs...)
			emptyReads += empty
			tornReads += torn
			readErrors += errs
			mu.Unlock()
		}(i)
	}

	for i := 0; i < replaces; i++ {
		rows := small
		if i%2 == 0 {
			rows = large
		}
		start := time.Now()
		_, err := td.DB.ReplaceAllShipments(context.WithoutCancel(ctx), rows)
		replaceDurs = append(replaceDurs, time.Since(start))
		if err != nil {
			firstErr = fmt.Errorf("replace %d failed: %w", i, err)
			break
		}
	}

	cancel()
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if len(readDurs) == 0 {
		return nil, fmt.Errorf("no reads completed")
	}

	report := &ReplaceReport{
		Reads:      computeLatencyStats(readDurs),
		Replaces:   computeLatencyStats(replaceDurs),
		EmptyReads: emptyReads,
		TornReads:  tornReads,
	}
	report.Reads.Errors = readErrors
	return report, nil
}

// GenerateShipments returns count valid shipments spread over a week, with a
// deterministic mix of statuses. Different variants yield different order IDs.
func GenerateShipments(count int, variant int64) []shipment.Shipment {
	rng := rand.New(rand.NewSource(42 + variant))
	statuses := []string{
		shipment.StatusPending, shipment.StatusPending, shipment.StatusPending,
		shipment.StatusActive, shipment.StatusCompleted,
	}
	companies := []string{"Northwind", "Contoso", "Globex", "Initech", "Umbrella"}
	base := time.Date(2026, 1, 19, 8, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	out := make([]shipment.Shipment, count)
	for i := 0; i < count; i++ {
		id := variant*1_000_000 + int64(i) + 1
		when := base.Add(time.Duration(rng.Intn(7*24*4)) * 15 * time.Minute)

		s := shipment.Shipment{
			OrderID:         id,
			Status:          statuses[rng.Intn(len(statuses))],
			CustomerName:    fmt.Sprintf("Customer %d", i),
			ClientCompany:   companies[i%len(companies)],
			DeliveryAddress: fmt.Sprintf("%d Main St", 100+i),
			Notes:           "loadtest",
			DeliveryDate:    when.Format("2006-01-02T15:04:05.000Z"),
			TaskType:        shipment.TaskTypeDelivery,
			Latitude:        40 + rng.Float64(),
			Longitude:       -74 + rng.Float64(),
			UpdatedAt:       now,
		}
		if i%10 == 9 {
			s.TaskType = shipment.TaskTypeBreak
			s.Status = shipment.StatusBreak
			s.Latitude, s.Longitude = 0, 0
		}
		out[i] = s
	}
	return out
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// PrintStats formats latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

// GetStats returns statistics about the test database.
func (td *TestDatabase) GetStats(ctx context.Context) (map[string]interface{}, error) {
	st, err := td.DB.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"total_shipments": td.TotalShipments,
		"stored":          st.Shipments,
		"by_status":       st.ByStatus,
		"size_bytes":      st.SizeBytes,
	}, nil
}
