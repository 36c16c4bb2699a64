package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/export"
	"rfm-dashboard/internal/ledger"
	"rfm-dashboard/internal/models"
)

const testLedger = `InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country,Category,Rating
I1,S1,Mug,1,2023-06-25,100,C1,UK,Home,4
I2,S2,Lamp,1,2023-06-27,200,C1,UK,Home,5
I3,S3,Robot,1,2023-06-29,300,C1,UK,Toys,
I4,S1,Mug,1,2022-06-30,10,C2,France,Home,3
I5,S4,Book,2,2023-01-15,5,,France,Books,4
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newLoaded(t *testing.T, opts Options) (*Analytics, string) {
	t.Helper()
	path := createTempCSV(t, testLedger)
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	a := NewAnalytics(opts)
	if err := a.Load(context.Background(), ledger.NewCSVSource(path)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return a, path
}

func TestNewAnalytics(t *testing.T) {
	a := NewAnalytics(Options{})
	if a == nil {
		t.Fatal("NewAnalytics() returned nil")
	}
	if a.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
	if a.Reloading() {
		t.Error("new service should not be reloading")
	}
}

func TestAnalytics_NotLoaded(t *testing.T) {
	a := NewAnalytics(Options{Logger: quietLogger()})

	if _, err := a.Aggregates(models.FilterSpec{}); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Aggregates() error = %v, want ErrNotLoaded", err)
	}
	if _, err := a.RFMTable(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("RFMTable() error = %v, want ErrNotLoaded", err)
	}
	if _, err := a.SegmentCounts(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("SegmentCounts() error = %v, want ErrNotLoaded", err)
	}
	if _, err := a.Quality(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Quality() error = %v, want ErrNotLoaded", err)
	}
	if err := a.Reload(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Reload() error = %v, want ErrNotLoaded", err)
	}
	if stats := a.Stats(); stats["loaded"] != false {
		t.Errorf("Stats() = %v", stats)
	}
}

func TestAnalytics_Load(t *testing.T) {
	a, _ := newLoaded(t, Options{})

	table, err := a.RFMTable()
	if err != nil {
		t.Fatalf("RFMTable() error = %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(table))
	}
	c1, c2 := table[0], table[1]
	if c1.MScore != 4 || c2.MScore != 1 || c1.RScore <= c2.RScore {
		t.Errorf("unexpected scores C1=%s C2=%s", c1.RFMCode, c2.RFMCode)
	}

	res, err := a.Aggregates(models.FilterSpec{})
	if err != nil {
		t.Fatalf("Aggregates() error = %v", err)
	}
	if res.RowCount != 4 {
		t.Errorf("RowCount = %d, want 4", res.RowCount)
	}
	if !res.Summary.TotalRevenue.Equal(decimal.NewFromInt(610)) {
		t.Errorf("TotalRevenue = %s, want 610", res.Summary.TotalRevenue)
	}
	for _, s := range res.Segments {
		if s.Segment == "" {
			t.Error("every transaction should carry its customer's segment")
		}
	}

	quality, err := a.Quality()
	if err != nil {
		t.Fatalf("Quality() error = %v", err)
	}
	if quality.RowsDropped != 1 || quality.Counts[ledger.ReasonMissingCustomer] != 1 {
		t.Errorf("quality = %+v", quality.QualityReport)
	}

	opts, err := a.FilterOptions()
	if err != nil {
		t.Fatalf("FilterOptions() error = %v", err)
	}
	if !reflect.DeepEqual(opts.Categories, []string{"Home", "Toys"}) {
		t.Errorf("categories = %v", opts.Categories)
	}

	counts, err := a.SegmentCounts()
	if err != nil {
		t.Fatalf("SegmentCounts() error = %v", err)
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	if total != 2 {
		t.Errorf("segment counts sum to %d, want 2", total)
	}

	stats := a.Stats()
	if stats["loaded"] != true || stats["record_count"] != 4 || stats["snapshot_id"] == "" {
		t.Errorf("Stats() = %v", stats)
	}
}

func TestAnalytics_LoadFailure(t *testing.T) {
	a := NewAnalytics(Options{Logger: quietLogger()})
	err := a.Load(context.Background(), ledger.NewCSVSource(filepath.Join(t.TempDir(), "missing.csv")))

	var le *ledger.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *ledger.LoadError, got %v", err)
	}
	if _, err := a.Snapshot(); !errors.Is(err, ErrNotLoaded) {
		t.Error("a failed first load must leave the service unloaded")
	}
}

func TestAnalytics_EmptyFilterResultIsNotAnError(t *testing.T) {
	a, _ := newLoaded(t, Options{})

	res, err := a.Aggregates(models.FilterSpec{Categories: []string{"Garden"}})
	if err != nil {
		t.Fatalf("Aggregates() error = %v", err)
	}
	if res.RowCount != 0 || len(res.MonthlyRevenue) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestAnalytics_CustomersInSegment(t *testing.T) {
	a, _ := newLoaded(t, Options{})

	table, _ := a.RFMTable()
	rows, err := a.CustomersInSegment(table[0].Segment)
	if err != nil {
		t.Fatalf("CustomersInSegment() error = %v", err)
	}
	if len(rows) == 0 || rows[0].CustomerID != table[0].CustomerID {
		t.Errorf("rows = %v", rows)
	}

	none, err := a.CustomersInSegment("No Such Segment")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty, non-nil result, got %v, %v", none, err)
	}
}

func TestAnalytics_ReloadIsDeterministic(t *testing.T) {
	a, _ := newLoaded(t, Options{})

	before, _ := a.RFMTable()
	snap, _ := a.Snapshot()

	if err := a.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	after, _ := a.RFMTable()
	if !reflect.DeepEqual(before, after) {
		t.Error("reloading an unchanged source changed the RFM table")
	}
	next, _ := a.Snapshot()
	if next.ID == snap.ID {
		t.Error("reload should publish a new snapshot")
	}
}

func TestAnalytics_ReloadPicksUpChanges(t *testing.T) {
	a, path := newLoaded(t, Options{})

	extra := testLedger + "I6,S9,Vase,1,2023-06-30,50,C3,Spain,Home,5\n"
	if err := os.WriteFile(path, []byte(extra), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := a.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	table, _ := a.RFMTable()
	if len(table) != 3 {
		t.Errorf("expected 3 customers after reload, got %d", len(table))
	}
}

func TestAnalytics_FailedReloadKeepsSnapshot(t *testing.T) {
	a, path := newLoaded(t, Options{})
	before, _ := a.Snapshot()

	if err := os.WriteFile(path, []byte("nothing,useful\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := a.Reload(context.Background())
	if !errors.Is(err, ledger.ErrMissingColumns) {
		t.Fatalf("Reload() error = %v, want ErrMissingColumns", err)
	}

	after, err := a.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if after.ID != before.ID {
		t.Error("failed reload must keep the previous snapshot")
	}
	if a.Reloading() {
		t.Error("reloading flag should be cleared")
	}
	if got := a.Stats()["load_failures"]; got != int64(1) {
		t.Errorf("load_failures = %v, want 1", got)
	}
}

func TestAnalytics_StartReload(t *testing.T) {
	if err := NewAnalytics(Options{Logger: quietLogger()}).StartReload(context.Background(), nil); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("StartReload() before a load = %v, want ErrNotLoaded", err)
	}

	a, _ := newLoaded(t, Options{})
	before, _ := a.Snapshot()

	a.loadMu.Lock()
	if err := a.StartReload(context.Background(), nil); !errors.Is(err, ErrReloadInProgress) {
		t.Errorf("StartReload() during a load = %v, want ErrReloadInProgress", err)
	}
	a.loadMu.Unlock()

	done := make(chan error, 1)
	if err := a.StartReload(context.Background(), func(err error) { done <- err }); err != nil {
		t.Fatalf("StartReload() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("background reload failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("background reload did not finish")
	}

	after, _ := a.Snapshot()
	if after == before {
		t.Error("reload should publish a new snapshot")
	}
	if a.Reloading() {
		t.Error("Reloading() should be false once done has been called")
	}
}

func TestAnalytics_ConcurrentReadsDuringReload(t *testing.T) {
	a, _ := newLoaded(t, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := a.Aggregates(models.FilterSpec{Countries: []string{"UK"}}); err != nil {
					t.Errorf("Aggregates() during reload: %v", err)
					return
				}
				_ = a.Stats()
			}
		}()
	}

	for i := 0; i < 5; i++ {
		if err := a.Reload(ctx); err != nil {
			t.Errorf("Reload() error = %v", err)
		}
	}
	wg.Wait()
}

func TestAnalytics_Cache(t *testing.T) {
	cacheDir := t.TempDir()
	a, path := newLoaded(t, Options{CacheDir: cacheDir, StubSeed: 5})

	cacheFile := a.cacheFilename(path)
	if _, err := os.Stat(cacheFile); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}

	b := NewAnalytics(Options{CacheDir: cacheDir, Logger: quietLogger()})
	res, ok := b.loadFromCache(path)
	if !ok {
		t.Fatal("expected a cache hit for an unchanged file")
	}
	if len(res.Transactions) != 4 || res.Quality.RowsDropped != 1 {
		t.Errorf("cached ledger = %d rows, quality %+v", len(res.Transactions), res.Quality)
	}
	if err := b.Load(context.Background(), ledger.NewCSVSource(path)); err != nil {
		t.Fatalf("Load() from cache error = %v", err)
	}
	want, _ := a.RFMTable()
	got, _ := b.RFMTable()
	if !reflect.DeepEqual(want, got) {
		t.Error("cached load produced a different RFM table")
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.loadFromCache(path); ok {
		t.Error("cache should be invalidated when the file changes")
	}
}

func TestAnalytics_SetData(t *testing.T) {
	a := NewAnalytics(Options{Logger: quietLogger()})
	a.SetData([]models.Transaction{
		{InvoiceID: "T1", CustomerID: "U1", Description: "Laptop", Country: "USA", Category: "Electronics",
			InvoiceDate: time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), Quantity: 1, Revenue: decimal.RequireFromString("999.99")},
		{InvoiceID: "T2", CustomerID: "U2", Description: "Mouse", Country: "USA", Category: "Electronics",
			InvoiceDate: time.Date(2023, 1, 16, 0, 0, 0, 0, time.UTC), Quantity: 2, Revenue: decimal.RequireFromString("59.98")},
	})

	res, err := a.Aggregates(models.FilterSpec{})
	if err != nil {
		t.Fatalf("Aggregates() error = %v", err)
	}
	if len(res.MonthlyRevenue) != 1 || res.MonthlyRevenue[0].Month != "2023-01" {
		t.Errorf("monthly = %v", res.MonthlyRevenue)
	}
	if res.TopProducts[0].Description != "Laptop" {
		t.Errorf("top product = %v", res.TopProducts[0])
	}
	if err := a.Reload(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("in-memory data has no source to reload, got %v", err)
	}
}

func TestAnalytics_AggregatesAreMemoized(t *testing.T) {
	a, _ := newLoaded(t, Options{})

	first, err := a.Aggregates(models.FilterSpec{Categories: []string{"Home", "Toys"}})
	if err != nil {
		t.Fatalf("Aggregates() error = %v", err)
	}
	second, _ := a.Aggregates(models.FilterSpec{Categories: []string{"Toys", "Home"}})
	if !reflect.DeepEqual(first, second) {
		t.Error("reordered category sets should give the same result")
	}

	snap, _ := a.Snapshot()
	if got := snap.cached.Load(); got != 1 {
		t.Errorf("cached results = %d, want 1", got)
	}

	if err := a.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	fresh, _ := a.Snapshot()
	if fresh.cached.Load() != 0 {
		t.Error("a new snapshot starts with an empty result cache")
	}
}

func TestAnalytics_AggregatesIndependentOfQueryOrder(t *testing.T) {
	txns := make([]models.Transaction, 0, 3)
	for i, country := range []string{"a", "b", "a,b"} {
		txns = append(txns, models.Transaction{
			InvoiceID:   fmt.Sprintf("T%d", i),
			CustomerID:  fmt.Sprintf("U%d", i),
			Description: "Mug",
			Country:     country,
			InvoiceDate: time.Date(2023, 1, 10+i, 0, 0, 0, 0, time.UTC),
			Quantity:    1,
			Revenue:     decimal.NewFromInt(5),
		})
	}

	joined := models.FilterSpec{Countries: []string{"a,b"}}
	split := models.FilterSpec{Countries: []string{"a", "b"}}

	warm := NewAnalytics(Options{Logger: quietLogger()})
	warm.SetData(txns)
	if _, err := warm.Aggregates(joined); err != nil {
		t.Fatalf("Aggregates() error = %v", err)
	}
	got, _ := warm.Aggregates(split)

	cold := NewAnalytics(Options{Logger: quietLogger()})
	cold.SetData(txns)
	want, _ := cold.Aggregates(split)

	if got.RowCount != 2 || !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %d after a prior query, want %d", got.RowCount, want.RowCount)
	}
}

func TestAnalytics_Export(t *testing.T) {
	a, _ := newLoaded(t, Options{})
	dir := t.TempDir()

	store, err := export.NewSQLiteStore(filepath.Join(dir, "rfm.db"), quietLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	locations, err := a.Export(context.Background(), store, export.JSONWriter{Dir: dir})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("locations = %v, want 2", locations)
	}

	snap, _ := a.Snapshot()
	rows, err := store.Customers(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("Customers() error = %v", err)
	}
	if len(rows) != len(snap.Customers) {
		t.Errorf("exported %d customers, want %d", len(rows), len(snap.Customers))
	}

	empty := NewAnalytics(Options{Logger: quietLogger()})
	if _, err := empty.Export(context.Background(), export.JSONWriter{Dir: dir}); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Export() before load = %v, want ErrNotLoaded", err)
	}
}

func BenchmarkAnalytics_Aggregates(b *testing.B) {
	a := NewAnalytics(Options{Logger: quietLogger()})
	if err := a.Load(context.Background(), ledger.NewDemoSource(5000, 1)); err != nil {
		b.Fatal(err)
	}
	f := models.FilterSpec{Countries: []string{"UK", "France"}}

	b.ResetTimer()
	for b.Loop() {
		_, _ = a.Aggregates(f)
	}
}
