package services

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/aggregate"
	"rfm-dashboard/internal/export"
	"rfm-dashboard/internal/ledger"
	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/rfm"
)

const (
	cacheVersion = "v1"
	// maxCachedResults bounds the per-snapshot aggregate cache.
	maxCachedResults = 256
)

var (
	// ErrNotLoaded is returned by queries made before the first successful load.
	ErrNotLoaded = errors.New("ledger not loaded")
	// ErrReloadInProgress is returned by StartReload while a load or reload runs.
	ErrReloadInProgress = errors.New("reload already in progress")
)

// Snapshot is one loaded ledger with everything derived from it. It is
// never modified after it is published.
type Snapshot struct {
	ID           string
	Source       string
	LoadedAt     time.Time
	Transactions []models.Transaction
	Customers    []models.CustomerRFM
	Notices      []rfm.DegenerateNotice
	Quality      ledger.QualityReport
	Options      models.FilterOptions
	CurrentDate  time.Time

	results sync.Map // FilterSpec.Key() -> models.AggregateResult
	cached  atomic.Int32
}

// aggregates memoizes filter results for the lifetime of the snapshot.
func (s *Snapshot) aggregates(f models.FilterSpec) models.AggregateResult {
	key := f.Key()
	if v, ok := s.results.Load(key); ok {
		return v.(models.AggregateResult)
	}

	res := aggregate.Run(s.Transactions, f)
	if s.cached.Load() < maxCachedResults {
		if _, loaded := s.results.LoadOrStore(key, res); !loaded {
			s.cached.Add(1)
		}
	}
	return res
}

type Options struct {
	// CacheDir holds gob caches of normalized CSV ledgers. Empty disables caching.
	CacheDir string
	// StubSeed seeds synthetic Category and Rating values; zero uses the clock.
	StubSeed uint64
	Logger   *slog.Logger
}

// Analytics owns the current ledger snapshot. The first Load must succeed
// before queries are served. A Reload builds a new snapshot while the
// previous one keeps serving, then swaps it in; a failed reload keeps the
// previous snapshot.
type Analytics struct {
	mu       sync.RWMutex
	snapshot *Snapshot
	source   ledger.Source

	loadMu    sync.Mutex
	reloading atomic.Bool
	loads     atomic.Int64
	failures  atomic.Int64

	cacheDir string
	stubSeed uint64
	logger   *slog.Logger
}

func NewAnalytics(opts Options) *Analytics {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analytics{
		cacheDir: opts.CacheDir,
		stubSeed: opts.StubSeed,
		logger:   logger,
	}
}

// Load reads src, scores it and publishes the result. src becomes the
// source used by Reload.
func (a *Analytics) Load(ctx context.Context, src ledger.Source) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	snap, err := a.build(ctx, src)
	if err != nil {
		a.failures.Add(1)
		return err
	}

	a.publish(snap, src)
	return nil
}

// Reload rebuilds the snapshot from the last loaded source, waiting for any
// load already in progress.
func (a *Analytics) Reload(ctx context.Context) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	src := a.currentSource()
	if src == nil {
		return ErrNotLoaded
	}

	a.reloading.Store(true)
	defer a.reloading.Store(false)

	return a.rebuild(ctx, src)
}

// StartReload rebuilds the snapshot in the background and calls done with the
// result once the new snapshot is published or the reload has failed. It
// returns ErrReloadInProgress instead of queueing behind a running load.
func (a *Analytics) StartReload(ctx context.Context, done func(error)) error {
	if !a.loadMu.TryLock() {
		return ErrReloadInProgress
	}

	src := a.currentSource()
	if src == nil {
		a.loadMu.Unlock()
		return ErrNotLoaded
	}

	a.reloading.Store(true)
	go func() {
		err := a.rebuild(ctx, src)
		a.reloading.Store(false)
		a.loadMu.Unlock()
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (a *Analytics) currentSource() ledger.Source {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.source
}

// rebuild must be called with loadMu held.
func (a *Analytics) rebuild(ctx context.Context, src ledger.Source) error {
	snap, err := a.build(ctx, src)
	if err != nil {
		a.failures.Add(1)
		a.logger.Error("reload failed, keeping previous snapshot", "source", src.Name(), "error", err)
		return err
	}

	a.publish(snap, src)
	return nil
}

// SetData publishes a snapshot built from in-memory transactions.
func (a *Analytics) SetData(data []models.Transaction) {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	snap := a.derive("memory", data, ledger.QualityReport{RowsRead: len(data), RowsKept: len(data)})
	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()
	a.loads.Add(1)
}

func (a *Analytics) publish(snap *Snapshot, src ledger.Source) {
	a.mu.Lock()
	a.snapshot = snap
	a.source = src
	a.mu.Unlock()
	a.loads.Add(1)

	a.logSummary(snap)
}

func (a *Analytics) build(ctx context.Context, src ledger.Source) (*Snapshot, error) {
	ctx, span := observability.StartSpan(ctx, "ledger.load")
	span.SetTag("source", src.Name())
	defer span.End(a.logger)

	start := time.Now()
	result, cached, err := a.readLedger(ctx, src)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	snap := a.derive(src.Name(), result.Transactions, result.Quality)
	a.logger.Info("ledger processed",
		"source", src.Name(),
		"snapshot", snap.ID,
		"from_cache", cached,
		"duration", time.Since(start),
	)
	return snap, nil
}

func (a *Analytics) readLedger(ctx context.Context, src ledger.Source) (ledger.Result, bool, error) {
	csvSrc, isCSV := src.(*ledger.CSVSource)
	if isCSV && a.cacheDir != "" {
		if res, ok := a.loadFromCache(csvSrc.Path()); ok {
			return res, true, nil
		}
	}

	res, err := ledger.Load(ctx, src, ledger.NewStubPolicy(a.stubSeed))
	if err != nil {
		return ledger.Result{}, false, err
	}

	if isCSV && a.cacheDir != "" {
		if err := a.saveToCache(csvSrc.Path(), res); err != nil {
			a.logger.Warn("failed to save cache", "error", err)
		}
	}
	return res, false, nil
}

// derive computes the RFM table and joins each customer's segment onto
// their transactions.
func (a *Analytics) derive(source string, txns []models.Transaction, quality ledger.QualityReport) *Snapshot {
	table := rfm.Calculate(txns)

	segments := make(map[string]string, len(table.Customers))
	for _, c := range table.Customers {
		segments[c.CustomerID] = c.Segment
	}

	joined := make([]models.Transaction, len(txns))
	for i, tx := range txns {
		tx.Segment = segments[tx.CustomerID]
		joined[i] = tx
	}

	return &Snapshot{
		ID:           uuid.NewString(),
		Source:       source,
		LoadedAt:     time.Now(),
		Transactions: joined,
		Customers:    table.Customers,
		Notices:      table.Notices,
		Quality:      quality,
		Options:      aggregate.Options(joined),
		CurrentDate:  table.CurrentDate,
	}
}

func (a *Analytics) logSummary(snap *Snapshot) {
	total := decimal.Zero
	for _, tx := range snap.Transactions {
		total = total.Add(tx.Revenue)
	}

	attrs := []any{
		"snapshot", snap.ID,
		"source", snap.Source,
		"rows", len(snap.Transactions),
		"customers", len(snap.Customers),
		"total_revenue", total.StringFixed(2),
	}
	if snap.Options.DateMin != nil {
		attrs = append(attrs,
			"period_start", snap.Options.DateMin.Format(time.DateOnly),
			"period_end", snap.Options.DateMax.Format(time.DateOnly),
		)
	}
	a.logger.Info("ledger loaded", attrs...)

	if q := snap.Quality; q.RowsDropped > 0 {
		a.logger.Warn("rows dropped during normalization",
			"dropped", q.RowsDropped,
			"read", q.RowsRead,
			"counts", q.Counts,
		)
	}
	if len(snap.Quality.SyntheticColumns) > 0 {
		a.logger.Info("optional columns stubbed with synthetic values", "columns", snap.Quality.SyntheticColumns)
	}
	for _, n := range snap.Notices {
		a.logger.Info("degenerate distribution", "metric", n.Metric, "distinct_edges", n.DistinctEdges)
	}
}

// Snapshot returns the current snapshot.
func (a *Analytics) Snapshot() (*Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snapshot == nil {
		return nil, ErrNotLoaded
	}
	return a.snapshot, nil
}

// Aggregates runs the filter and aggregation engine on the current snapshot.
func (a *Analytics) Aggregates(f models.FilterSpec) (models.AggregateResult, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return models.AggregateResult{}, err
	}
	return snap.aggregates(f), nil
}

// RFMTable returns the per-customer scores in first-seen order.
func (a *Analytics) RFMTable() ([]models.CustomerRFM, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.Customers), nil
}

// CustomersInSegment returns the RFM rows of one segment, matched case-insensitively.
func (a *Analytics) CustomersInSegment(segment string) ([]models.CustomerRFM, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]models.CustomerRFM, 0)
	for _, c := range snap.Customers {
		if strings.EqualFold(c.Segment, segment) {
			out = append(out, c)
		}
	}
	return out, nil
}

// SegmentCounts returns the number of customers per segment.
func (a *Analytics) SegmentCounts() ([]models.SegmentCount, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return nil, err
	}
	return rfm.Counts(snap.Customers), nil
}

func (a *Analytics) FilterOptions() (models.FilterOptions, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return models.FilterOptions{}, err
	}
	return snap.Options, nil
}

// Export writes the RFM table of the current snapshot to every writer.
func (a *Analytics) Export(ctx context.Context, writers ...export.Writer) ([]string, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return nil, err
	}

	set := export.Set{
		SnapshotID:  snap.ID,
		Source:      snap.Source,
		CreatedAt:   time.Now().UTC(),
		CurrentDate: snap.CurrentDate,
		Summary:     aggregate.Compute(snap.Transactions).Summary,
		Segments:    rfm.Counts(snap.Customers),
		Customers:   snap.Customers,
	}

	ctx, span := observability.StartSpan(ctx, "snapshot.export")
	defer span.End(a.logger)
	span.SetTag("snapshot_id", snap.ID)

	locations, err := export.WriteAll(ctx, set, writers...)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return locations, nil
}

// QualityReport is the data quality of the current snapshot.
type QualityReport struct {
	ledger.QualityReport
	Notices []rfm.DegenerateNotice `json:"degenerate_notices"`
}

func (a *Analytics) Quality() (QualityReport, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return QualityReport{}, err
	}
	notices := snap.Notices
	if notices == nil {
		notices = []rfm.DegenerateNotice{}
	}
	return QualityReport{QualityReport: snap.Quality, Notices: notices}, nil
}

// Reloading reports whether a reload is in progress.
func (a *Analytics) Reloading() bool {
	return a.reloading.Load()
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	stats := map[string]any{
		"loaded":        false,
		"reloading":     a.reloading.Load(),
		"loads":         a.loads.Load(),
		"load_failures": a.failures.Load(),
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snapshot == nil {
		return stats
	}

	stats["loaded"] = true
	stats["snapshot_id"] = a.snapshot.ID
	stats["source"] = a.snapshot.Source
	stats["loaded_at"] = a.snapshot.LoadedAt
	stats["record_count"] = len(a.snapshot.Transactions)
	stats["customers"] = len(a.snapshot.Customers)
	stats["rows_dropped"] = a.snapshot.Quality.RowsDropped
	stats["current_date"] = a.snapshot.CurrentDate
	return stats
}

// cachedLedger is a normalized CSV ledger stamped with the file it came from.
type cachedLedger struct {
	Path         string
	ModTime      time.Time
	Size         int64
	Transactions []models.Transaction
	Quality      ledger.QualityReport
}

func (a *Analytics) cacheFilename(csvPath string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(csvPath)
	return filepath.Join(a.cacheDir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

func (a *Analytics) saveToCache(csvPath string, res ledger.Result) error {
	info, err := os.Stat(csvPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return err
	}

	file, err := os.Create(a.cacheFilename(csvPath))
	if err != nil {
		return err
	}
	defer file.Close()

	return gob.NewEncoder(file).Encode(cachedLedger{
		Path:         csvPath,
		ModTime:      info.ModTime(),
		Size:         info.Size(),
		Transactions: res.Transactions,
		Quality:      res.Quality,
	})
}

// loadFromCache returns the cached ledger when the file is unchanged since
// it was cached.
func (a *Analytics) loadFromCache(csvPath string) (ledger.Result, bool) {
	info, err := os.Stat(csvPath)
	if err != nil {
		return ledger.Result{}, false
	}

	file, err := os.Open(a.cacheFilename(csvPath))
	if err != nil {
		return ledger.Result{}, false
	}
	defer file.Close()

	var cached cachedLedger
	if err := gob.NewDecoder(file).Decode(&cached); err != nil {
		a.logger.Warn("ignoring unreadable cache", "path", csvPath, "error", err)
		return ledger.Result{}, false
	}

	if cached.Path != csvPath || !cached.ModTime.Equal(info.ModTime()) || cached.Size != info.Size() {
		return ledger.Result{}, false
	}

	a.logger.Info("loaded from cache", "records", len(cached.Transactions))
	return ledger.Result{Transactions: cached.Transactions, Quality: cached.Quality}, true
}
