// Package rfm scores customers by recency, frequency and monetary value and
// assigns each score triple to a named segment.
package rfm

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/models"
)

// Metric names one of the three scored dimensions.
type Metric string

const (
	MetricRecency   Metric = "recency"
	MetricFrequency Metric = "frequency"
	MetricMonetary  Metric = "monetary"
)

// quartileEdges are the quantile cut points of a four bucket binning.
var quartileEdges = []float64{0, 0.25, 0.5, 0.75, 1}

// DegenerateNotice reports a metric whose quartile edges were not all
// distinct, so some score buckets are empty. It is informational.
type DegenerateNotice struct {
	Metric        Metric `json:"metric"`
	DistinctEdges int    `json:"distinct_edges"`
}

func (n DegenerateNotice) String() string {
	return fmt.Sprintf("%s quartiles collapsed to %d distinct edges", n.Metric, n.DistinctEdges)
}

// Result is the RFM table of one ledger.
type Result struct {
	// Customers are in first-seen ledger order.
	Customers []models.CustomerRFM
	// Notices lists the metrics whose quartile edges collapsed, in
	// recency, frequency, monetary order.
	Notices []DegenerateNotice
	// CurrentDate is the latest invoice date, the reference for recency.
	CurrentDate time.Time
}

type customerAcc struct {
	last     time.Time
	invoices map[string]struct{}
	monetary decimal.Decimal
}

// Calculate scores every customer in txns. The reference date is the
// latest invoice date in the ledger.
//
// Recency is whole days since the customer's last invoice and is scored
// 4 (most recent quartile) down to 1. Frequency counts distinct invoices
// and is scored 1..4 on its rank; monetary is total revenue scored 1..4.
// Output is deterministic for a fixed ledger order. An empty ledger gives
// an empty, non-nil customer table.
func Calculate(txns []models.Transaction) Result {
	if len(txns) == 0 {
		return Result{Customers: []models.CustomerRFM{}}
	}

	current := txns[0].InvoiceDate
	for _, tx := range txns[1:] {
		if tx.InvoiceDate.After(current) {
			current = tx.InvoiceDate
		}
	}

	var order []string
	accs := make(map[string]*customerAcc)
	for _, tx := range txns {
		acc, ok := accs[tx.CustomerID]
		if !ok {
			acc = &customerAcc{last: tx.InvoiceDate, invoices: make(map[string]struct{})}
			accs[tx.CustomerID] = acc
			order = append(order, tx.CustomerID)
		}
		if tx.InvoiceDate.After(acc.last) {
			acc.last = tx.InvoiceDate
		}
		acc.invoices[tx.InvoiceID] = struct{}{}
		acc.monetary = acc.monetary.Add(tx.Revenue)
	}

	n := len(order)
	customers := make([]models.CustomerRFM, n)
	recency := make([]decimal.Decimal, n)
	monetary := make([]decimal.Decimal, n)
	for i, id := range order {
		acc := accs[id]
		days := int(math.Floor(current.Sub(acc.last).Hours() / 24))
		customers[i] = models.CustomerRFM{
			CustomerID:  id,
			RecencyDays: days,
			Frequency:   len(acc.invoices),
			Monetary:    acc.monetary,
		}
		recency[i] = decimal.NewFromInt(int64(days))
		monetary[i] = acc.monetary
	}

	var notices []DegenerateNotice
	score := func(metric Metric, values []decimal.Decimal) []int {
		bins, distinct := Quartiles(values)
		if distinct < len(quartileEdges) {
			notices = append(notices, DegenerateNotice{Metric: metric, DistinctEdges: distinct})
		}
		return bins
	}

	rBins := score(MetricRecency, recency)
	fBins := score(MetricFrequency, frequencyRanks(customers))
	mBins := score(MetricMonetary, monetary)

	for i := range customers {
		c := &customers[i]
		c.RScore = 4 - rBins[i]
		c.FScore = fBins[i] + 1
		c.MScore = mBins[i] + 1
		c.RFMCode = strconv.Itoa(c.RScore) + strconv.Itoa(c.FScore) + strconv.Itoa(c.MScore)
		c.Segment = Classify(c.RFMCode)
	}

	return Result{Customers: customers, Notices: notices, CurrentDate: current}
}

// frequencyRanks gives each customer a distinct rank 1..n by ascending
// frequency, breaking ties by first-seen order. The result is indexed like
// customers. Ranks are distinct, so frequency edges only collapse for a
// single customer.
func frequencyRanks(customers []models.CustomerRFM) []decimal.Decimal {
	idx := make([]int, len(customers))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(customers[a].Frequency, customers[b].Frequency)
	})

	ranks := make([]decimal.Decimal, len(customers))
	for pos, i := range idx {
		ranks[i] = decimal.NewFromInt(int64(pos + 1))
	}
	return ranks
}

// Quartiles assigns each value a bucket 0..3 against equal-population
// quantile edges. A value falls in the first bucket whose upper edge is at
// least the value. Duplicate edges leave buckets empty. It also returns the
// number of distinct edges.
func Quartiles(values []decimal.Decimal) ([]int, int) {
	bins := make([]int, len(values))
	if len(values) == 0 {
		return bins, 0
	}

	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int { return a.Cmp(b) })

	edges := make([]decimal.Decimal, len(quartileEdges))
	distinct := 0
	for i, q := range quartileEdges {
		edges[i] = Quantile(sorted, q)
		if i == 0 || !edges[i].Equal(edges[i-1]) {
			distinct++
		}
	}

	for i, v := range values {
		for b := 0; b < len(edges)-1; b++ {
			if edges[b+1].GreaterThanOrEqual(v) {
				bins[i] = b
				break
			}
		}
	}
	return bins, distinct
}

// Quantile returns the q-th quantile of sorted using linear interpolation
// between the closest ranks. sorted must be in ascending order and q in
// [0, 1]; an empty slice yields zero.
func Quantile(sorted []decimal.Decimal, q float64) decimal.Decimal {
	if len(sorted) == 0 {
		return decimal.Zero
	}
	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	frac := h - float64(lo)
	if frac == 0 || lo+1 >= len(sorted) {
		return sorted[lo]
	}
	step := sorted[lo+1].Sub(sorted[lo])
	return sorted[lo].Add(step.Mul(decimal.NewFromFloat(frac)))
}

// Counts returns the number of customers per segment in display order,
// omitting empty segments.
func Counts(customers []models.CustomerRFM) []models.SegmentCount {
	tally := make(map[string]int)
	for _, c := range customers {
		tally[c.Segment]++
	}
	out := make([]models.SegmentCount, 0, len(tally))
	for _, s := range segmentOrder {
		if tally[s] > 0 {
			out = append(out, models.SegmentCount{Segment: s, Count: tally[s]})
		}
	}
	return out
}
