package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"rfm-dashboard/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

const (
	colInvoice     = "InvoiceNo"
	colStockCode   = "StockCode"
	colDescription = "Description"
	colQuantity    = "Quantity"
	colInvoiceDate = "InvoiceDate"
	colUnitPrice   = "UnitPrice"
	colCustomer    = "CustomerID"
	colCountry     = "Country"
	colCategory    = "Category"
	colRating      = "Rating"
)

var requiredColumns = []string{
	colInvoice, colStockCode, colDescription, colQuantity,
	colInvoiceDate, colUnitPrice, colCustomer, colCountry,
}

// Tokens read as a missing value, as a dataframe reader would.
var missingTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, "nan": true,
	"NULL": true, "null": true, "None": true,
}

// Month-first layouts only; day-first dates are not guessed.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
}

// Result is a normalized ledger in source order.
type Result struct {
	Transactions []models.Transaction
	Quality      QualityReport
}

type columnIndex struct {
	invoice, stockCode, description, quantity, invoiceDate int
	unitPrice, customer, country, category, rating         int
}

type parsedRow struct {
	tx      models.Transaction
	valid   bool
	warning *CoercionWarning
	rating  *CoercionWarning
}

// Load reads src and normalizes it. Any failure is returned as a *LoadError.
func Load(ctx context.Context, src Source, policy StubPolicy) (Result, error) {
	table, err := src.Read(ctx)
	if err != nil {
		return Result{}, loadError(src.Name(), err)
	}

	result, err := Normalize(ctx, table, policy)
	if err != nil {
		return Result{}, loadError(src.Name(), err)
	}
	return result, nil
}

// Normalize coerces raw records into canonical transactions, dropping
// invalid rows into the quality report. Records are parsed in parallel
// batches; the output keeps input order.
func Normalize(ctx context.Context, table RawTable, policy StubPolicy) (Result, error) {
	if len(table.Header) == 0 {
		return Result{}, ErrEmptySource
	}

	idx, err := indexColumns(table.Header)
	if err != nil {
		return Result{}, err
	}

	batches := (len(table.Records) + batchSize - 1) / batchSize
	parsed := make([][]parsedRow, batches)

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for b := 0; b < batches; b++ {
		start := b * batchSize
		end := min(start+batchSize, len(table.Records))

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rows := make([]parsedRow, 0, end-start)
			for i, record := range table.Records[start:end] {
				// +2: one for the header, one for 1-based lines.
				rows = append(rows, parseRow(record, idx, start+i+2))
			}
			parsed[b] = rows
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	quality := newQualityReport()
	quality.RowsRead = len(table.Records)
	if idx.category < 0 {
		quality.SyntheticColumns = append(quality.SyntheticColumns, colCategory)
	}
	if idx.rating < 0 {
		quality.SyntheticColumns = append(quality.SyntheticColumns, colRating)
	}

	txns := make([]models.Transaction, 0, len(table.Records))
	for _, batch := range parsed {
		for _, row := range batch {
			if row.rating != nil {
				quality.add(*row.rating)
			}
			if !row.valid {
				quality.add(*row.warning)
				continue
			}

			tx := row.tx
			if idx.category < 0 {
				tx.Category = policy.Category()
			}
			if idx.rating < 0 {
				tx.Rating = policy.Rating()
			}
			txns = append(txns, tx)
		}
	}

	quality.RowsKept = len(txns)
	quality.RowsDropped = quality.RowsRead - quality.RowsKept

	if len(txns) == 0 {
		return Result{Quality: quality}, ErrNoValidRows
	}

	return Result{Transactions: txns, Quality: quality}, nil
}

func indexColumns(header []string) (columnIndex, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	lookup := func(name string) int {
		if i, ok := positions[strings.ToLower(name)]; ok {
			return i
		}
		return -1
	}

	var missing []string
	for _, name := range requiredColumns {
		if lookup(name) < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return columnIndex{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	return columnIndex{
		invoice:     lookup(colInvoice),
		stockCode:   lookup(colStockCode),
		description: lookup(colDescription),
		quantity:    lookup(colQuantity),
		invoiceDate: lookup(colInvoiceDate),
		unitPrice:   lookup(colUnitPrice),
		customer:    lookup(colCustomer),
		country:     lookup(colCountry),
		category:    lookup(colCategory),
		rating:      lookup(colRating),
	}, nil
}

func parseRow(record []*string, idx columnIndex, line int) parsedRow {
	field := func(i int) (string, bool) {
		if i < 0 || i >= len(record) || record[i] == nil {
			return "", false
		}
		v := strings.TrimSpace(*record[i])
		if missingTokens[v] {
			return "", false
		}
		return v, true
	}
	text := func(i int) string {
		v, _ := field(i)
		return v
	}
	drop := func(reason Reason, value string) parsedRow {
		return parsedRow{warning: &CoercionWarning{Line: line, Reason: reason, Value: value}}
	}

	var row parsedRow
	row.tx = models.Transaction{
		StockCode:   text(idx.stockCode),
		Description: text(idx.description),
		Country:     text(idx.country),
		Category:    text(idx.category),
	}

	if raw, ok := field(idx.rating); ok {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil || rating < 1 || rating > 5 {
			row.rating = &CoercionWarning{Line: line, Reason: ReasonBadRating, Value: raw}
		} else {
			row.tx.Rating = rating
		}
	}

	// Revenue is derived from the coerced values before any row is dropped;
	// a value that fails coercion is missing, never zero.
	rawQty, _ := field(idx.quantity)
	quantity, qtyOK := parseQuantity(rawQty)
	rawPrice, _ := field(idx.unitPrice)
	price, priceErr := decimal.NewFromString(rawPrice)
	priceOK := priceErr == nil
	revenueOK := qtyOK && priceOK

	invoice, invoiceOK := field(idx.invoice)
	customer, customerOK := field(idx.customer)

	switch {
	case !invoiceOK:
		return withRating(drop(ReasonMissingInvoice, ""), row.rating)
	case !customerOK:
		return withRating(drop(ReasonMissingCustomer, ""), row.rating)
	case !revenueOK && !qtyOK:
		return withRating(drop(ReasonBadQuantity, rawQty), row.rating)
	case !revenueOK:
		return withRating(drop(ReasonBadUnitPrice, rawPrice), row.rating)
	}

	rawDate, _ := field(idx.invoiceDate)
	date, dateOK := parseDate(rawDate)
	if !dateOK {
		return withRating(drop(ReasonBadDate, rawDate), row.rating)
	}

	if quantity <= 0 || !price.IsPositive() {
		return withRating(drop(ReasonNonPositive, rawQty+" x "+rawPrice), row.rating)
	}

	row.tx.InvoiceID = invoice
	row.tx.CustomerID = customer
	row.tx.Quantity = quantity
	row.tx.UnitPrice = price
	row.tx.InvoiceDate = date
	row.tx.Revenue = price.Mul(decimal.NewFromInt(int64(quantity)))
	row.valid = true
	return row
}

func withRating(row parsedRow, rating *CoercionWarning) parsedRow {
	row.rating = rating
	return row
}

var (
	minQuantity = decimal.NewFromInt(math.MinInt)
	maxQuantity = decimal.NewFromInt(math.MaxInt)
)

// parseQuantity accepts integral numbers, including forms like "6.0".
// Values outside the int range are rejected rather than truncated.
func parseQuantity(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err == nil {
		return n, true
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsInteger() || d.LessThan(minQuantity) || d.GreaterThan(maxQuantity) {
		return 0, false
	}
	return int(d.IntPart()), true
}

func parseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
