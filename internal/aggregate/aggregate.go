package aggregate

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/models"
)

const (
	topProductsLimit  = 10
	topCountriesLimit = 5
	monthLayout       = "2006-01"
)

// Apply returns the transactions matching f, in ledger order. Date bounds
// are inclusive and an empty category or country set matches everything.
// Inverted date bounds match nothing.
func Apply(txns []models.Transaction, f models.FilterSpec) []models.Transaction {
	out := make([]models.Transaction, 0, len(txns))
	if f.Inverted() {
		return out
	}

	categories := toSet(f.Categories)
	countries := toSet(f.Countries)

	for _, tx := range txns {
		if f.DateFrom != nil && tx.InvoiceDate.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && tx.InvoiceDate.After(*f.DateTo) {
			continue
		}
		if categories != nil && !categories[tx.Category] {
			continue
		}
		if countries != nil && !countries[tx.Country] {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Run filters txns and aggregates the result.
func Run(txns []models.Transaction, f models.FilterSpec) models.AggregateResult {
	return Compute(Apply(txns, f))
}

// Compute builds every dashboard view over txns. Rows with an empty group
// key are left out of that view but still count towards the summary.
func Compute(txns []models.Transaction) models.AggregateResult {
	monthly := make(map[string]decimal.Decimal)
	segments := make(map[string]int)
	products := make(map[string]decimal.Decimal)
	countries := make(map[string]decimal.Decimal)
	categories := make(map[string]decimal.Decimal)

	invoices := make(map[string]struct{})
	customers := make(map[string]struct{})

	var (
		total       decimal.Decimal
		sold        int
		ratingSum   float64
		ratingCount int
	)

	for _, tx := range txns {
		month := tx.InvoiceDate.Format(monthLayout)
		monthly[month] = monthly[month].Add(tx.Revenue)
		if tx.Segment != "" {
			segments[tx.Segment]++
		}
		addTo(products, tx.Description, tx.Revenue)
		addTo(countries, tx.Country, tx.Revenue)
		addTo(categories, tx.Category, tx.Revenue)

		invoices[tx.InvoiceID] = struct{}{}
		customers[tx.CustomerID] = struct{}{}
		total = total.Add(tx.Revenue)
		sold += tx.Quantity
		if tx.Rating > 0 {
			ratingSum += tx.Rating
			ratingCount++
		}
	}

	summary := models.Summary{
		TotalRevenue:  total,
		TotalOrders:   len(invoices),
		Customers:     len(customers),
		AvgOrderValue: decimal.Zero,
		ProductsSold:  sold,
	}
	if len(invoices) > 0 {
		summary.AvgOrderValue = total.DivRound(decimal.NewFromInt(int64(len(invoices))), 2)
	}
	if ratingCount > 0 {
		summary.AvgRating = ratingSum / float64(ratingCount)
	}

	return models.AggregateResult{
		MonthlyRevenue:  monthlySeries(monthly),
		Segments:        segmentSeries(segments),
		TopProducts:     topProducts(products),
		TopCountries:    topCountries(countries),
		CategoryRevenue: categorySeries(categories),
		Summary:         summary,
		RowCount:        len(txns),
	}
}

// Options lists the values a dashboard filter can take over txns.
func Options(txns []models.Transaction) models.FilterOptions {
	categories := make(map[string]struct{})
	countries := make(map[string]struct{})
	opts := models.FilterOptions{}

	for i := range txns {
		tx := &txns[i]
		if tx.Category != "" {
			categories[tx.Category] = struct{}{}
		}
		if tx.Country != "" {
			countries[tx.Country] = struct{}{}
		}
		if opts.DateMin == nil || tx.InvoiceDate.Before(*opts.DateMin) {
			opts.DateMin = &tx.InvoiceDate
		}
		if opts.DateMax == nil || tx.InvoiceDate.After(*opts.DateMax) {
			opts.DateMax = &tx.InvoiceDate
		}
	}

	opts.Categories = sortedKeys(categories)
	opts.Countries = sortedKeys(countries)
	if opts.DateMin != nil {
		lo, hi := *opts.DateMin, *opts.DateMax
		opts.DateMin, opts.DateMax = &lo, &hi
	}
	return opts
}

func addTo(groups map[string]decimal.Decimal, key string, v decimal.Decimal) {
	if key == "" {
		return
	}
	groups[key] = groups[key].Add(v)
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.TrimSpace(v)] = true
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func monthlySeries(groups map[string]decimal.Decimal) []models.MonthlyRevenue {
	result := make([]models.MonthlyRevenue, 0, len(groups))
	for _, month := range sortedKeys(groups) {
		result = append(result, models.MonthlyRevenue{Month: month, Revenue: groups[month]})
	}
	return result
}

func segmentSeries(groups map[string]int) []models.SegmentCount {
	result := make([]models.SegmentCount, 0, len(groups))
	for segment, count := range groups {
		result = append(result, models.SegmentCount{Segment: segment, Count: count})
	}
	slices.SortFunc(result, func(a, b models.SegmentCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Segment, b.Segment)
	})
	return result
}

// byRevenue orders descending by revenue, then ascending by name.
func byRevenue(groups map[string]decimal.Decimal) []string {
	keys := sortedKeys(groups)
	slices.SortStableFunc(keys, func(a, b string) int {
		return groups[b].Cmp(groups[a])
	})
	return keys
}

func topProducts(groups map[string]decimal.Decimal) []models.ProductRevenue {
	keys := byRevenue(groups)
	result := make([]models.ProductRevenue, 0, min(len(keys), topProductsLimit))
	for _, k := range keys[:min(len(keys), topProductsLimit)] {
		result = append(result, models.ProductRevenue{Description: k, Revenue: groups[k]})
	}
	return result
}

func topCountries(groups map[string]decimal.Decimal) []models.CountryRevenue {
	keys := byRevenue(groups)
	result := make([]models.CountryRevenue, 0, min(len(keys), topCountriesLimit))
	for _, k := range keys[:min(len(keys), topCountriesLimit)] {
		result = append(result, models.CountryRevenue{Country: k, Revenue: groups[k]})
	}
	return result
}

func categorySeries(groups map[string]decimal.Decimal) []models.CategoryRevenue {
	result := make([]models.CategoryRevenue, 0, len(groups))
	for _, k := range sortedKeys(groups) {
		result = append(result, models.CategoryRevenue{Category: k, Revenue: groups[k]})
	}
	return result
}
