package templates

//go:generate templ generate

import (
	"time"

	"github.com/a-h/templ"

	"rfm-dashboard/internal/models"
)

type chartPanel struct {
	ID     string
	Title  string
	Signal string
}

// charts are bound to the signals patched by /sse/dashboard.
var charts = []chartPanel{
	{ID: "monthly-chart", Title: "Monthly revenue", Signal: "monthlyData"},
	{ID: "segments-chart", Title: "Transactions by segment", Signal: "segmentsData"},
	{ID: "products-chart", Title: "Top 10 products", Signal: "productsData"},
	{ID: "countries-chart", Title: "Top 5 countries", Signal: "countryData"},
	{ID: "category-chart", Title: "Revenue by category", Signal: "categoryData"},
}

type pageSignals struct {
	DateFrom   string   `json:"dateFrom"`
	DateTo     string   `json:"dateTo"`
	Categories []string `json:"categories"`
	Countries  []string `json:"countries"`
	Segment    string   `json:"segment"`
}

// initialSignals seeds the date pickers with the ledger's date range.
func initialSignals(opts models.FilterOptions) string {
	s, err := templ.JSONString(pageSignals{
		DateFrom:   dateValue(opts.DateMin),
		DateTo:     dateValue(opts.DateMax),
		Categories: []string{},
		Countries:  []string{},
	})
	if err != nil {
		return "{}"
	}
	return s
}

func seriesExpr(signal string) string {
	return "JSON.stringify($" + signal + ")"
}

func dateValue(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
