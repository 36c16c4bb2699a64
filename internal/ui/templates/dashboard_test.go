package templates

import (
	"context"
	"html"
	"strings"
	"testing"
	"time"

	"rfm-dashboard/internal/models"
)

func TestDashboard(t *testing.T) {
	lo := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	err := Dashboard(models.FilterOptions{
		Categories: []string{"Books", "Home & Garden"},
		Countries:  []string{"UK"},
		DateMin:    &lo,
		DateMax:    &hi,
	}).Render(context.Background(), &b)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	html := b.String()
	for _, want := range []string{
		`min="2023-01-01"`,
		`max="2023-12-31"`,
		`<option value="Books">`,
		`Home &amp; Garden`,
		`@get('/sse/dashboard')`,
		`@get('/sse/rfm')`,
		`<option value="Champions">`,
		`id="kpi-cards"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestDashboard_NoData(t *testing.T) {
	var b strings.Builder
	if err := Dashboard(models.FilterOptions{}).Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	signals := html.UnescapeString(b.String())
	if !strings.Contains(signals, `"dateFrom":""`) || !strings.Contains(signals, `"categories":[]`) {
		t.Error("missing date bounds should render empty signals")
	}
}

func TestDashboard_EscapesOptions(t *testing.T) {
	var b strings.Builder
	err := Dashboard(models.FilterOptions{
		Countries: []string{`"><script>alert(1)</script>`},
	}).Render(context.Background(), &b)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(b.String(), "<script>alert(1)") {
		t.Error("filter option values must be escaped")
	}
}

func TestDashboard_SignalsSeedDateRange(t *testing.T) {
	lo := time.Date(2011, 1, 4, 0, 0, 0, 0, time.UTC)
	hi := time.Date(2011, 12, 9, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	if err := Dashboard(models.FilterOptions{DateMin: &lo, DateMax: &hi}).Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	page := html.UnescapeString(b.String())
	for _, want := range []string{`"dateFrom":"2011-01-04"`, `"dateTo":"2011-12-09"`, `data-bind="dateFrom"`} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}
