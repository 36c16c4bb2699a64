package handlers

import (
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"rfm-dashboard/internal/models"
	"rfm-dashboard/internal/services"
)

const maxTableRows = 50

var kpiTemplate = template.Must(template.New("kpi").Parse(`
<div id="kpi-cards" class="kpi-grid">
<div class="kpi"><span class="kpi-label">Total revenue</span><strong>${{.TotalRevenue.StringFixed 2}}</strong></div>
<div class="kpi"><span class="kpi-label">Orders</span><strong>{{.TotalOrders}}</strong></div>
<div class="kpi"><span class="kpi-label">Customers</span><strong>{{.Customers}}</strong></div>
<div class="kpi"><span class="kpi-label">Avg order value</span><strong>${{.AvgOrderValue.StringFixed 2}}</strong></div>
<div class="kpi"><span class="kpi-label">Products sold</span><strong>{{.ProductsSold}}</strong></div>
<div class="kpi"><span class="kpi-label">Avg rating</span><strong>{{printf "%.2f" .AvgRating}}</strong></div>
</div>`))

var rfmTableTemplate = template.Must(template.New("rfmTable").Parse(`
<div id="rfm-table">
<table class="modern-table">
<thead><tr><th>Customer</th><th>Recency (days)</th><th>Orders</th><th>Monetary</th><th>RFM</th><th>Segment</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{.CustomerID}}</td>
<td>{{.RecencyDays}}</td>
<td>{{.Frequency}}</td>
<td><strong>${{.Monetary.StringFixed 2}}</strong></td>
<td><code>{{.RFMCode}}</code></td>
<td><span class="segment-badge">{{.Segment}}</span></td>
</tr>{{end}}
</tbody>
</table>
{{if gt .Total (len .Rows)}}<p class="table-note">Showing {{len .Rows}} of {{.Total}} customers</p>{{end}}
</div>`))

var statusTemplate = template.Must(template.New("status").Parse(
	`<div id="dashboard-status" class="status {{.Class}}">{{.Message}}</div>`))

// dashboardSignals is the filter state the dashboard page sends with each request.
type dashboardSignals struct {
	DateFrom   string   `json:"dateFrom"`
	DateTo     string   `json:"dateTo"`
	Categories []string `json:"categories"`
	Countries  []string `json:"countries"`
	Segment    string   `json:"segment"`
}

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func render(t *template.Template, data any) (string, error) {
	var buf strings.Builder
	err := t.Execute(&buf, data)
	return buf.String(), err
}

func (h *SSEHandlers) renderKPIs(summary models.Summary) (string, error) {
	return render(kpiTemplate, summary)
}

func (h *SSEHandlers) renderRFMTable(rows []models.CustomerRFM) (string, error) {
	total := len(rows)
	if len(rows) > maxTableRows {
		rows = rows[:maxTableRows]
	}
	return render(rfmTableTemplate, struct {
		Rows  []models.CustomerRFM
		Total int
	}{rows, total})
}

func (h *SSEHandlers) renderStatus(class, message string) string {
	html, err := render(statusTemplate, struct{ Class, Message string }{class, message})
	if err != nil {
		h.logger.Error("render status", "error", err)
	}
	return html
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleDashboard recomputes the dashboard for the filter in the request
// signals and patches the chart signals and KPI cards.
func (h *SSEHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	var signals dashboardSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.logger.Warn("read signals", "error", err)
	}

	sse := datastar.NewSSE(w, r)

	filter, err := models.ParseFilter(signals.DateFrom, signals.DateTo, signals.Categories, signals.Countries)
	if err != nil {
		sse.PatchElements(h.renderStatus("status-error", err.Error()))
		flush(w)
		return
	}

	result, err := h.analytics.Aggregates(filter)
	if err != nil {
		h.patchUnavailable(sse, err)
		flush(w)
		return
	}

	jsonData, err := json.Marshal(map[string]any{
		"monthlyData":  result.MonthlyRevenue,
		"segmentsData": result.Segments,
		"productsData": result.TopProducts,
		"countryData":  result.TopCountries,
		"categoryData": result.CategoryRevenue,
		"rowCount":     result.RowCount,
	})
	if err != nil {
		h.logger.Error("marshal dashboard data", "error", err)
		return
	}
	sse.PatchSignals(jsonData)

	html, err := h.renderKPIs(result.Summary)
	if err != nil {
		h.logger.Error("render kpi cards", "error", err)
		return
	}
	sse.PatchElements(html)

	if result.RowCount == 0 {
		sse.PatchElements(h.renderStatus("status-empty", "No data for this filter"))
	} else {
		sse.PatchElements(h.renderStatus("status-ok", ""))
	}

	flush(w)
}

// HandleRFM patches the customer segment table, optionally for one segment.
func (h *SSEHandlers) HandleRFM(w http.ResponseWriter, r *http.Request) {
	var signals dashboardSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.logger.Warn("read signals", "error", err)
	}

	sse := datastar.NewSSE(w, r)

	var (
		rows []models.CustomerRFM
		err  error
	)
	if signals.Segment != "" {
		rows, err = h.analytics.CustomersInSegment(signals.Segment)
	} else {
		rows, err = h.analytics.RFMTable()
	}
	if err != nil {
		h.patchUnavailable(sse, err)
		flush(w)
		return
	}

	html, err := h.renderRFMTable(rows)
	if err != nil {
		h.logger.Error("render rfm table", "error", err)
		return
	}
	sse.PatchElements(html)

	flush(w)
}

func (h *SSEHandlers) patchUnavailable(sse *datastar.ServerSentEventGenerator, err error) {
	if stderrors.Is(err, services.ErrNotLoaded) {
		sse.PatchElements(h.renderStatus("status-error", "Ledger failed to load"))
		return
	}
	h.logger.Error("dashboard query", "error", err)
	sse.PatchElements(h.renderStatus("status-error", "Query failed"))
}
