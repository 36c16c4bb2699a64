package ledger

import (
	"maps"
	"slices"
)

// maxWarnings caps the row-level warnings kept on a report; counts are exact.
const maxWarnings = 100

type Reason string

const (
	ReasonMissingInvoice  Reason = "missing_invoice"
	ReasonMissingCustomer Reason = "missing_customer"
	ReasonBadQuantity     Reason = "bad_quantity"
	ReasonBadUnitPrice    Reason = "bad_unit_price"
	ReasonBadDate         Reason = "bad_invoice_date"
	ReasonNonPositive     Reason = "non_positive_quantity_or_price"
	ReasonBadRating       Reason = "bad_rating"
)

// CoercionWarning records a row that was dropped, or a field that was
// ignored, during normalization. Line is 1-based and counts the header.
type CoercionWarning struct {
	Line   int    `json:"line"`
	Reason Reason `json:"reason"`
	Value  string `json:"value,omitempty"`
}

type QualityReport struct {
	RowsRead         int               `json:"rows_read"`
	RowsKept         int               `json:"rows_kept"`
	RowsDropped      int               `json:"rows_dropped"`
	Counts           map[Reason]int    `json:"counts"`
	Warnings         []CoercionWarning `json:"warnings"`
	SyntheticColumns []string          `json:"synthetic_columns,omitempty"`
}

func newQualityReport() QualityReport {
	return QualityReport{
		Counts:   make(map[Reason]int),
		Warnings: []CoercionWarning{},
	}
}

func (q *QualityReport) add(w CoercionWarning) {
	q.Counts[w.Reason]++
	if len(q.Warnings) < maxWarnings {
		q.Warnings = append(q.Warnings, w)
	}
}

// Reasons returns the recorded reasons in a stable order.
func (q QualityReport) Reasons() []Reason {
	return slices.Sorted(maps.Keys(q.Counts))
}
