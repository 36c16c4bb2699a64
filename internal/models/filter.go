package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// FilterSpec bounds a query over the ledger. A nil date bound or an empty set
// places no restriction on that dimension.
type FilterSpec struct {
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Countries  []string   `json:"countries,omitempty"`
}

// Inverted reports whether both date bounds are set and from is after to.
func (f FilterSpec) Inverted() bool {
	return f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo)
}

type filterKey struct {
	From       string   `json:"f"`
	To         string   `json:"t"`
	Categories []string `json:"c"`
	Countries  []string `json:"n"`
}

// Key returns a canonical string for the filter, stable under reordering of
// the category and country sets. Distinct filters never share a key.
func (f FilterSpec) Key() string {
	// Strings and string slices always marshal.
	b, _ := json.Marshal(filterKey{
		From:       boundKey(f.DateFrom),
		To:         boundKey(f.DateTo),
		Categories: sortedCopy(f.Categories),
		Countries:  sortedCopy(f.Countries),
	})
	return string(b)
}

func boundKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func sortedCopy(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}

// ParseFilter builds a FilterSpec from textual bounds and value lists. Bounds
// are YYYY-MM-DD or RFC3339; a date-only upper bound covers the whole day.
// Values are matched whole; they are trimmed and empty ones dropped. Empty
// inputs place no restriction.
func ParseFilter(from, to string, categories, countries []string) (FilterSpec, error) {
	var f FilterSpec

	if from != "" {
		t, err := parseBound(from, false)
		if err != nil {
			return FilterSpec{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		f.DateFrom = &t
	}
	if to != "" {
		t, err := parseBound(to, true)
		if err != nil {
			return FilterSpec{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		f.DateTo = &t
	}

	f.Categories = cleanValues(categories)
	f.Countries = cleanValues(countries)
	return f, nil
}

func parseBound(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		if upper {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func cleanValues(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
