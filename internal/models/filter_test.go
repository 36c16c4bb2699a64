package models

import (
	"slices"
	"testing"
	"time"
)

func TestFilterSpec_Key(t *testing.T) {
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	a := FilterSpec{DateFrom: &from, Categories: []string{"Toys", "Books"}, Countries: []string{"UK"}}
	b := FilterSpec{DateFrom: &from, Categories: []string{"Books", "Toys"}, Countries: []string{"UK"}}
	if a.Key() != b.Key() {
		t.Errorf("keys differ for reordered sets: %q vs %q", a.Key(), b.Key())
	}
	if a.Categories[0] != "Toys" {
		t.Error("Key() must not reorder the filter's own sets")
	}

	if (FilterSpec{}).Key() == a.Key() {
		t.Error("empty filter should not share a key with a bounded one")
	}
}

func TestFilterSpec_KeyDistinguishesFilters(t *testing.T) {
	day := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b FilterSpec
	}{
		{"comma inside a value", FilterSpec{Countries: []string{"a,b"}}, FilterSpec{Countries: []string{"a", "b"}}},
		{"separator inside a value", FilterSpec{Categories: []string{"x|y"}}, FilterSpec{Categories: []string{"x"}, Countries: []string{"y"}}},
		{"category versus country", FilterSpec{Categories: []string{"UK"}}, FilterSpec{Countries: []string{"UK"}}},
		{"from versus to", FilterSpec{DateFrom: &day}, FilterSpec{DateTo: &day}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a.Key() == tt.b.Key() {
				t.Errorf("distinct filters share key %q", tt.a.Key())
			}
		})
	}
}

func TestFilterSpec_KeyIgnoresLocation(t *testing.T) {
	utc := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("CET", 3600))

	if (FilterSpec{DateFrom: &utc}).Key() != (FilterSpec{DateFrom: &local}).Key() {
		t.Error("the same instant in another zone should share a key")
	}
}

func TestFilterSpec_Inverted(t *testing.T) {
	early := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 1, 0)

	tests := []struct {
		name string
		f    FilterSpec
		want bool
	}{
		{"unbounded", FilterSpec{}, false},
		{"from only", FilterSpec{DateFrom: &late}, false},
		{"ordered", FilterSpec{DateFrom: &early, DateTo: &late}, false},
		{"same instant", FilterSpec{DateFrom: &early, DateTo: &early}, false},
		{"inverted", FilterSpec{DateFrom: &late, DateTo: &early}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Inverted(); got != tt.want {
				t.Errorf("Inverted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("2011-01-01", "2011-01-31", []string{" Home", "Books", ""}, []string{"Korea, Republic of"})
	if err != nil {
		t.Fatalf("ParseFilter() failed: %v", err)
	}

	if !f.DateFrom.Equal(time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DateFrom = %v", f.DateFrom)
	}
	if want := time.Date(2011, 2, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond); !f.DateTo.Equal(want) {
		t.Errorf("date-only upper bound should cover the whole day, got %v", f.DateTo)
	}
	if !slices.Equal(f.Categories, []string{"Home", "Books"}) {
		t.Errorf("Categories = %v", f.Categories)
	}
	if !slices.Equal(f.Countries, []string{"Korea, Republic of"}) {
		t.Errorf("values containing commas must be kept whole, got %v", f.Countries)
	}
}

func TestParseFilter_RFC3339(t *testing.T) {
	f, err := ParseFilter("", "2011-01-31T12:00:00Z", nil, nil)
	if err != nil {
		t.Fatalf("ParseFilter() failed: %v", err)
	}
	if f.DateFrom != nil {
		t.Error("empty from should leave the bound open")
	}
	if !f.DateTo.Equal(time.Date(2011, 1, 31, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("DateTo = %v", f.DateTo)
	}
}

func TestParseFilter_Invalid(t *testing.T) {
	for _, tt := range []struct{ from, to string }{
		{"01/02/2011", ""},
		{"", "tomorrow"},
	} {
		if _, err := ParseFilter(tt.from, tt.to, nil, nil); err == nil {
			t.Errorf("ParseFilter(%q, %q) should fail", tt.from, tt.to)
		}
	}
}
