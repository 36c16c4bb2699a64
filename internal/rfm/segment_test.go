package rfm

import (
	"fmt"
	"slices"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"444", SegmentChampions},
		{"433", SegmentChampions},
		{"344", SegmentLoyal},
		{"333", SegmentLoyal},
		{"244", SegmentPotential},
		{"144", SegmentNew},
		{"111", SegmentLost},
		{"112", SegmentInactive},
		{"221", SegmentAtRisk},
		{"212", SegmentAtRisk},
		{"321", SegmentOthers},
		{"123", SegmentOthers},
		{"", SegmentOthers},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := Classify(tt.code); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestClassify_Total(t *testing.T) {
	segments := Segments()
	for r := 1; r <= 4; r++ {
		for f := 1; f <= 4; f++ {
			for m := 1; m <= 4; m++ {
				code := fmt.Sprintf("%d%d%d", r, f, m)
				got := Classify(code)
				if !slices.Contains(segments, got) {
					t.Errorf("Classify(%q) = %q, not a known segment", code, got)
				}
			}
		}
	}
}

func TestSegments_ReturnsCopy(t *testing.T) {
	s := Segments()
	s[0] = "mutated"
	if Segments()[0] != SegmentChampions {
		t.Error("Segments() must not expose its backing array")
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"Champions", SegmentChampions, true},
		{"loyal customers", SegmentLoyal, true},
		{" at risk ", SegmentAtRisk, true},
		{"VIP", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Lookup(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
