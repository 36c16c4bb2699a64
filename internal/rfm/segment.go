package rfm

import "strings"

// Segment names, as shown on the dashboard.
const (
	SegmentChampions = "Champions"
	SegmentLoyal     = "Loyal Customers"
	SegmentPotential = "Potential"
	SegmentNew       = "New"
	SegmentLost      = "Lost"
	SegmentInactive  = "Inactive"
	SegmentAtRisk    = "At Risk"
	SegmentOthers    = "Others"
)

// segmentByCode holds the named RFM codes; everything else is Others.
var segmentByCode = map[string]string{
	"444": SegmentChampions, "443": SegmentChampions, "434": SegmentChampions, "433": SegmentChampions,
	"344": SegmentLoyal, "343": SegmentLoyal, "334": SegmentLoyal, "333": SegmentLoyal,
	"244": SegmentPotential,
	"144": SegmentNew,
	"111": SegmentLost,
	"112": SegmentInactive,
	"221": SegmentAtRisk, "212": SegmentAtRisk,
}

var segmentOrder = []string{
	SegmentChampions, SegmentLoyal, SegmentPotential, SegmentNew,
	SegmentAtRisk, SegmentInactive, SegmentLost, SegmentOthers,
}

// Classify maps an RFM code to its segment. Codes outside the table are "Others".
func Classify(code string) string {
	if s, ok := segmentByCode[code]; ok {
		return s
	}
	return SegmentOthers
}

// Segments lists every segment name in display order.
func Segments() []string {
	out := make([]string, len(segmentOrder))
	copy(out, segmentOrder)
	return out
}

// Lookup returns the canonical name of a segment matched case-insensitively.
func Lookup(name string) (string, bool) {
	for _, s := range segmentOrder {
		if strings.EqualFold(s, strings.TrimSpace(name)) {
			return s, true
		}
	}
	return "", false
}
