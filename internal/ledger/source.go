package ledger

import (
	"context"
	"strings"
)

// RawTable is an untyped ledger as read from a source: a header row and
// string records. A nil cell is a missing value; an empty string is parsed
// like any other token.
type RawTable struct {
	Header  []string
	Records [][]*string
}

// Source is an opaque handle to a transaction ledger.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	// Read returns the full raw table.
	Read(ctx context.Context) (RawTable, error)
}

// SourceOptions carries the settings OpenSource passes to the source it picks.
type SourceOptions struct {
	Table    string
	DemoRows int
	DemoSeed uint64
}

// OpenSource picks a source from a location: a postgres URL, the literal
// "demo", or otherwise a CSV file path.
func OpenSource(location string, opts SourceOptions) Source {
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return NewPostgresSource(location, opts.Table)
	case location == "demo":
		return NewDemoSource(opts.DemoRows, opts.DemoSeed)
	default:
		return NewCSVSource(location)
	}
}

func cell(s string) *string {
	return &s
}
