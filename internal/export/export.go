// Package export writes RFM snapshots to durable sinks: a SQLite database
// and timestamped JSON files.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"rfm-dashboard/internal/models"
)

// Set is one exported RFM snapshot.
type Set struct {
	SnapshotID  string                `json:"snapshot_id"`
	Source      string                `json:"source"`
	CreatedAt   time.Time             `json:"created_at"`
	CurrentDate time.Time             `json:"current_date"`
	Summary     models.Summary        `json:"summary"`
	Segments    []models.SegmentCount `json:"segments"`
	Customers   []models.CustomerRFM  `json:"customers"`
}

func (s Set) totalRevenue() decimal.Decimal {
	total := decimal.Zero
	for _, c := range s.Customers {
		total = total.Add(c.Monetary)
	}
	return total
}

// Writer persists a Set and returns where it went.
type Writer interface {
	Write(ctx context.Context, set Set) (string, error)
}

// WriteAll runs every writer concurrently and returns their locations in
// writer order. The first failure cancels the rest.
func WriteAll(ctx context.Context, set Set, writers ...Writer) ([]string, error) {
	g, ctx := errgroup.WithContext(ctx)
	locations := make([]string, len(writers))

	for i, w := range writers {
		g.Go(func() error {
			loc, err := w.Write(ctx, set)
			if err != nil {
				return fmt.Errorf("export %s: %w", set.SnapshotID, err)
			}
			locations[i] = loc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locations, nil
}
