package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

const (
	// DefaultDemoRows is the size of the demo ledger when none is configured.
	DefaultDemoRows = 1000

	demoProducts   = 50
	demoStockCodes = 100
	demoCustomers  = 100
)

var demoCountries = []string{"USA", "UK", "France", "Germany", "Spain"}

var demoStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// DemoSource generates a synthetic ledger: one invoice per day starting
// 2023-01-01, a small product catalog and a hundred customers. It carries
// Category and Rating columns so no stub policy is needed.
type DemoSource struct {
	rows int
	seed uint64
}

// NewDemoSource returns a demo ledger of rows rows. A zero seed draws from the clock.
func NewDemoSource(rows int, seed uint64) *DemoSource {
	if rows <= 0 {
		rows = DefaultDemoRows
	}
	return &DemoSource{rows: rows, seed: seed}
}

func (s *DemoSource) Name() string {
	return "demo"
}

func (s *DemoSource) Read(ctx context.Context) (RawTable, error) {
	seed := s.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	f := gofakeit.New(seed)

	products := make([]string, demoProducts)
	for i := range products {
		products[i] = fmt.Sprintf("%s %d", f.ProductName(), i)
	}

	table := RawTable{
		Header: []string{
			colInvoice, colStockCode, colDescription, colQuantity, colInvoiceDate,
			colUnitPrice, colCustomer, colCountry, colCategory, colRating,
		},
		Records: make([][]*string, 0, s.rows),
	}

	for i := 0; i < s.rows; i++ {
		if err := ctx.Err(); err != nil {
			return RawTable{}, err
		}

		record := []string{
			"INV" + strconv.Itoa(i),
			"STK" + strconv.Itoa(i%demoStockCodes),
			products[i%demoProducts],
			strconv.Itoa(f.IntRange(1, 9)),
			demoStart.AddDate(0, 0, i).Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(f.Price(10, 500), 'f', 2, 64),
			"CUST" + strconv.Itoa(f.IntRange(1, demoCustomers)),
			f.RandomString(demoCountries),
			f.RandomString(StubCategories),
			strconv.FormatFloat(f.Float64Range(stubRatingMin, stubRatingMax), 'f', 2, 64),
		}

		row := make([]*string, len(record))
		for j := range record {
			row[j] = cell(record[j])
		}
		table.Records = append(table.Records, row)
	}

	return table, nil
}
