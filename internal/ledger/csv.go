package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVSource reads a comma separated ledger file with a header row.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Name() string {
	return s.path
}

// Path returns the file backing the source.
func (s *CSVSource) Path() string {
	return s.path
}

func (s *CSVSource) Read(ctx context.Context) (RawTable, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return RawTable{}, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return ReadCSV(ctx, file)
}

// ReadCSV parses a ledger from r. Rows may have a varying number of fields;
// short rows are padded with missing values by the normalizer.
func ReadCSV(ctx context.Context, r io.Reader) (RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return RawTable{}, ErrEmptySource
	}
	if err != nil {
		return RawTable{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := RawTable{Header: header}
	for line := 2; ; line++ {
		if line%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return RawTable{}, err
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RawTable{}, fmt.Errorf("read line %d: %w", line, err)
		}

		row := make([]*string, len(record))
		for i := range record {
			row[i] = cell(record[i])
		}
		table.Records = append(table.Records, row)
	}

	return table, nil
}
