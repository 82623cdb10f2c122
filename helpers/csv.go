package helpers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spektr-org/finchat/dataset"
	"github.com/spektr-org/finchat/schema"
)

// ============================================================================
// CSV HELPER — Parses CSV data into a typed dataset.Table
// ============================================================================
// Column kinds come from schema.DiscoverKinds; cells are converted with
// schema.ParseCell. Date columns stay text here and are normalized when the
// session is prepared.
// ============================================================================

const utf8BOM = "\uFEFF"

// CSVOptions controls parsing.
type CSVOptions struct {
	Comma    rune                   // Field delimiter (0 = ',')
	Discover schema.DiscoverOptions // Kind discovery sampling
}

// LoadCSV reads a CSV stream into a table named name. The first row is the
// header. Rows narrower than the header are padded with missing values;
// wider rows are an error.
func LoadCSV(r io.Reader, name string, opts ...CSVOptions) (*dataset.Table, error) {
	opt := CSVOptions{Discover: schema.DefaultDiscoverOptions()}
	if len(opts) > 0 {
		opt = opts[0]
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	if opt.Comma != 0 {
		reader.Comma = opt.Comma
	}

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: csv has no header row", name)
		}
		return nil, fmt.Errorf("%s: failed to read CSV headers: %w", name, err)
	}
	headers = StripHeaderBOM(headers)
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	var raw [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(row) > len(headers) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("%s: line %d has %d fields, header has %d", name, line, len(row), len(headers))
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" && len(headers) > 1 {
			continue // blank line
		}
		raw = append(raw, row)
	}

	kinds := schema.DiscoverKinds(headers, raw, opt.Discover)
	columns := make([]dataset.Column, len(headers))
	for i, h := range headers {
		columns[i] = dataset.Column{Name: h, Kind: kinds[i]}
	}

	rows := make([][]dataset.Value, len(raw))
	for i, r := range raw {
		row := make([]dataset.Value, len(headers))
		for j := range headers {
			if j < len(r) {
				row[j] = schema.ParseCell(r[j], kinds[j])
			}
		}
		rows[i] = row
	}

	return dataset.NewTable(name, columns, rows), nil
}

// LoadCSVBytes is LoadCSV over an in-memory buffer.
func LoadCSVBytes(data []byte, name string, opts ...CSVOptions) (*dataset.Table, error) {
	return LoadCSV(bytes.NewReader(data), name, opts...)
}

// LoadCSVFile opens path and loads it.
func LoadCSVFile(path, name string, opts ...CSVOptions) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s data: %w", name, err)
	}
	defer f.Close()
	return LoadCSV(f, name, opts...)
}

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	return headers
}
