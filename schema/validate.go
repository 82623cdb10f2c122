package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spektr-org/finchat/dataset"
)

// ErrInvalidDataset marks a table that cannot be served.
var ErrInvalidDataset = errors.New("invalid dataset")

// Validate checks that a table is loaded and structurally usable: at least
// one column, at least one row, and unique non-empty column names.
func Validate(t *dataset.Table) error {
	if t == nil {
		return fmt.Errorf("%w: dataset is not loaded", ErrInvalidDataset)
	}
	name := t.Name
	if name == "" {
		name = "dataset"
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", ErrInvalidDataset, name)
	}
	if t.Len() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidDataset, name)
	}

	seen := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: %s column %d has no name", ErrInvalidDataset, name, i+1)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: %s has duplicate column %q", ErrInvalidDataset, name, c.Name)
		}
		seen[c.Name] = true
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("%w: %s row %d has %d values, want %d",
				ErrInvalidDataset, name, i+1, len(row), len(t.Columns))
		}
	}
	return nil
}
