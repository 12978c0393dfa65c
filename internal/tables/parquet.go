package tables

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// WriteParquet renders a wide table as parquet. The schema is built from
// the table's columns: datetime and sensor as strings, every parameter
// column as an optional double. Empty cells become nulls.
func WriteParquet(t *Table, w io.Writer) error {
	if len(t.Columns) < 2 {
		return fmt.Errorf("wide table has %d columns, need at least datetime and sensor", len(t.Columns))
	}

	group := parquet.Group{
		"datetime": parquet.String(),
		"sensor":   parquet.String(),
	}
	for _, col := range t.Columns[2:] {
		group[col] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
	}
	schema := parquet.NewSchema("wide", group)

	pw := parquet.NewWriter(w, schema)
	for _, row := range t.Rows {
		rec := map[string]any{
			"datetime": row[0],
			"sensor":   row[1],
		}
		for i, col := range t.Columns[2:] {
			text := row[i+2]
			if text == "" {
				continue
			}
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				continue
			}
			rec[col] = v
		}
		if err := pw.Write(rec); err != nil {
			return fmt.Errorf("write parquet row: %w", err)
		}
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// WriteParquetFile renders a wide table to the parquet file at path.
func WriteParquetFile(t *Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := WriteParquet(t, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
