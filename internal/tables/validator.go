package tables

import "fmt"

// ValidationResult contains the outcome of wide-table validation.
type ValidationResult struct {
	Passed bool
	Errors []string
}

// ValidateWide performs sanity checks on a pivoted table before upload:
// - at least one data row
// - no duplicate timestamps (the pivot keys rows by timestamp)
// - every row matches the header arity
// - the sensor column is constant
func ValidateWide(t *Table) ValidationResult {
	result := ValidationResult{Passed: true}

	if len(t.Rows) == 0 {
		result.Errors = append(result.Errors, "wide table has no rows")
		result.Passed = false
	}

	if len(t.Columns) < 2 || t.Columns[0] != "datetime" || t.Columns[1] != "sensor" {
		result.Errors = append(result.Errors,
			fmt.Sprintf("unexpected leading columns: %v", t.Columns))
		result.Passed = false
		return result
	}

	seen := make(map[string]bool, len(t.Rows))
	sensor := ""
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("row %d has %d fields, header has %d", i, len(row), len(t.Columns)))
			result.Passed = false
			continue
		}
		if seen[row[0]] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("duplicate timestamp %s", row[0]))
			result.Passed = false
		}
		seen[row[0]] = true

		if sensor == "" {
			sensor = row[1]
		} else if row[1] != sensor {
			result.Errors = append(result.Errors,
				fmt.Sprintf("row %d sensor %q differs from %q", i, row[1], sensor))
			result.Passed = false
		}
	}

	return result
}
