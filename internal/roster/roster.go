// Package roster loads the student debt spreadsheet into memory and checks
// that the required columns are present.
package roster

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// ErrFileNotFound is returned when the input path does not exist.
var ErrFileNotFound = errors.New("file not found")

// StudentRecord is one row of the source table. Values are kept exactly as
// read; callers trim per use.
type StudentRecord struct {
	Name       string
	Email      string
	Discipline string
	Faculty    string
	Level      string
}

// Columns maps each required field to its header label in the spreadsheet.
type Columns struct {
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Discipline string `yaml:"discipline"`
	Faculty    string `yaml:"faculty"`
	Level      string `yaml:"level"`
}

// DefaultColumns returns the header labels used by the dean's office export.
func DefaultColumns() Columns {
	return Columns{
		Name:       "ФИО",
		Email:      "Email",
		Discipline: "Дисциплина",
		Faculty:    "Факультет",
		Level:      "Уровень",
	}
}

// withDefaults fills unset labels from DefaultColumns.
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Email == "" {
		c.Email = d.Email
	}
	if c.Discipline == "" {
		c.Discipline = d.Discipline
	}
	if c.Faculty == "" {
		c.Faculty = d.Faculty
	}
	if c.Level == "" {
		c.Level = d.Level
	}
	return c
}

// Options controls how a file is loaded.
type Options struct {
	// Sheet names the worksheet to read; the first sheet is used when empty.
	// Ignored for CSV input.
	Sheet string

	Columns Columns
}

// SchemaError reports required columns missing from the header row.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// Table is the loaded, read-only set of student records in file order.
type Table struct {
	records []StudentRecord
}

// Load reads the file at path. It fails with ErrFileNotFound before any
// parsing if the path does not exist, and with *SchemaError if the header
// lacks a required column.
func Load(path string, opts Options) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to access input file: %w", err)
	}

	rows, err := readRows(path, opts.Sheet)
	if err != nil {
		return nil, err
	}

	return FromRows(rows, opts.Columns)
}

// FromRows builds a Table from raw rows whose first row is the header.
func FromRows(rows [][]string, cols Columns) (*Table, error) {
	cols = cols.withDefaults()

	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	var missing []string
	for _, label := range []string{cols.Name, cols.Email, cols.Discipline, cols.Faculty, cols.Level} {
		if _, ok := index[label]; !ok {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &SchemaError{Missing: missing}
	}

	t := &Table{}
	if len(rows) < 2 {
		return t, nil
	}

	t.records = make([]StudentRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		t.records = append(t.records, StudentRecord{
			Name:       cell(row, index[cols.Name]),
			Email:      cell(row, index[cols.Email]),
			Discipline: cell(row, index[cols.Discipline]),
			Faculty:    cell(row, index[cols.Faculty]),
			Level:      cell(row, index[cols.Level]),
		})
	}

	return t, nil
}

// Records returns a copy of all records in file order.
func (t *Table) Records() []StudentRecord {
	out := make([]StudentRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// FindByEmail returns the first record whose normalized email equals the
// normalized addr. Later rows sharing the address are ignored.
func (t *Table) FindByEmail(addr string) (StudentRecord, bool) {
	key := NormalizeEmail(addr)
	for _, r := range t.records {
		if NormalizeEmail(r.Email) == key {
			return r, true
		}
	}
	return StudentRecord{}, false
}

// Filter returns the records for which keep reports true, in file order.
func (t *Table) Filter(keep func(StudentRecord) bool) []StudentRecord {
	var out []StudentRecord
	for _, r := range t.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// NormalizeEmail lower-cases and trims an address for use as a lookup key.
func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
