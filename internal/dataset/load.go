package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Loader reads one tabular file format.
type Loader interface {
	CanLoad(filename string) bool
	Load(path string) (*Dataset, error)
}

var registry []Loader

// Register adds a loader to the registry. Earlier registrations win.
func Register(l Loader) {
	registry = append(registry, l)
}

// Supported reports whether some registered loader accepts filename.
func Supported(filename string) bool {
	for _, l := range registry {
		if l.CanLoad(filename) {
			return true
		}
	}
	return false
}

// Load selects a loader by file name and reads the dataset. It returns
// ErrUnsupportedFormat when no loader matches and ErrEmpty when the file holds
// no rows or no columns.
func Load(path string) (*Dataset, error) {
	for _, l := range registry {
		if !l.CanLoad(path) {
			continue
		}
		d, err := l.Load(path)
		if err != nil {
			return nil, err
		}
		if d.Empty() {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmpty)
		}
		return d, nil
	}
	return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
}

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
}

type csvLoader struct{}

func (csvLoader) CanLoad(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv")
}

func (csvLoader) Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, filepath.Base(path), sniffDelimiter(path))
}

// ReadCSV parses delimited text with a header row.
func ReadCSV(r io.Reader, name string, delim rune) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return New(name), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, rec)
	}
	return FromRecords(name, header, rows), nil
}

// sniffDelimiter picks tab for .tsv and otherwise the most frequent of
// ',', ';' and '\t' on the first line.
func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	f, err := os.Open(path)
	if err != nil {
		return ','
	}
	defer f.Close()
	buf := make([]byte, 4096)
	n, _ := io.ReadFull(f, buf)
	line, _, _ := strings.Cut(string(buf[:n]), "\n")
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(line, string(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

type xlsxLoader struct{}

func (xlsxLoader) CanLoad(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xlsm")
}

// Load reads the first sheet of the workbook.
func (xlsxLoader) Load(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return New(filepath.Base(path)), nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return New(filepath.Base(path)), nil
	}
	return FromRecords(filepath.Base(path), rows[0], rows[1:]), nil
}
