package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/KaramelBytes/insighto/internal/utils"
)

// WriteCSV writes the dataset with a header row. Missing cells are empty.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, d.Cols())
	for i := 0; i < d.Rows(); i++ {
		for j, c := range d.Columns {
			rec[j] = c.Format(i, "")
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the dataset to path through a temp file and rename.
func (d *Dataset) SaveCSV(path string) error {
	var buf bytes.Buffer
	if err := d.WriteCSV(&buf); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}
