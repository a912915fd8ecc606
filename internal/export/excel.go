package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/litscout/litscout/internal/domain"
)

const (
	sheetName  = "Results"
	dateLayout = "2006-01-02"
)

// columns is the fixed workbook column order.
var columns = []string{"source", "title", "authors", "abstract", "url", "id", "published_date", "category"}

// ExcelWriter writes the final result set as an .xlsx workbook.
type ExcelWriter struct {
	dir string
	now func() time.Time
}

// NewExcelWriter creates a writer targeting dir. An empty dir means
// DefaultDir.
func NewExcelWriter(dir string) *ExcelWriter {
	if dir == "" {
		dir = DefaultDir
	}
	return &ExcelWriter{
		dir: dir,
		now: time.Now,
	}
}

// Write saves the records to literature_results_<timestamp>.xlsx and returns
// the path written.
func (w *ExcelWriter) Write(records []*domain.Record) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("literature_results_%s.xlsx", w.now().Format("20060102_150405")))
	if err := WriteWorkbook(path, records); err != nil {
		return "", err
	}
	return path, nil
}

// WriteWorkbook writes the records to an .xlsx file at path.
func WriteWorkbook(path string, records []*domain.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), sheetName)

	for col, header := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("addressing header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, r := range records {
		row := i + 2
		values := recordRow(r)
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("addressing cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

// recordRow flattens a record into the fixed column order. Absent optional
// fields become empty cells.
func recordRow(r *domain.Record) []string {
	published := ""
	if r.PublishedDate != nil {
		published = r.PublishedDate.Format(dateLayout)
	}
	category := ""
	if r.Category != nil {
		category = *r.Category
	}

	return []string{
		string(r.Source),
		r.Title,
		strings.Join(r.Authors, "; "),
		r.Abstract,
		r.URL,
		r.ID,
		published,
		category,
	}
}
