// Package report serializes stored crawl rows to XLSX and CSV for the
// outer shell's export surface.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/seo-audit/crawler/internal/storage"
)

// ExportFormat selects the output file type.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

// Columns exported per page, in order.
var columns = []string{
	"URL", "Final URL", "Status", "Redirects", "Content Type",
	"Response Time (ms)", "Title", "Description", "H1",
	"Internal Links", "External Links", "Images", "Word Count",
	"Indexability", "Canonical", "Language", "Depth", "HTTPS",
}

// Exporter writes store rows to a file.
type Exporter struct {
	format ExportFormat
	path   string
}

// NewExporter creates an exporter for the given format and target path.
func NewExporter(format ExportFormat, path string) *Exporter {
	return &Exporter{format: format, path: path}
}

// Export serializes the pages, sorted by URL for stable output.
func (e *Exporter) Export(pages map[string]*storage.PageRecord) error {
	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	switch e.format {
	case FormatCSV:
		return e.exportCSV(urls, pages)
	case FormatXLSX:
		return e.exportXLSX(urls, pages)
	default:
		return fmt.Errorf("unsupported export format: %s", e.format)
	}
}

func (e *Exporter) exportCSV(urls []string, pages map[string]*storage.PageRecord) error {
	file, err := os.Create(e.path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// UTF-8 BOM for Excel compatibility
	file.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, u := range urls {
		if err := writer.Write(rowValues(pages[u])); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

func (e *Exporter) exportXLSX(urls []string, pages map[string]*storage.PageRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Crawl"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, title := range columns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
	}

	for row, u := range urls {
		for col, value := range rowValues(pages[u]) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	if err := f.SaveAs(e.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func rowValues(rec *storage.PageRecord) []string {
	h1 := ""
	if rec.Headings != nil && len(rec.Headings["h1"]) > 0 {
		h1 = rec.Headings["h1"][0]
	}
	canonical := ""
	if len(rec.Canonicals) > 0 {
		canonical = rec.Canonicals[0]
	}

	return []string{
		rec.OriginalURL,
		rec.FinalURL,
		strconv.Itoa(rec.StatusCode),
		strconv.Itoa(rec.RedirectCount),
		rec.ContentType,
		strconv.FormatInt(rec.ResponseTimeMS, 10),
		rec.Title,
		rec.Description,
		h1,
		strconv.Itoa(len(rec.InternalLinks)),
		strconv.Itoa(len(rec.ExternalLinks)),
		strconv.Itoa(len(rec.ImageURLs)),
		strconv.Itoa(rec.WordCount),
		rec.Indexability,
		canonical,
		rec.Language,
		strconv.Itoa(rec.URLDepth),
		strings.ToUpper(strconv.FormatBool(rec.IsHTTPS)),
	}
}
