package export

import (
	"fmt"
	"strings"
)

// Format identifies a rendered report encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat normalises user input, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Dataset defines tabular export content. Rows are positional and must
// carry one value per header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func (d Dataset) validate(kind string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", kind)
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("%s row %d has %d values, want %d", kind, i, len(row), len(d.Headers))
		}
	}
	return nil
}

// Renderer renders a dataset in a given format.
type Renderer struct {
	csv  *CSVExporter
	xlsx *XLSXExporter
	pdf  *PDFExporter
}

// NewRenderer wires every supported exporter.
func NewRenderer() *Renderer {
	return &Renderer{csv: NewCSVExporter(), xlsx: NewXLSXExporter(), pdf: NewPDFExporter()}
}

// Render dispatches to the exporter for format.
func (r *Renderer) Render(format Format, data Dataset) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return r.xlsx.Render(data)
	case FormatPDF:
		return r.pdf.Render(data)
	default:
		return r.csv.Render(data)
	}
}
