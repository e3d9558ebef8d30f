package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PageCount returns the number of pages in a PDF file.
func PageCount(path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count PDF pages: %w", err)
	}
	return count, nil
}

// CropHeaderFooter trims running headers and footers off every page before
// text extraction. top and bottom are in points (1 pt = 1/72 inch).
func CropHeaderFooter(inputPath, outputPath string, top, bottom float64) error {
	conf := api.LoadConfiguration()

	pages := []string{"1-"}

	cropStr := fmt.Sprintf("%.2f 0 %.2f 0", top, bottom)

	box, err := model.ParseBox(cropStr, types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}

	if err := api.CropFile(inputPath, outputPath, pages, box, conf); err != nil {
		return fmt.Errorf("failed to crop PDF: %w", err)
	}

	return nil
}

// PreparePDF crops running headers and footers off an in-memory PDF and
// returns the cropped bytes together with the page count. top and bottom
// of zero skip the crop.
func PreparePDF(data []byte, top, bottom float64) ([]byte, int, error) {
	dir, err := os.MkdirTemp("", "analyzer-pdf")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return nil, 0, fmt.Errorf("failed to write scratch file: %w", err)
	}

	pages, err := PageCount(inputPath)
	if err != nil {
		return nil, 0, err
	}

	if top <= 0 && bottom <= 0 {
		return data, pages, nil
	}

	outputPath := filepath.Join(dir, "out.pdf")
	if err := CropHeaderFooter(inputPath, outputPath, top, bottom); err != nil {
		return nil, 0, err
	}

	cropped, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read cropped file: %w", err)
	}
	return cropped, pages, nil
}
