// Package labels renders printable bin labels: a QR code per bin and an A4
// sheet of them for a whole rack.
package labels

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
)

const DefaultSize = 256

var ErrNoLabels = errors.New("labels: nothing to print")

// Label is one printable bin.
type Label struct {
	Store model.StoreID
	Bin   model.BinID
	Text  string
}

// Content is what the QR code encodes. Scanners resolve it back to a bin
// with bincode.
func (l Label) Content() string {
	return fmt.Sprintf("CELLAR/%d/%d", int(l.Store), int(l.Bin))
}

// PNG encodes the label content as a square QR image of size pixels.
func PNG(l Label, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(l.Content(), qrcode.Low, size)
	if err != nil {
		return nil, fmt.Errorf("qr encode %s: %w", l.Content(), err)
	}
	return png, nil
}

// SheetConfig lays labels out on A4 portrait, all lengths in mm.
type SheetConfig struct {
	Cols       int
	Rows       int
	MarginTop  float64
	MarginLeft float64
	GapX       float64
	GapY       float64
}

func DefaultSheet() SheetConfig {
	return SheetConfig{Cols: 4, Rows: 8, MarginTop: 10, MarginLeft: 8, GapX: 3, GapY: 2}
}

const pageW, pageH = 210.0, 297.0

// Sheet renders labels into a PDF, starting a new page whenever the grid
// fills up.
func Sheet(cfg SheetConfig, ls []Label) ([]byte, error) {
	if len(ls) == 0 {
		return nil, ErrNoLabels
	}
	if cfg.Cols <= 0 || cfg.Rows <= 0 {
		cfg = DefaultSheet()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 8)

	labelW := (pageW - 2*cfg.MarginLeft - float64(cfg.Cols-1)*cfg.GapX) / float64(cfg.Cols)
	labelH := (pageH - 2*cfg.MarginTop - float64(cfg.Rows-1)*cfg.GapY) / float64(cfg.Rows)
	perPage := cfg.Cols * cfg.Rows
	imgOpts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}

	qrSize := labelH * 0.7
	if qrSize > labelW*0.9 {
		qrSize = labelW * 0.9
	}

	for i, l := range ls {
		if i%perPage == 0 {
			pdf.AddPage()
		}
		slot := i % perPage
		x := cfg.MarginLeft + float64(slot%cfg.Cols)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(slot/cfg.Cols)*(labelH+cfg.GapY)

		png, err := PNG(l, DefaultSize)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("bin_%d", int(l.Bin))
		pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(png))
		pdf.ImageOptions(name, x+(labelW-qrSize)/2, y+1, qrSize, qrSize, false, imgOpts, 0, "")

		pdf.SetXY(x, y+labelH-5)
		pdf.CellFormat(labelW, 4, l.Text, "", 0, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render label sheet: %w", err)
	}
	return buf.Bytes(), nil
}
