package labels

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestContent(t *testing.T) {
	l := Label{Store: 5, Bin: 5307, Text: "Row 7, Bin 3"}
	if got := l.Content(); got != "CELLAR/5/5307" {
		t.Fatalf("Content=%q", got)
	}
}

func TestPNG(t *testing.T) {
	png, err := PNG(Label{Store: 5, Bin: 5307}, 0)
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatalf("not a PNG: % x", png[:8])
	}
}

func TestSheet_PaginatesAndRenders(t *testing.T) {
	var ls []Label
	for i := range 40 {
		ls = append(ls, Label{Store: 5, Bin: model.BinID(5000 + i), Text: fmt.Sprintf("Bin %d", i)})
	}
	pdf, err := Sheet(DefaultSheet(), ls)
	if err != nil {
		t.Fatalf("Sheet: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("not a PDF: %q", pdf[:8])
	}
}

func TestSheet_Empty(t *testing.T) {
	if _, err := Sheet(DefaultSheet(), nil); !errors.Is(err, ErrNoLabels) {
		t.Fatalf("err=%v want ErrNoLabels", err)
	}
}
