//go:build fitz && cgo

package extract

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

const renderDPI = 150

// FitzRenderer rasterizes PDF pages with MuPDF. Requires the fitz build tag
// and a cgo toolchain.
type FitzRenderer struct{}

func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

func (FitzRenderer) RenderPNG(data []byte, page int) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rendering: %w", err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1-%d)", page, doc.NumPage())
	}

	png, err := doc.ImagePNG(page-1, renderDPI)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return png, nil
}

var _ PageRenderer = (*FitzRenderer)(nil)
