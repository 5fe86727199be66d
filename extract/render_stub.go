//go:build !fitz || !cgo

package extract

import "fmt"

// FitzRenderer is a stub used when MuPDF support is not compiled in. Build
// with -tags=fitz to enable page rasterization for scanned PDFs.
type FitzRenderer struct{}

func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

func (FitzRenderer) RenderPNG(data []byte, page int) ([]byte, error) {
	return nil, fmt.Errorf("pdf rasterizer not available: build with -tags=fitz")
}

var _ PageRenderer = (*FitzRenderer)(nil)
