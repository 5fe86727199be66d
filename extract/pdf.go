package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// minNativeChars is the threshold below which a page's native text layer is
// treated as absent and the page is classified as scanned.
const minNativeChars = 20

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", ErrExtractionFailed, err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)

	for pageNum := 1; pageNum <= numPages; pageNum++ {
		native := e.nativePageText(reader, pageNum)
		pages = append(pages, e.resolvePageText(ctx, data, pageNum, native))
	}

	return strings.Join(pages, "\n"), nil
}

// resolvePageText decides between a page's native text layer and OCR. Pages
// with a thin native layer are treated as scanned; OCR output wins only when
// it recovers more text than the layer held.
func (e *Extractor) resolvePageText(ctx context.Context, data []byte, pageNum int, native string) string {
	if meaningfulChars(native) >= minNativeChars {
		return native
	}
	if ocrText := e.ocrPage(ctx, data, pageNum); meaningfulChars(ocrText) > meaningfulChars(native) {
		return ocrText
	}
	return native
}

// nativePageText pulls the text layer of one page. Per-page extraction errors
// yield an empty string so the page can fall through to OCR.
func (e *Extractor) nativePageText(reader *pdf.Reader, pageNum int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("pdf page %d: native extraction panic: %v", pageNum, r)
			text = ""
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}

	text, err := page.GetPlainText(nil)
	if err != nil {
		e.logger.Printf("pdf page %d: native extraction failed: %v", pageNum, err)
		return ""
	}
	return text
}

// ocrPage rasterizes one page and transcribes it. Any failure logs and yields
// an empty string so a single bad page never aborts the document.
func (e *Extractor) ocrPage(ctx context.Context, data []byte, pageNum int) string {
	if e.renderer == nil || e.ocr == nil {
		e.logger.Printf("pdf page %d: looks scanned but no OCR engine is configured", pageNum)
		return ""
	}

	image, err := e.renderer.RenderPNG(data, pageNum)
	if err != nil {
		e.logger.Printf("pdf page %d: render failed: %v", pageNum, err)
		return ""
	}

	text, err := e.ocr.TranscribeImage(ctx, image)
	if err != nil {
		e.logger.Printf("pdf page %d: ocr failed: %v", pageNum, err)
		return ""
	}

	return text
}
