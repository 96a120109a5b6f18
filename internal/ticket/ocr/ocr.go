// Package ocr defines the external collaborator contracts the page
// pipeline depends on for turning a source file into per-page text and
// images: the OCR engine itself and the PDF/image rasterizer. Neither
// has a concrete in-repo implementation — OCR engine internals and PDF
// rasterization internals are explicit spec non-goals — but the
// interfaces are real, tagged-variant selection points so a caller can
// wire DocTR, Tesseract, or any other engine without touching the
// pipeline.
package ocr

import "context"

// Page is one rasterized page of a source file, ready for OCR.
type Page struct {
	Number int
	Image  []byte
}

// ImageProducer splits a source file (PDF, multi-page TIFF, ...) into
// per-page images. Concrete implementations live outside this module;
// the pipeline only depends on this interface.
type ImageProducer interface {
	Pages(ctx context.Context, path string) ([]Page, error)
}

// Result is one page's OCR output.
type Result struct {
	PageNumber int
	Text       string
	Confidence float64
}

// Engine is the OCR backend contract. EngineName tags which concrete
// engine is configured (doctr, tesseract, easyocr, ...) purely for
// logging/metrics attribution — the pipeline never branches on it.
type Engine interface {
	EngineName() string
	ProcessImage(ctx context.Context, image []byte) (Result, error)
}

// ProcessPages runs engine over every page image, short-circuiting the
// whole file on the first error — a single unreadable page means the
// file needs a human look before any of it is trusted.
func ProcessPages(ctx context.Context, engine Engine, pages []Page) ([]Result, error) {
	results := make([]Result, len(pages))
	for i, p := range pages {
		result, err := engine.ProcessImage(ctx, p.Image)
		if err != nil {
			return nil, err
		}
		result.PageNumber = p.Number
		results[i] = result
	}
	return results, nil
}
