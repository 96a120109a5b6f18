// Package passthrough provides a real, concrete OCR engine and
// rasterizer pair that need no external CV/OCR dependency: the
// rasterizer reads pre-transcribed text sidecar files instead of
// rasterizing a PDF, and the engine treats the "image" bytes it
// receives as already being text. This is the engine a deployment
// wires up for fixture-driven batch runs and for ticketctl's default
// configuration when no production OCR backend (tesseract, doctr,
// easyocr) is configured — OCR engine internals and PDF rasterization
// internals are explicit spec non-goals (§1), so this package never
// tries to decode an actual PDF or image.
package passthrough

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wastetrack/ticketcore/internal/ticket/ocr"
)

// EngineName identifies this backend in logs, spans, and metrics
// attribution, mirroring the tagged-variant engine selection of spec §9.
const EngineName = "passthrough"

// Engine implements ocr.Engine by returning the page image bytes as text
// with full confidence — it performs no recognition because the bytes
// it is handed already are text, supplied by Rasterizer below.
type Engine struct{}

// New returns a ready Engine. There is no configuration surface.
func New() Engine { return Engine{} }

func (Engine) EngineName() string { return EngineName }

func (Engine) ProcessImage(_ context.Context, image []byte) (ocr.Result, error) {
	return ocr.Result{Text: string(image), Confidence: 1.0}, nil
}

// Rasterizer turns a source file into "page images" by reading sidecar
// text files next to it: for input path "foo.pdf" it looks for
// "foo.page1.txt", "foo.page2.txt", ... in ascending order; if none
// exist it falls back to a single "foo.txt" sidecar as page 1. A source
// file with no sidecar at all yields zero pages (an empty file, not an
// error — the caller's batch loop then produces no tickets and no
// review entries for it, consistent with "the core must work when no
// image is available", spec §9).
type Rasterizer struct{}

// NewRasterizer returns a ready Rasterizer.
func NewRasterizer() Rasterizer { return Rasterizer{} }

func (Rasterizer) Pages(_ context.Context, path string) ([]ocr.Page, error) {
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("passthrough: read %s: %w", dir, err)
	}

	var multi []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, base+".page") && strings.HasSuffix(name, ".txt") {
			multi = append(multi, name)
		}
	}
	sort.Strings(multi)

	if len(multi) > 0 {
		pages := make([]ocr.Page, 0, len(multi))
		for i, name := range multi {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("passthrough: read %s: %w", name, err)
			}
			pages = append(pages, ocr.Page{Number: i + 1, Image: data})
		}
		return pages, nil
	}

	singlePath := filepath.Join(dir, base+".txt")
	data, err := os.ReadFile(singlePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("passthrough: read %s: %w", singlePath, err)
	}
	return []ocr.Page{{Number: 1, Image: data}}, nil
}
