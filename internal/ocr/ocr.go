// Package ocr rasterizes PDF pages with pdftoppm and recognizes them with
// tesseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dgallion1/tocgest/internal/document"
	"github.com/dgallion1/tocgest/internal/toolexec"
)

// ErrNoImage is returned when the rasterizer exits cleanly but writes nothing.
var ErrNoImage = errors.New("rasterizer produced no image")

// Rasterizer renders one page (0-based index) of a PDF into dir and returns
// the image path.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, index int, dir string) (string, error)
}

// Engine turns an image into text.
type Engine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Pdftoppm renders grayscale PNGs with poppler's pdftoppm.
type Pdftoppm struct {
	Path   string
	DPI    int
	Runner toolexec.Runner
}

func (p *Pdftoppm) Rasterize(ctx context.Context, pdfPath string, index int, dir string) (string, error) {
	page := strconv.Itoa(index + 1)
	prefix := filepath.Join(dir, "page-"+page)
	args := []string{
		"-png", "-gray",
		"-r", strconv.Itoa(p.DPI),
		"-f", page, "-l", page,
		"-singlefile",
		pdfPath, prefix,
	}
	if _, err := p.Runner.Run(ctx, p.Path, args...); err != nil {
		return "", fmt.Errorf("rasterize page %s: %w", page, err)
	}

	out := prefix + ".png"
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: page %s", ErrNoImage, page)
	}
	return out, nil
}

// Tesseract runs the tesseract CLI in hOCR mode so word gaps survive into
// the recognized text.
type Tesseract struct {
	Path     string
	Language string
	PSM      int
	Runner   toolexec.Runner
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	args := []string{imagePath, "stdout", "-l", t.Language, "--psm", strconv.Itoa(t.PSM), "hocr"}
	out, err := t.Runner.Run(ctx, t.Path, args...)
	if err != nil {
		return "", fmt.Errorf("recognize %s: %w", filepath.Base(imagePath), err)
	}
	text, err := ParseHOCR(out)
	if err != nil {
		return "", fmt.Errorf("parse hocr: %w", err)
	}
	return text, nil
}

// Options configure New.
type Options struct {
	PdftoppmPath  string
	TesseractPath string
	Language      string
	DPI           int
	PSM           int
	Attempts      uint
	Runner        toolexec.Runner
}

// Service OCRs single pages of a document.
type Service struct {
	Rasterizer Rasterizer
	Engine     Engine
}

// New wires pdftoppm and tesseract behind a retrying runner.
func New(opts Options) *Service {
	runner := opts.Runner
	if runner == nil {
		runner = toolexec.ExecRunner{}
	}
	if opts.Attempts > 1 {
		runner = toolexec.Retrying{Runner: runner, Attempts: opts.Attempts}
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.DPI <= 0 {
		opts.DPI = 400
	}
	return &Service{
		Rasterizer: &Pdftoppm{Path: opts.PdftoppmPath, DPI: opts.DPI, Runner: runner},
		Engine: &Tesseract{
			Path:     opts.TesseractPath,
			Language: opts.Language,
			PSM:      opts.PSM,
			Runner:   runner,
		},
	}
}

// PageText rasterizes and recognizes page index of doc. Intermediate images
// are removed before returning.
func (s *Service) PageText(ctx context.Context, doc *document.Document, index int) (string, error) {
	if index < 0 || index >= doc.PageCount {
		return "", fmt.Errorf("page index %d out of range", index)
	}
	pdfPath, err := doc.Path()
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "tocgest-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	img, err := s.Rasterizer.Rasterize(ctx, pdfPath, index, dir)
	if err != nil {
		return "", err
	}
	return s.Engine.Recognize(ctx, img)
}
