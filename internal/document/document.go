package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrInvalidDocument indicates the input is not a readable PDF.
	ErrInvalidDocument = errors.New("invalid pdf document")

	// ErrEmptyDocument indicates a readable PDF with no pages.
	ErrEmptyDocument = errors.New("pdf has no pages")
)

// Method records how a page's text was obtained.
type Method string

const (
	MethodNative Method = "native"
	MethodOCR    Method = "ocr"
	MethodFailed Method = "failed"
)

// Document is an uploaded PDF held in memory for one pipeline run.
type Document struct {
	Name      string
	Size      int64
	PageCount int

	data []byte

	mu   sync.Mutex
	path string
}

// Page is the extraction outcome for one page.
type Page struct {
	Index    int           // 0-based
	Text     string        // empty when Method is MethodFailed
	Method   Method
	Err      string        // diagnostic only, never fatal
	Duration time.Duration
}

// Open validates data as a PDF and counts its pages.
func Open(data []byte, name string) (*Document, error) {
	if len(data) < 5 || !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", ErrInvalidDocument)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if count <= 0 {
		return nil, ErrEmptyDocument
	}

	return &Document{
		Name:      strings.TrimSuffix(name, ".pdf"),
		Size:      int64(len(data)),
		PageCount: count,
		data:      data,
	}, nil
}

// New builds a Document without validation. Callers that already know the
// page count (tests, pre-validated uploads) use it to skip the pdfcpu pass.
func New(data []byte, name string, pageCount int) *Document {
	return &Document{
		Name:      name,
		Size:      int64(len(data)),
		PageCount: pageCount,
		data:      data,
	}
}

// Bytes returns the raw PDF bytes.
func (d *Document) Bytes() []byte {
	return d.data
}

// Path writes the PDF to a temp file on first use and returns its path.
// External tools (pdftoppm, pdftotext) need a real file.
func (d *Document) Path() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path != "" {
		return d.path, nil
	}

	tmp, err := os.CreateTemp("", "tocgest-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(d.data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	d.path = tmp.Name()
	return d.path, nil
}

// Close removes the temp file, if one was written.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.path == "" {
		return nil
	}
	err := os.Remove(d.path)
	d.path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
